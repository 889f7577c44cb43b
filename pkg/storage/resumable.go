/*
Copyright 2023-2024 EscherCloud.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package storage

import (
	"context"
	"encoding/json"
	goerrors "errors"

	"github.com/google/uuid"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/repo"
	"github.com/eschercloudai/cumulus/pkg/util/log"
)

// sessionMetadata is what a resumable initiate captures for the eventual
// finalize, serialised into the session row.
type sessionMetadata struct {
	ContentType    string            `json:"contentType,omitempty"`
	CustomMetadata map[string]string `json:"customMetadata,omitempty"`
	Preconditions  Preconditions     `json:"preconditions"`
}

// ResumableParams describes a resumable initiate.
type ResumableParams struct {
	Bucket         string
	Name           string
	ContentType    string
	CustomMetadata map[string]string
	TotalSize      *int64
	Preconditions  Preconditions
}

// StartResumable creates an upload session.  Preconditions supplied here are
// evaluated at finalize, through the ordinary upload path.
func (s *Service) StartResumable(ctx context.Context, params *ResumableParams) (*models.ResumableSession, error) {
	bucket, err := s.GetBucket(ctx, params.Bucket)
	if err != nil {
		return nil, err
	}

	if params.Name == "" {
		return nil, errors.InvalidArgument("object name is required")
	}

	if params.TotalSize != nil && *params.TotalSize < 0 {
		return nil, errors.InvalidArgument("total size must not be negative")
	}

	metadata, err := json.Marshal(sessionMetadata{
		ContentType:    params.ContentType,
		CustomMetadata: params.CustomMetadata,
		Preconditions:  params.Preconditions,
	})
	if err != nil {
		return nil, errors.Internal("failed to encode session metadata").WithError(err)
	}

	sessionID := uuid.New().String()

	session := &models.ResumableSession{
		SessionID:     sessionID,
		BucketID:      bucket.ID,
		ObjectName:    params.Name,
		MetadataJSON:  string(metadata),
		CurrentOffset: 0,
		TotalSize:     params.TotalSize,
		TempPath:      s.content.TempPath(sessionID),
		CreatedAt:     s.clock.Now(),
	}

	if err := s.repos.Sessions.Create(ctx, session); err != nil {
		return nil, errors.Internal("failed to create upload session").WithError(err)
	}

	return session, nil
}

// ChunkResult reports chunk acceptance.  Object and Bucket are set once the
// final chunk lands and the session has finalized.
type ChunkResult struct {
	// Offset is the byte count accepted so far.
	Offset int64

	// Completed is true once the upload finalized.
	Completed bool

	// Bucket is the owning bucket's name.
	Bucket string

	// Object is the finalized object.
	Object *models.Object
}

// UploadChunk appends [start, start+len) to a session.  Appends are strictly
// linear, a chunk whose start is not the current offset is rejected without
// touching the temp file.  total, when known, fixes the session's final size.
func (s *Service) UploadChunk(ctx context.Context, sessionID string, start int64, data []byte, total *int64) (*ChunkResult, error) {
	session, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("upload session not found").WithValues("session", sessionID)
		}

		return nil, errors.Internal("failed to read upload session").WithError(err)
	}

	if start != session.CurrentOffset {
		return nil, errors.InvalidArgument("chunk offset does not match session offset").
			WithValues("expected", session.CurrentOffset, "actual", start)
	}

	totalSize := session.TotalSize

	if total != nil {
		if totalSize != nil && *totalSize != *total {
			return nil, errors.InvalidArgument("total size does not match session").
				WithValues("expected", *totalSize, "actual", *total)
		}

		totalSize = total
	}

	end := start + int64(len(data))

	if totalSize != nil && end > *totalSize {
		return nil, errors.InvalidArgument("chunk extends past declared total size").
			WithValues("end", end, "total", *totalSize)
	}

	if len(data) > 0 {
		if err := s.content.AppendTemp(sessionID, start, data); err != nil {
			return nil, errors.Internal("failed to append chunk").WithError(err)
		}

		// Compare-and-set from the offset we validated against, so a
		// concurrent duplicate chunk cannot double-advance.
		if err := s.repos.Sessions.UpdateOffset(ctx, sessionID, start, end); err != nil {
			return nil, errors.Internal("failed to advance session offset").WithError(err)
		}
	}

	if totalSize == nil || end < *totalSize {
		return &ChunkResult{Offset: end}, nil
	}

	bucket, object, err := s.finalizeSession(ctx, session, end)
	if err != nil {
		return nil, err
	}

	return &ChunkResult{Offset: end, Completed: true, Bucket: bucket.Name, Object: object}, nil
}

// GetSession returns session progress, for status probes (bytes */T).
func (s *Service) GetSession(ctx context.Context, sessionID string) (*models.ResumableSession, error) {
	session, err := s.repos.Sessions.Get(ctx, sessionID)
	if err != nil {
		if goerrors.Is(err, repo.ErrNotFound) {
			return nil, errors.NotFound("upload session not found").WithValues("session", sessionID)
		}

		return nil, errors.Internal("failed to read upload session").WithError(err)
	}

	return session, nil
}

// finalizeSession routes the accumulated bytes through the ordinary upload
// path so preconditions, generation allocation and events behave
// identically, then cleans up.
func (s *Service) finalizeSession(ctx context.Context, session *models.ResumableSession, size int64) (*models.Bucket, *models.Object, error) {
	var metadata sessionMetadata

	if err := json.Unmarshal([]byte(session.MetadataJSON), &metadata); err != nil {
		return nil, nil, errors.Internal("failed to decode session metadata").WithError(err)
	}

	data, err := s.content.ReadTemp(session.SessionID)
	if err != nil {
		return nil, nil, errors.Internal("failed to read accumulated upload").WithError(err)
	}

	if int64(len(data)) != size {
		return nil, nil, errors.Internal("accumulated upload size mismatch").
			WithValues("expected", size, "actual", len(data))
	}

	bucket, object, err := s.uploadForSession(ctx, session, &metadata, data)
	if err != nil {
		return nil, nil, err
	}

	if err := s.repos.Sessions.Delete(ctx, session.SessionID); err != nil {
		return nil, nil, errors.Internal("failed to delete upload session").WithError(err)
	}

	//nolint:errcheck
	s.content.RemoveTemp(session.SessionID)

	return bucket, object, nil
}

// uploadForSession resolves the owning bucket by id and runs the locked
// upload path.
func (s *Service) uploadForSession(ctx context.Context, session *models.ResumableSession, metadata *sessionMetadata, data []byte) (*models.Bucket, *models.Object, error) {
	var bucket models.Bucket

	if err := s.database.GetContext(ctx, &bucket, "SELECT * FROM buckets WHERE id = ?", session.BucketID); err != nil {
		return nil, nil, errors.Internal("failed to resolve session bucket").WithError(err)
	}

	key := lockKey(bucket.Name, session.ObjectName)

	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	object, err := s.uploadLocked(ctx, &bucket, &UploadParams{
		Bucket:         bucket.Name,
		Name:           session.ObjectName,
		Data:           data,
		ContentType:    metadata.ContentType,
		CustomMetadata: metadata.CustomMetadata,
		Preconditions:  metadata.Preconditions,
	})
	if err != nil {
		return nil, nil, err
	}

	return &bucket, object, nil
}

// SweepExpiredSessions removes sessions idle past the configured expiry,
// with their temp files.  Run by the lifecycle executor.
func (s *Service) SweepExpiredSessions(ctx context.Context) error {
	cutoff := s.clock.Now().Add(-s.options.SessionExpiry)

	expired, err := s.repos.Sessions.ListExpired(ctx, cutoff)
	if err != nil {
		return err
	}

	for i := range expired {
		if err := s.repos.Sessions.Delete(ctx, expired[i].SessionID); err != nil {
			return err
		}

		//nolint:errcheck
		s.content.RemoveTemp(expired[i].SessionID)

		log.FromContext(ctx).Info("expired upload session removed", "session", expired[i].SessionID, "object", expired[i].ObjectName)
	}

	return nil
}
