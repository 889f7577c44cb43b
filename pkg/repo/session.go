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

package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eschercloudai/cumulus/pkg/models"
)

// SessionRepo stores in-flight resumable upload sessions.
type SessionRepo struct {
	q Queryer
}

func (r *SessionRepo) Create(ctx context.Context, session *models.ResumableSession) error {
	_, err := r.q.ExecContext(ctx,
		`INSERT INTO resumable_sessions (session_id, bucket_id, object_name, metadata_json,
			current_offset, total_size, temp_path, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.SessionID, session.BucketID, session.ObjectName, session.MetadataJSON,
		session.CurrentOffset, session.TotalSize, session.TempPath, session.CreatedAt)

	return translate(err)
}

func (r *SessionRepo) Get(ctx context.Context, sessionID string) (*models.ResumableSession, error) {
	var session models.ResumableSession

	if err := sqlx.GetContext(ctx, r.q, &session,
		`SELECT * FROM resumable_sessions WHERE session_id = ?`, sessionID); err != nil {
		return nil, translate(err)
	}

	return &session, nil
}

// UpdateOffset advances the append offset.  The previous offset is part of
// the predicate so a failed chunk can never advance the session.
func (r *SessionRepo) UpdateOffset(ctx context.Context, sessionID string, from, to int64) error {
	result, err := r.q.ExecContext(ctx,
		`UPDATE resumable_sessions SET current_offset = ? WHERE session_id = ? AND current_offset = ?`,
		to, sessionID, from)
	if err != nil {
		return translate(err)
	}

	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrConflict
	}

	return nil
}

func (r *SessionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM resumable_sessions WHERE session_id = ?`, sessionID)

	return translate(err)
}

// ListByBucket returns a bucket's in-flight sessions, bucket purge removes
// their temp regions.
func (r *SessionRepo) ListByBucket(ctx context.Context, bucketID string) ([]models.ResumableSession, error) {
	var sessions []models.ResumableSession

	if err := sqlx.SelectContext(ctx, r.q, &sessions,
		`SELECT * FROM resumable_sessions WHERE bucket_id = ?`, bucketID); err != nil {
		return nil, translate(err)
	}

	return sessions, nil
}

func (r *SessionRepo) DeleteByBucket(ctx context.Context, bucketID string) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM resumable_sessions WHERE bucket_id = ?`, bucketID)

	return translate(err)
}

// ListExpired returns sessions created before the cutoff.
func (r *SessionRepo) ListExpired(ctx context.Context, cutoff time.Time) ([]models.ResumableSession, error) {
	var sessions []models.ResumableSession

	if err := sqlx.SelectContext(ctx, r.q, &sessions,
		`SELECT * FROM resumable_sessions WHERE created_at < ?`, cutoff); err != nil {
		return nil, translate(err)
	}

	return sessions, nil
}
