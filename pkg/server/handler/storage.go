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

package handler

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eschercloudai/cumulus/pkg/constants"
	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/models"
	"github.com/eschercloudai/cumulus/pkg/server/util"
	"github.com/eschercloudai/cumulus/pkg/server/validation"
	"github.com/eschercloudai/cumulus/pkg/storage"
)

// objectName extracts the wildcard tail of the route, object names may
// contain slashes so they cannot be a plain URL parameter.
func objectName(r *http.Request) (string, error) {
	raw := chi.URLParam(r, "*")

	name, err := url.PathUnescape(raw)
	if err != nil {
		return "", errors.InvalidArgument("malformed object name").WithError(err)
	}

	if name == "" {
		return "", errors.InvalidArgument("object name is required")
	}

	return name, nil
}

// queryInt64 parses an optional integer query parameter.
func queryInt64(r *http.Request, key string) (*int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		//nolint:nilnil
		return nil, nil
	}

	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, errors.InvalidArgument("malformed integer parameter").WithValues("parameter", key).WithError(err)
	}

	return &value, nil
}

// preconditionInt64 reads a precondition from its query parameter, falling
// back to the equivalent request headers some clients send instead.
func preconditionInt64(r *http.Request, key string, headers ...string) (*int64, error) {
	value, err := queryInt64(r, key)
	if err != nil || value != nil {
		return value, err
	}

	for _, header := range headers {
		raw := r.Header.Get(header)
		if raw == "" {
			continue
		}

		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, errors.InvalidArgument("malformed precondition header").WithValues("header", header).WithError(err)
		}

		return &parsed, nil
	}

	//nolint:nilnil
	return nil, nil
}

// preconditionsFromQuery lifts the standard precondition parameters.
func preconditionsFromQuery(r *http.Request) (storage.Preconditions, error) {
	var preconditions storage.Preconditions

	var err error

	if preconditions.IfGenerationMatch, err = preconditionInt64(r, "ifGenerationMatch", "X-Goog-If-Generation-Match", "If-Generation-Match"); err != nil {
		return preconditions, err
	}

	if preconditions.IfGenerationNotMatch, err = queryInt64(r, "ifGenerationNotMatch"); err != nil {
		return preconditions, err
	}

	if preconditions.IfMetagenerationMatch, err = preconditionInt64(r, "ifMetagenerationMatch", "X-Goog-If-Metageneration-Match", "If-Metageneration-Match"); err != nil {
		return preconditions, err
	}

	if preconditions.IfMetagenerationNotMatch, err = queryInt64(r, "ifMetagenerationNotMatch"); err != nil {
		return preconditions, err
	}

	return preconditions, nil
}

// bucketRequest is the bucket create/patch wire shape.
type bucketRequest struct {
	Name                string                     `json:"name"`
	Location            string                     `json:"location"`
	StorageClass        string                     `json:"storageClass"`
	Versioning          *versioningResource        `json:"versioning"`
	ACL                 *string                    `json:"acl"`
	Labels              map[string]string          `json:"labels"`
	Lifecycle           *lifecycleResource         `json:"lifecycle"`
	NotificationConfigs models.NotificationConfigs `json:"notificationConfigs"`
	CORS                models.CORSRules           `json:"cors"`
}

func (h *Handler) projectFromQuery(r *http.Request) string {
	if project := r.URL.Query().Get("project"); project != "" {
		return project
	}

	return constants.DefaultProject
}

func (h *Handler) createBucket(w http.ResponseWriter, r *http.Request) {
	projectID := h.projectFromQuery(r)

	if err := h.authorize(r, "project", projectID, "storage.buckets.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request bucketRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("name", request.Name).
		Pattern("name", request.Name, validation.BucketName).
		NoSQL("name", request.Name).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &storage.BucketParams{
		Name:                request.Name,
		Location:            request.Location,
		StorageClass:        request.StorageClass,
		Labels:              request.Labels,
		NotificationConfigs: request.NotificationConfigs,
		CORSConfig:          request.CORS,
	}

	if request.Versioning != nil {
		params.VersioningEnabled = request.Versioning.Enabled
	}

	if request.ACL != nil {
		params.ACL = models.BucketACL(*request.ACL)
	}

	if request.Lifecycle != nil {
		params.LifecycleConfig = request.Lifecycle.Rule
	}

	bucket, err := h.storage.CreateBucket(r.Context(), projectID, params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, bucketToResource(bucket))
}

func (h *Handler) listBuckets(w http.ResponseWriter, r *http.Request) {
	projectID := h.projectFromQuery(r)

	if err := h.authorize(r, "project", projectID, "storage.buckets.list"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	buckets, err := h.storage.ListBuckets(r.Context(), projectID)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "storage#buckets",
		Items: make([]interface{}, 0, len(buckets)),
	}

	for i := range buckets {
		response.Items = append(response.Items, bucketToResource(&buckets[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", name, "storage.buckets.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	bucket, err := h.storage.GetBucket(r.Context(), name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, bucketToResource(bucket))
}

func (h *Handler) patchBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", name, "storage.buckets.update"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request bucketRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	patch := &storage.BucketPatch{
		Labels: request.Labels,
	}

	if request.Versioning != nil {
		patch.VersioningEnabled = &request.Versioning.Enabled
	}

	if request.ACL != nil {
		acl := models.BucketACL(*request.ACL)
		patch.ACL = &acl
	}

	if request.Lifecycle != nil {
		patch.LifecycleConfig = &request.Lifecycle.Rule
	}

	if request.NotificationConfigs != nil {
		patch.NotificationConfigs = &request.NotificationConfigs
	}

	if request.CORS != nil {
		patch.CORSConfig = &request.CORS
	}

	bucket, err := h.storage.PatchBucket(r.Context(), name, patch)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, bucketToResource(bucket))
}

func (h *Handler) deleteBucket(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", name, "storage.buckets.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.storage.DeleteBucket(r.Context(), name); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listBucketEvents(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", name, "storage.buckets.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	events, err := h.storage.ListEvents(r.Context(), name)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:  "storage#notifications",
		Items: make([]interface{}, 0, len(events)),
	}

	for i := range events {
		response.Items = append(response.Items, events[i])
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

// authorizeObjectRead allows anonymous reads on publicRead buckets, anything
// else goes through policy evaluation.
func (h *Handler) authorizeObjectRead(r *http.Request, bucketName string) error {
	bucket, err := h.storage.GetBucket(r.Context(), bucketName)
	if err != nil {
		return err
	}

	if bucket.ACL == models.ACLPublicRead {
		return nil
	}

	return h.authorize(r, "bucket", bucketName, "storage.objects.get")
}

func (h *Handler) listObjects(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if err := h.authorizeObjectRead(r, bucket); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	query := r.URL.Query()

	result, err := h.storage.List(r.Context(), &storage.ListParams{
		Bucket:    bucket,
		Prefix:    query.Get("prefix"),
		Delimiter: query.Get("delimiter"),
		Versions:  query.Get("versions") == "true",
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	response := &listResponse{
		Kind:     "storage#objects",
		Items:    []interface{}{},
		Prefixes: result.Prefixes,
	}

	for i := range result.Items {
		response.Items = append(response.Items, objectToResource(bucket, &result.Items[i]))
	}

	for i := range result.Versions {
		response.Items = append(response.Items, versionToResource(bucket, &result.Versions[i]))
	}

	util.WriteJSONResponse(w, r, http.StatusOK, response)
}

func (h *Handler) getObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	name, err := objectName(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.authorizeObjectRead(r, bucket); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	generation, err := queryInt64(r, "generation")
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if r.URL.Query().Get("alt") == "media" {
		h.serveObjectMedia(w, r, bucket, name, generation)

		return
	}

	object, err := h.storage.GetObject(r.Context(), bucket, name, generation)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(bucket, object))
}

func (h *Handler) serveObjectMedia(w http.ResponseWriter, r *http.Request, bucket, name string, generation *int64) {
	object, data, err := h.storage.Download(r.Context(), bucket, name, generation)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.Header().Set("Content-Type", object.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Goog-Generation", formatInt64(object.Generation))
	w.Header().Set("X-Goog-Metageneration", formatInt64(object.Metageneration))
	w.Header().Set("X-Goog-Hash", "crc32c="+object.CRC32C+",md5="+object.MD5)

	w.WriteHeader(http.StatusOK)

	//nolint:errcheck
	w.Write(data)
}

func (h *Handler) patchObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	name, err := objectName(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.authorize(r, "bucket", bucket, "storage.objects.update"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request struct {
		ContentType *string           `json:"contentType"`
		Metadata    map[string]string `json:"metadata"`
		ACL         *string           `json:"acl"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	ifMetagenerationMatch, err := queryInt64(r, "ifMetagenerationMatch")
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	patch := &storage.MetadataPatch{
		ContentType:    request.ContentType,
		CustomMetadata: request.Metadata,
	}

	if request.ACL != nil {
		acl := models.BucketACL(*request.ACL)
		patch.ACL = &acl
	}

	object, err := h.storage.UpdateMetadata(r.Context(), bucket, name, patch, ifMetagenerationMatch)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(bucket, object))
}

func (h *Handler) deleteObject(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	name, err := objectName(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.authorize(r, "bucket", bucket, "storage.objects.delete"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	generation, err := queryInt64(r, "generation")
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.storage.Delete(r.Context(), bucket, name, generation); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// copyObject duplicates an object, the wire shape names both ends explicitly
// as object names can carry slashes.
func (h *Handler) copyObject(w http.ResponseWriter, r *http.Request) {
	var request struct {
		SourceBucket      string `json:"sourceBucket"`
		SourceObject      string `json:"sourceObject"`
		DestinationBucket string `json:"destinationBucket"`
		DestinationObject string `json:"destinationObject"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("sourceBucket", request.SourceBucket).
		Required("sourceObject", request.SourceObject).
		Required("destinationBucket", request.DestinationBucket).
		Required("destinationObject", request.DestinationObject).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	// The caller needs to read the source as well as write the destination.
	if err := h.authorizeObjectRead(r, request.SourceBucket); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.authorize(r, "bucket", request.DestinationBucket, "storage.objects.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	object, err := h.storage.Copy(r.Context(), request.SourceBucket, request.SourceObject, request.DestinationBucket, request.DestinationObject)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(request.DestinationBucket, object))
}

// upload is the multiplexed upload endpoint, dispatching on uploadType.
func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", bucket, "storage.objects.create"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	switch r.URL.Query().Get("uploadType") {
	case "", "media":
		h.uploadMedia(w, r, bucket)
	case "multipart":
		h.uploadMultipart(w, r, bucket)
	case "resumable":
		h.uploadResumable(w, r, bucket)
	default:
		errors.HandleError(w, r, errors.InvalidArgument("unsupported upload type").
			WithValues("uploadType", r.URL.Query().Get("uploadType")))
	}
}

func (h *Handler) uploadMedia(w http.ResponseWriter, r *http.Request, bucket string) {
	name := r.URL.Query().Get("name")

	preconditions, err := preconditionsFromQuery(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		errors.HandleError(w, r, errors.InvalidArgument("unable to read upload body").WithError(err))

		return
	}

	object, err := h.storage.Upload(r.Context(), &storage.UploadParams{
		Bucket:        bucket,
		Name:          name,
		Data:          data,
		ContentType:   r.Header.Get("Content-Type"),
		Preconditions: preconditions,
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(bucket, object))
}

func (h *Handler) uploadMultipart(w http.ResponseWriter, r *http.Request, bucket string) {
	params, err := storage.ParseMultipartUpload(r.Header.Get("Content-Type"), r.Body)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	preconditions, err := preconditionsFromQuery(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params.Bucket = bucket
	params.Preconditions = preconditions

	object, err := h.storage.Upload(r.Context(), params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(bucket, object))
}

func (h *Handler) uploadResumable(w http.ResponseWriter, r *http.Request, bucket string) {
	var request struct {
		Name        string            `json:"name"`
		ContentType string            `json:"contentType"`
		Metadata    map[string]string `json:"metadata"`
	}

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if name := r.URL.Query().Get("name"); name != "" {
		request.Name = name
	}

	preconditions, err := preconditionsFromQuery(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	params := &storage.ResumableParams{
		Bucket:         bucket,
		Name:           request.Name,
		ContentType:    request.ContentType,
		CustomMetadata: request.Metadata,
		Preconditions:  preconditions,
	}

	if raw := r.Header.Get("X-Upload-Content-Length"); raw != "" {
		total, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errors.HandleError(w, r, errors.InvalidArgument("malformed X-Upload-Content-Length").WithError(err))

			return
		}

		params.TotalSize = &total
	}

	session, err := h.storage.StartResumable(r.Context(), params)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	w.Header().Set("Location", "/upload/resumable/"+session.SessionID)

	util.WriteJSONResponse(w, r, http.StatusOK, map[string]string{
		"sessionId": session.SessionID,
		"uploadUrl": "/upload/resumable/" + session.SessionID,
	})
}

// parseContentRange understands "bytes start-end/total" and "bytes */total",
// total may be "*" while the size is unknown.
func parseContentRange(header string) (start, end int64, total *int64, query bool, err error) {
	malformed := errors.InvalidArgument("malformed Content-Range header").WithValues("contentRange", header)

	rest, ok := strings.CutPrefix(header, "bytes ")
	if !ok {
		return 0, 0, nil, false, malformed
	}

	rangePart, totalPart, ok := strings.Cut(rest, "/")
	if !ok {
		return 0, 0, nil, false, malformed
	}

	if totalPart != "*" {
		value, err := strconv.ParseInt(totalPart, 10, 64)
		if err != nil {
			return 0, 0, nil, false, malformed
		}

		total = &value
	}

	if rangePart == "*" {
		return 0, 0, total, true, nil
	}

	startPart, endPart, ok := strings.Cut(rangePart, "-")
	if !ok {
		return 0, 0, nil, false, malformed
	}

	if start, err = strconv.ParseInt(startPart, 10, 64); err != nil {
		return 0, 0, nil, false, malformed
	}

	if end, err = strconv.ParseInt(endPart, 10, 64); err != nil {
		return 0, 0, nil, false, malformed
	}

	if end < start {
		return 0, 0, nil, false, malformed
	}

	return start, end, total, false, nil
}

// uploadChunk accepts one chunk of a resumable session.  Incomplete uploads
// answer 308 with the committed range, completion answers with the object.
func (h *Handler) uploadChunk(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	header := r.Header.Get("Content-Range")
	if header == "" {
		errors.HandleError(w, r, errors.InvalidArgument("Content-Range header is required"))

		return
	}

	start, _, total, query, err := parseContentRange(header)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if query {
		session, err := h.storage.GetSession(r.Context(), sessionID)
		if err != nil {
			errors.HandleError(w, r, err)

			return
		}

		writeResumeIncomplete(w, session.CurrentOffset)

		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		errors.HandleError(w, r, errors.InvalidArgument("unable to read chunk body").WithError(err))

		return
	}

	result, err := h.storage.UploadChunk(r.Context(), sessionID, start, data, total)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if !result.Completed {
		writeResumeIncomplete(w, result.Offset)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(result.Bucket, result.Object))
}

func writeResumeIncomplete(w http.ResponseWriter, offset int64) {
	if offset > 0 {
		w.Header().Set("Range", fmt.Sprintf("bytes=0-%d", offset-1))
	}

	w.WriteHeader(http.StatusPermanentRedirect)
}

// signURLRequest asks for a pre-signed URL for an object.
type signURLRequest struct {
	Object           string `json:"object"`
	Method           string `json:"method"`
	ExpiresInSeconds int64  `json:"expiresInSeconds"`
}

func (h *Handler) signURL(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", bucket, "storage.objects.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request signURLRequest

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := validation.New().
		Required("object", request.Object).
		Enum("method", request.Method, http.MethodGet, http.MethodPut).
		Error(); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	signed, err := h.storage.SignURL(r.Context(), bucket, request.Object, request.Method, request.ExpiresInSeconds)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, map[string]string{
		"signedUrl": signed,
	})
}

// signedDownload serves GET on a pre-signed URL, no other credentials are
// consulted.
func (h *Handler) signedDownload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	name, err := objectName(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.storage.VerifySignedURL(http.MethodGet, bucket, name, r.URL.Query()); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	h.serveObjectMedia(w, r, bucket, name, nil)
}

// signedUpload serves PUT on a pre-signed URL.
func (h *Handler) signedUpload(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	name, err := objectName(r)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	if err := h.storage.VerifySignedURL(http.MethodPut, bucket, name, r.URL.Query()); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		errors.HandleError(w, r, errors.InvalidArgument("unable to read upload body").WithError(err))

		return
	}

	object, err := h.storage.Upload(r.Context(), &storage.UploadParams{
		Bucket:      bucket,
		Name:        name,
		Data:        data,
		ContentType: r.Header.Get("Content-Type"),
	})
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, objectToResource(bucket, object))
}

func (h *Handler) getBucketPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", bucket, "storage.buckets.get"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	policy, err := h.iam.GetPolicy(r.Context(), "bucket", bucket)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, policyToResource(policy))
}

func (h *Handler) setBucketPolicy(w http.ResponseWriter, r *http.Request) {
	bucket := chi.URLParam(r, "bucket")

	if err := h.authorize(r, "bucket", bucket, "storage.buckets.setIamPolicy"); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	var request policyResource

	if err := util.ReadJSONBody(r, &request); err != nil {
		errors.HandleError(w, r, err)

		return
	}

	policy, err := h.iam.SetPolicy(r.Context(), "bucket", bucket, request.Etag, request.Bindings)
	if err != nil {
		errors.HandleError(w, r, err)

		return
	}

	util.WriteJSONResponse(w, r, http.StatusOK, policyToResource(policy))
}
