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
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"strings"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

// multipartMetadata is the JSON first part of a multipart/related upload.
type multipartMetadata struct {
	Name        string            `json:"name"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// ParseMultipartUpload splits a multipart/related body into object metadata
// and payload.  The first part must be JSON metadata naming the object, the
// second part is the media.
func ParseMultipartUpload(contentType string, body io.Reader) (*UploadParams, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, errors.InvalidArgument("malformed content type").WithError(err)
	}

	if !strings.HasPrefix(mediaType, "multipart/") {
		return nil, errors.InvalidArgument("expected a multipart content type").WithValues("contentType", mediaType)
	}

	boundary := params["boundary"]
	if boundary == "" {
		return nil, errors.InvalidArgument("multipart content type is missing a boundary")
	}

	reader := multipart.NewReader(body, boundary)

	metadataPart, err := reader.NextPart()
	if err != nil {
		return nil, errors.InvalidArgument("multipart body is missing the metadata part").WithError(err)
	}

	metadataBytes, err := io.ReadAll(metadataPart)
	if err != nil {
		return nil, errors.InvalidArgument("failed to read metadata part").WithError(err)
	}

	var metadata multipartMetadata

	if err := json.Unmarshal(metadataBytes, &metadata); err != nil {
		return nil, errors.InvalidArgument("metadata part is not valid JSON").WithError(err)
	}

	if metadata.Name == "" {
		return nil, errors.InvalidArgument("metadata part must include an object name")
	}

	mediaPart, err := reader.NextPart()
	if err != nil {
		return nil, errors.InvalidArgument("multipart body is missing the media part").WithError(err)
	}

	data, err := io.ReadAll(mediaPart)
	if err != nil {
		return nil, errors.InvalidArgument("failed to read media part").WithError(err)
	}

	uploadContentType := metadata.ContentType
	if uploadContentType == "" {
		uploadContentType = mediaPart.Header.Get("Content-Type")
	}

	return &UploadParams{
		Name:           metadata.Name,
		Data:           data,
		ContentType:    uploadContentType,
		CustomMetadata: metadata.Metadata,
	}, nil
}
