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

package storage_test

import (
	"bytes"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eschercloudai/cumulus/pkg/errors"
	"github.com/eschercloudai/cumulus/pkg/storage"
)

func multipartBody(t *testing.T, metadata string, media []byte, mediaType string) (string, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)

	metadataHeader := textproto.MIMEHeader{}
	metadataHeader.Set("Content-Type", "application/json")

	part, err := writer.CreatePart(metadataHeader)
	require.NoError(t, err)

	_, err = part.Write([]byte(metadata))
	require.NoError(t, err)

	mediaHeader := textproto.MIMEHeader{}
	if mediaType != "" {
		mediaHeader.Set("Content-Type", mediaType)
	}

	part, err = writer.CreatePart(mediaHeader)
	require.NoError(t, err)

	_, err = part.Write(media)
	require.NoError(t, err)

	require.NoError(t, writer.Close())

	return "multipart/related; boundary=" + writer.Boundary(), buf
}

func TestParseMultipartUpload(t *testing.T) {
	t.Parallel()

	contentType, body := multipartBody(t,
		`{"name": "docs/a.txt", "contentType": "text/plain", "metadata": {"k": "v"}}`,
		[]byte("payload"), "")

	params, err := storage.ParseMultipartUpload(contentType, body)
	require.NoError(t, err)

	assert.Equal(t, "docs/a.txt", params.Name)
	assert.Equal(t, "text/plain", params.ContentType)
	assert.Equal(t, []byte("payload"), params.Data)
	assert.Equal(t, "v", params.CustomMetadata["k"])
}

func TestParseMultipartUploadMediaContentType(t *testing.T) {
	t.Parallel()

	// The media part's header wins when the metadata omits a content type.
	contentType, body := multipartBody(t, `{"name": "a.png"}`, []byte{0x89, 0x50}, "image/png")

	params, err := storage.ParseMultipartUpload(contentType, body)
	require.NoError(t, err)

	assert.Equal(t, "image/png", params.ContentType)
}

func TestParseMultipartUploadErrors(t *testing.T) {
	t.Parallel()

	_, err := storage.ParseMultipartUpload("application/json", bytes.NewBufferString("{}"))
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	_, err = storage.ParseMultipartUpload("multipart/related", bytes.NewBufferString(""))
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))

	contentType, body := multipartBody(t, `{"contentType": "text/plain"}`, []byte("x"), "")

	_, err = storage.ParseMultipartUpload(contentType, body)
	require.Error(t, err)
	assert.Equal(t, 400, errors.StatusOf(err))
}
