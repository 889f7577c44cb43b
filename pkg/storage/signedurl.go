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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"

	"github.com/eschercloudai/cumulus/pkg/errors"
)

const (
	// signedURLAlgorithm is the only algorithm the signed endpoints accept.
	signedURLAlgorithm = "GOOG4-HMAC-SHA256"

	// maxSignedURLExpiry caps how far out a URL may be valid, 7 days.
	maxSignedURLExpiry = int64(7 * 24 * 60 * 60)
)

// signedPath is the canonical request path covered by the signature.
func signedPath(bucket, object string) string {
	return "/signed/" + bucket + "/" + object
}

// sign computes the URL-safe unpadded signature over (method, path, expiry).
func (s *Service) sign(method, path string, expiry int64) string {
	mac := hmac.New(sha256.New, []byte(s.options.SignedURLSecret))

	fmt.Fprintf(mac, "%s\n%s\n%d", method, path, expiry)

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// SignURL creates a time-bounded URL granting method access to an object
// without credentials.  The object must exist for GET, PUT may target a new
// name.
func (s *Service) SignURL(ctx context.Context, bucketName, objectName, method string, expiresIn int64) (string, error) {
	if method != "GET" && method != "PUT" {
		return "", errors.InvalidArgument("signed URLs support GET and PUT only").WithValues("method", method)
	}

	if expiresIn <= 0 || expiresIn > maxSignedURLExpiry {
		return "", errors.InvalidArgument("expiry must be between 1 second and 7 days").WithValues("expiresIn", expiresIn)
	}

	if _, err := s.GetBucket(ctx, bucketName); err != nil {
		return "", err
	}

	if method == "GET" {
		if _, err := s.GetObject(ctx, bucketName, objectName, nil); err != nil {
			return "", err
		}
	}

	path := signedPath(bucketName, objectName)
	expiry := s.clock.Now().Unix() + expiresIn

	query := url.Values{}
	query.Set("X-Goog-Algorithm", signedURLAlgorithm)
	query.Set("X-Goog-Expires", strconv.FormatInt(expiresIn, 10))
	query.Set("X-Goog-Timestamp", strconv.FormatInt(expiry, 10))
	query.Set("X-Goog-Signature", s.sign(method, path, expiry))

	return s.options.EmulatorHost + path + "?" + query.Encode(), nil
}

// VerifySignedURL checks a signed request.  One recomputation against the
// expiry carried in the URL, constant-time compare, expired timestamps are
// rejected before any resource lookup.
func (s *Service) VerifySignedURL(method, bucket, object string, query url.Values) error {
	if query.Get("X-Goog-Algorithm") != signedURLAlgorithm {
		return errors.InvalidArgument("unsupported signing algorithm")
	}

	expiry, err := strconv.ParseInt(query.Get("X-Goog-Timestamp"), 10, 64)
	if err != nil {
		return errors.InvalidArgument("malformed signature timestamp")
	}

	if s.clock.Now().Unix() > expiry {
		return errors.PermissionDenied("signed URL has expired")
	}

	expected := s.sign(method, signedPath(bucket, object), expiry)

	if !hmac.Equal([]byte(expected), []byte(query.Get("X-Goog-Signature"))) {
		return errors.PermissionDenied("signature mismatch")
	}

	return nil
}
