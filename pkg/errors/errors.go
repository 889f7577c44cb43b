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

// Package errors defines the API error taxonomy.  Repositories return typed
// sentinel errors, services translate those into HTTPErrors, and handlers
// call HandleError to render the uniform wire shape.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/trace"

	"github.com/eschercloudai/cumulus/pkg/util/log"
)

var (
	// ErrRequest is raised for all handler errors.
	ErrRequest = errors.New("request error")
)

// Code is the API level error code, spelled the way the modeled provider
// spells them on the wire.
type Code string

const (
	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeUnauthenticated    Code = "UNAUTHENTICATED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodeFailedPrecondition Code = "FAILED_PRECONDITION"
	CodeResourceExhausted  Code = "RESOURCE_EXHAUSTED"
	CodeInternal           Code = "INTERNAL"
)

// HTTPError wraps ErrRequest with contextual information that is used to
// propagate and create suitable responses.
type HTTPError struct {
	// status is the HTTP status code.
	status int

	// code is the API level code to return to the client.
	code Code

	// message is a human readable description returned to the client.
	message string

	// err is set when the originator was an error.  This is only used
	// for logging so as not to leak server internals to the client.
	err error

	// values are arbitrary key value pairs for logging.
	values []interface{}

	// retryAfter, when non-zero, emits a Retry-After header in seconds.
	retryAfter int
}

func newHTTPError(status int, code Code, message string) *HTTPError {
	return &HTTPError{
		status:  status,
		code:    code,
		message: message,
	}
}

// WithError augments the error with an error from a library.
func (e *HTTPError) WithError(err error) *HTTPError {
	e.err = err

	return e
}

// WithValues augments the error with a set of K/V pairs.
// Values should not use the "error" key as that's implicitly defined
// by WithError and could collide.
func (e *HTTPError) WithValues(values ...interface{}) *HTTPError {
	e.values = values

	return e
}

// WithRetryAfter sets the Retry-After hint in seconds.
func (e *HTTPError) WithRetryAfter(seconds int) *HTTPError {
	e.retryAfter = seconds

	return e
}

// Unwrap implements Go 1.13 errors.
func (e *HTTPError) Unwrap() error {
	return ErrRequest
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return e.message
}

// Status returns the HTTP status code.
func (e *HTTPError) Status() int {
	return e.status
}

// ErrorCode returns the API level error code.
func (e *HTTPError) ErrorCode() Code {
	return e.code
}

// errorInfo is the inner wire shape.
type errorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  Code   `json:"status"`

	// RequestID is the correlation ID, emitted on server errors only, so
	// users can cross reference against the logs.
	RequestID string `json:"requestId,omitempty"`
}

// errorBody is the uniform response envelope.
type errorBody struct {
	Error errorInfo `json:"error"`
}

// Write returns the error code and description to the client.
func (e *HTTPError) Write(w http.ResponseWriter, r *http.Request) {
	// Log out any detail from the error that shouldn't be reported to
	// the client.  Do it before things can error and return.
	logger := log.FromContext(r.Context())

	details := []interface{}{
		"status", e.status,
		"code", e.code,
	}

	if e.message != "" {
		details = append(details, "detail", e.message)
	}

	if e.err != nil {
		details = append(details, "error", e.err.Error())
	}

	if e.values != nil {
		details = append(details, e.values...)
	}

	logger.Info("error detail", details...)

	w.Header().Add("Cache-Control", "no-cache")
	w.Header().Add("Content-Type", "application/json")

	if e.retryAfter > 0 {
		w.Header().Add("Retry-After", strconv.Itoa(e.retryAfter))
	}

	w.WriteHeader(e.status)

	info := errorInfo{
		Code:    e.status,
		Message: e.message,
		Status:  e.code,
	}

	// Server errors carry the correlation ID so operators can find the
	// matching log lines.
	if e.status >= http.StatusInternalServerError {
		if spanContext := trace.SpanContextFromContext(r.Context()); spanContext.HasTraceID() {
			info.RequestID = spanContext.TraceID().String()
		}
	}

	body, err := json.Marshal(errorBody{Error: info})
	if err != nil {
		logger.Error(err, "failed to marshal error response")

		return
	}

	if _, err := w.Write(body); err != nil {
		logger.Error(err, "failed to write error response")

		return
	}
}

// InvalidArgument indicates a malformed or out of range client input.
func InvalidArgument(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, CodeInvalidArgument, message)
}

// Unauthenticated indicates missing or bad credentials.
func Unauthenticated(message string) *HTTPError {
	return newHTTPError(http.StatusUnauthorized, CodeUnauthenticated, message)
}

// PermissionDenied indicates the caller is known but not allowed.
func PermissionDenied(message string) *HTTPError {
	return newHTTPError(http.StatusForbidden, CodePermissionDenied, message)
}

// NotFound indicates the named resource does not exist.
func NotFound(message string) *HTTPError {
	return newHTTPError(http.StatusNotFound, CodeNotFound, message)
}

// AlreadyExists indicates a duplicate name within a scope.
func AlreadyExists(message string) *HTTPError {
	return newHTTPError(http.StatusConflict, CodeAlreadyExists, message)
}

// PreconditionFailed indicates an if-match style condition did not hold.
func PreconditionFailed(message string) *HTTPError {
	return newHTTPError(http.StatusPreconditionFailed, CodePreconditionFailed, message)
}

// FailedPrecondition indicates the resource is in a state that forbids the
// operation e.g. deleting a non-empty bucket or the primary NIC.
func FailedPrecondition(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, CodeFailedPrecondition, message)
}

// ResourceExhausted indicates the caller has been rate limited.
func ResourceExhausted(message string) *HTTPError {
	return newHTTPError(http.StatusTooManyRequests, CodeResourceExhausted, message)
}

// Internal tells the client we are at fault, this should never be seen
// in production.  If so then our testing needs to improve.
func Internal(message string) *HTTPError {
	return newHTTPError(http.StatusInternalServerError, CodeInternal, message)
}

// OAuth2InvalidRequest indicates a malformed token request.
func OAuth2InvalidRequest(message string) *HTTPError {
	return newHTTPError(http.StatusBadRequest, CodeInvalidArgument, message)
}

// OAuth2AccessDenied tells the client the authentication failed e.g. a token
// has expired and needs reauthentication.
func OAuth2AccessDenied(message string) *HTTPError {
	return newHTTPError(http.StatusUnauthorized, CodeUnauthenticated, message)
}

// toHTTPError is a handy unwrapper to get a HTTP error from a generic one.
func toHTTPError(err error) *HTTPError {
	var httpErr *HTTPError

	if !errors.As(err, &httpErr) {
		return nil
	}

	return httpErr
}

// StatusOf returns the HTTP status an error maps to.
func StatusOf(err error) int {
	if httpError := toHTTPError(err); httpError != nil {
		return httpError.status
	}

	return http.StatusInternalServerError
}

// IsNotFound tells you whether the error is a 404.
func IsNotFound(err error) bool {
	httpError := toHTTPError(err)

	return httpError != nil && httpError.status == http.StatusNotFound
}

// IsAlreadyExists tells you whether the error is a 409.
func IsAlreadyExists(err error) bool {
	httpError := toHTTPError(err)

	return httpError != nil && httpError.status == http.StatusConflict
}

// IsPreconditionFailed tells you whether the error is a 412.
func IsPreconditionFailed(err error) bool {
	httpError := toHTTPError(err)

	return httpError != nil && httpError.status == http.StatusPreconditionFailed
}

// HandleError is the top level error handler that should be called from all
// path handlers on error.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	logger := log.FromContext(r.Context())

	if httpError := toHTTPError(err); httpError != nil {
		httpError.Write(w, r)

		return
	}

	logger.Error(err, "unhandled error")

	Internal(fmt.Sprintf("unhandled error: %v", ErrRequest)).WithError(err).Write(w, r)
}
