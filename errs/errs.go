// Copyright (c) 2023 The KBase Project and its Contributors
// Copyright (c) 2023 Cohere Consulting, LLC
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// Package errs defines the typed error taxonomy shared by every submeta
// service. Each kind maps to exactly one HTTP status so the (out-of-scope)
// HTTP layer can translate an error without inspecting its message.
package errs

import "fmt"

// Detail carries the machine-readable portion of a user-visible failure:
// a human-readable reason and, for validation failures, the offending
// instance path (a JSON Pointer) or an XML line reference.
type Detail struct {
	Reason       string
	InstancePath string
}

// HTTPError is satisfied by every error type in this package, letting
// callers recover the HTTP status without a type switch over every kind.
type HTTPError interface {
	error
	HTTPStatus() int
	Detail() Detail
}

// BadInputError indicates malformed JSON/XML, a schema validation
// failure, a missing mandatory parameter, or bad pagination input.
type BadInputError struct {
	Reason       string
	InstancePath string
}

func (e BadInputError) Error() string {
	return fmt.Sprintf("bad input: %s", e.Reason)
}
func (e BadInputError) HTTPStatus() int { return 400 }
func (e BadInputError) Detail() Detail {
	return Detail{Reason: e.Reason, InstancePath: e.InstancePath}
}

// UnauthorizedError indicates a missing or expired session, or an
// invalid API key.
type UnauthorizedError struct {
	Reason string
}

func (e UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s", e.Reason)
}
func (e UnauthorizedError) HTTPStatus() int   { return 401 }
func (e UnauthorizedError) Detail() Detail    { return Detail{Reason: e.Reason} }

// ForbiddenError indicates the caller is authenticated but is not a
// member of the project that owns the requested resource.
type ForbiddenError struct {
	UserId, ProjectId string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("user '%s' is not a member of project '%s'", e.UserId, e.ProjectId)
}
func (e ForbiddenError) HTTPStatus() int { return 403 }
func (e ForbiddenError) Detail() Detail {
	return Detail{Reason: e.Error()}
}

// NotFoundError indicates an unknown id, or an unknown schema/workflow
// name.
type NotFoundError struct {
	Kind, Id string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s '%s' not found", e.Kind, e.Id)
}
func (e NotFoundError) HTTPStatus() int { return 404 }
func (e NotFoundError) Detail() Detail  { return Detail{Reason: e.Error()} }

// ConflictError indicates a single-instance violation, a duplicate
// (project, type, name), or an attempt to mutate a published submission.
type ConflictError struct {
	Reason string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s", e.Reason)
}
func (e ConflictError) HTTPStatus() int { return 409 }
func (e ConflictError) Detail() Detail  { return Detail{Reason: e.Reason} }

// UnsupportedMediaError indicates an XML patch, or an unknown content
// type.
type UnsupportedMediaError struct {
	ContentType string
}

func (e UnsupportedMediaError) Error() string {
	return fmt.Sprintf("unsupported media type '%s'", e.ContentType)
}
func (e UnsupportedMediaError) HTTPStatus() int { return 415 }
func (e UnsupportedMediaError) Detail() Detail  { return Detail{Reason: e.Error()} }

// UnprocessableError indicates a data-integrity breach, such as an
// object referenced from more than one submission.
type UnprocessableError struct {
	Reason string
}

func (e UnprocessableError) Error() string {
	return fmt.Sprintf("unprocessable: %s", e.Reason)
}
func (e UnprocessableError) HTTPStatus() int { return 422 }
func (e UnprocessableError) Detail() Detail  { return Detail{Reason: e.Reason} }

// ExternalClientError wraps a 4xx response from an external service: the
// caller's own data was rejected by the upstream. It is always surfaced
// to submeta's own caller as 502, since submeta is itself the client of
// the failing service.
type ExternalClientError struct {
	Service string
	Status  int
	Reason  string
}

func (e ExternalClientError) Error() string {
	return fmt.Sprintf("%s rejected request (status %d): %s", e.Service, e.Status, e.Reason)
}
func (e ExternalClientError) HTTPStatus() int { return 502 }
func (e ExternalClientError) Detail() Detail  { return Detail{Reason: e.Error()} }

// ExternalServerError wraps a 5xx response from an external service that
// persisted after the retry envelope was exhausted.
type ExternalServerError struct {
	Service string
	Status  int
	Reason  string
}

func (e ExternalServerError) Error() string {
	return fmt.Sprintf("%s server error (status %d) after retries: %s", e.Service, e.Status, e.Reason)
}
func (e ExternalServerError) HTTPStatus() int { return 502 }
func (e ExternalServerError) Detail() Detail  { return Detail{Reason: e.Error()} }

// ExternalTimeoutError indicates an external call did not complete
// within its deadline.
type ExternalTimeoutError struct {
	Service string
}

func (e ExternalTimeoutError) Error() string {
	return fmt.Sprintf("%s did not respond within deadline", e.Service)
}
func (e ExternalTimeoutError) HTTPStatus() int { return 504 }
func (e ExternalTimeoutError) Detail() Detail  { return Detail{Reason: e.Error()} }

// InternalError indicates a bug or a corrupt invariant — never a user
// mistake.
type InternalError struct {
	Reason string
}

func (e InternalError) Error() string {
	return fmt.Sprintf("internal error: %s", e.Reason)
}
func (e InternalError) HTTPStatus() int { return 500 }
func (e InternalError) Detail() Detail  { return Detail{Reason: e.Reason} }
