// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package coerr defines the controller's closed error taxonomy. Every
// misuse or internal failure that must cross the HTTP boundary is one of
// these kinds; nothing else is expected to escape the Worker.
package coerr

import "fmt"

// Kind is the fixed set of error categories the Frontend/Worker boundary
// maps to HTTP status codes.
type Kind int

const (
	InvalidUsage Kind = iota
	InvalidMethod
	InvalidPath
	ConfigErrorKind
	InternalErrorKind
	PreconditionFailed
)

// StatusCode returns the HTTP status associated with a Kind.
func (k Kind) StatusCode() int {
	switch k {
	case InvalidUsage:
		return 400
	case InvalidMethod:
		return 405
	case InvalidPath:
		return 404
	case ConfigErrorKind:
		return 500
	case PreconditionFailed:
		return 409
	default:
		return 500
	}
}

// Error is the concrete typed error carried through the Engine and Worker.
// Context carries optional structured detail serialized alongside the
// message at the HTTP boundary.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	return e.Message
}

// StatusCode satisfies the interface the Worker type-switches on.
func (e *Error) StatusCode() int { return e.Kind.StatusCode() }

func newErr(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Message: fmt.Sprintf(format, args...)}
}

// InvalidUsageError reports client misuse of an otherwise-known endpoint
// or built-in: an unresolvable blocklist host, a bad administrative
// payload, or a reserved or existing snapshot name. A request body that
// is not valid JSON is not reported with it (the Frontend decodes such a
// body as empty), and a missing or mistyped declared value yields an
// unsuccessful Result rather than this error.
func InvalidUsageError(format string, args ...any) *Error {
	return newErr(InvalidUsage, format, args...)
}

// InvalidMethodError reports a request method not accepted by the
// matched endpoint.
func InvalidMethodError(format string, args ...any) *Error {
	return newErr(InvalidMethod, format, args...)
}

// InvalidPathError reports an unknown endpoint name.
func InvalidPathError(format string, args ...any) *Error {
	return newErr(InvalidPath, format, args...)
}

// ConfigError reports a fatal configuration-load failure.
func ConfigError(format string, args ...any) *Error {
	return newErr(ConfigErrorKind, format, args...)
}

// InternalError reports any other unexpected failure (state I/O, checks
// misuse, etc).
func InternalError(format string, args ...any) *Error {
	return newErr(InternalErrorKind, format, args...)
}

// PreconditionFailedError reports an unmet schedule/require_state gate.
func PreconditionFailedError(format string, args ...any) *Error {
	return newErr(PreconditionFailed, format, args...)
}

// WithContext attaches structured detail and returns the same error for
// chaining at the construction site.
func (e *Error) WithContext(ctx map[string]any) *Error {
	e.Context = ctx
	return e
}

// As reports whether err is a *Error, mirroring the standard errors.As
// contract without requiring callers to import "errors" for this one check.
func As(err error) (*Error, bool) {
	ce, ok := err.(*Error)
	return ce, ok
}
