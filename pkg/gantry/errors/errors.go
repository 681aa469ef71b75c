/*
Copyright 2026 The Gantry Authors

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

// Package errors defines the error kinds surfaced by the engine and their
// translation to HTTP status codes. Workers record error text on the task
// they fail; only the API layer maps kinds to responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an engine error.
type Kind string

const (
	Validation          Kind = "validation"
	NotFound            Kind = "not_found"
	Conflict            Kind = "conflict"
	SignatureInvalid    Kind = "signature_invalid"
	AuthRequired        Kind = "auth_required"
	RepoUnreachable     Kind = "repo_unreachable"
	DockerfileMissing   Kind = "dockerfile_missing"
	DockerfileMalformed Kind = "dockerfile_malformed"
	TemplateRender      Kind = "template_render_error"
	InvalidResourcePath Kind = "invalid_resource_path"
	BuildFailed         Kind = "build_failed"
	PushFailed          Kind = "push_failed"
	HostNotFound        Kind = "host_not_found"
	RemoteExecFailed    Kind = "remote_exec_failed"
	Internal            Kind = "internal"
)

// Error carries a kind alongside the message and an optional cause.
type Error struct {
	kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Kind() Kind { return e.kind }

// New returns an error of the given kind.
func New(kind Kind, msg string) error {
	return &Error{kind: kind, msg: msg}
}

// Newf returns an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and a message. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: msg, cause: err}
}

// Wrapf annotates err with a kind and a formatted message. A nil err yields nil.
func Wrapf(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{kind: kind, msg: fmt.Sprintf(format, args...), cause: err}
}

// KindOf reports the kind of err, walking wrapped causes. Errors without a
// kind report Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return Internal
}

// IsKind reports whether err or any of its causes carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// StatusCode maps an error to the HTTP status the API responds with.
func StatusCode(err error) int {
	switch KindOf(err) {
	case Validation, DockerfileMissing, DockerfileMalformed, TemplateRender, InvalidResourcePath:
		return http.StatusBadRequest
	case AuthRequired, SignatureInvalid:
		return http.StatusUnauthorized
	case NotFound, HostNotFound:
		return http.StatusNotFound
	case Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
