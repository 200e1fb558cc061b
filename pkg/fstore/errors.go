// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fstore

import "fmt"

// Kind is the structured failure taxonomy attached to a Response. It is
// never returned as a bare Go error across a batch boundary — every
// per-request outcome is a value, not a panic.
type Kind string

const (
	MetadataMissing Kind = "MetadataMissing"
	EncodeKeys      Kind = "EncodeKeys"
	BatchMissing    Kind = "BatchMissing"
	Decode          Kind = "Decode"
	Aggregate       Kind = "Aggregate"
	Timeout         Kind = "Timeout"
	KvStore         Kind = "KvStore"
)

// Failure is the structured, response-scoped error value described in the
// error handling design: a failed Response carries one of these instead of
// aborting the batch it belongs to.
type Failure struct {
	Kind       Kind
	Message    string
	Suppressed error // the original error, when a fallback path also failed
}

func (f *Failure) Error() string {
	if f == nil {
		return ""
	}
	if f.Suppressed != nil {
		return fmt.Sprintf("%s: %s (suppressed: %v)", f.Kind, f.Message, f.Suppressed)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

func NewFailure(kind Kind, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapFailure(kind Kind, suppressed error, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Message: fmt.Sprintf(format, args...), Suppressed: suppressed}
}
