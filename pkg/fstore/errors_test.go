// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFailure_ErrorOnNilReceiverIsEmpty(t *testing.T) {
	var f *Failure
	assert.Equal(t, "", f.Error())
}

func TestNewFailure_FormatsMessageWithoutSuppressed(t *testing.T) {
	f := NewFailure(BatchMissing, "no value for key %q", "u1")
	assert.Equal(t, `BatchMissing: no value for key "u1"`, f.Error())
	assert.Nil(t, f.Suppressed)
}

func TestWrapFailure_IncludesSuppressedError(t *testing.T) {
	cause := errors.New("connection refused")
	f := WrapFailure(KvStore, cause, "fetching dataset %q", "clicks_batch")
	assert.Equal(t, `KvStore: fetching dataset "clicks_batch" (suppressed: connection refused)`, f.Error())
	assert.Equal(t, cause, f.Suppressed)
}
