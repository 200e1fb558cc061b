// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package fstore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate_GroupByKind_AcceptsWellFormedDocument(t *testing.T) {
	doc := `{"name":"clicks","dataModel":"events","keyColumns":["user_id"]}`
	assert.NoError(t, Validate(GroupByKind, strings.NewReader(doc)))
}

func TestValidate_GroupByKind_RejectsMissingRequiredField(t *testing.T) {
	doc := `{"name":"clicks","dataModel":"events"}`
	assert.Error(t, Validate(GroupByKind, strings.NewReader(doc)))
}

func TestValidate_GroupByKind_RejectsUnknownDataModel(t *testing.T) {
	doc := `{"name":"clicks","dataModel":"mystery","keyColumns":["user_id"]}`
	assert.Error(t, Validate(GroupByKind, strings.NewReader(doc)))
}

func TestValidate_JoinKind_AcceptsWellFormedDocument(t *testing.T) {
	doc := `{"name":"checkout","parts":[{"groupByName":"user_features","fullPrefix":"user"}]}`
	assert.NoError(t, Validate(JoinKind, strings.NewReader(doc)))
}

func TestValidate_JoinKind_RejectsEmptyParts(t *testing.T) {
	doc := `{"name":"checkout","parts":[]}`
	assert.Error(t, Validate(JoinKind, strings.NewReader(doc)))
}

func TestValidate_ConfigKind_AcceptsWellFormedDocument(t *testing.T) {
	doc := `{"knownGroupBys":["clicks"],"knownJoins":["checkout"]}`
	assert.NoError(t, Validate(ConfigKind, strings.NewReader(doc)))
}

func TestValidate_RejectsMalformedJSON(t *testing.T) {
	assert.Error(t, Validate(GroupByKind, strings.NewReader(`{not json`)))
}
