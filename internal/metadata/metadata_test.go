// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfeat/fetchcore/internal/kvstore"
	"github.com/onfeat/fetchcore/pkg/fstore"
)

func TestLoadServingInfo_DerivesTemporalAccuracyFromStreamingSchemaPresence(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	doc := `{
		"groupBy": {"name":"clicks","dataModel":"events","keyColumns":["user_id"]},
		"keySchema": "{}",
		"streamingSchema": "{}",
		"irSchema": "{}",
		"outputSchema": "{}",
		"outputColumns": ["amount_sum"],
		"batchEndMillis": 5000
	}`
	store.Put("FETCHCORE_METADATA", []byte("groupby:clicks"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	info, err := meta.LoadServingInfo("clicks")
	require.NoError(t, err)
	assert.Equal(t, fstore.AccuracyTemporal, info.Accuracy)
	assert.Equal(t, int64(5000), info.BatchEndMillis)
	assert.Equal(t, []string{"amount_sum"}, info.OutputColumns)
}

func TestLoadServingInfo_SnapshotWhenNoStreamingSchema(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	doc := `{"groupBy": {"name":"users","dataModel":"entities","keyColumns":["user_id"]}, "outputSchema": "{}"}`
	store.Put("FETCHCORE_METADATA", []byte("groupby:users"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	info, err := meta.LoadServingInfo("users")
	require.NoError(t, err)
	assert.Equal(t, fstore.AccuracySnapshot, info.Accuracy)
}

func TestLoadServingInfo_ExplicitAccuracyHintWinsOverStreamingPresence(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	// A streaming schema is present, but the operator hint explicitly
	// forces snapshot serving anyway.
	doc := `{
		"groupBy": {"name":"clicks","dataModel":"events","keyColumns":["user_id"],"accuracyHint":"snapshot"},
		"streamingSchema": "{}",
		"outputSchema": "{}"
	}`
	store.Put("FETCHCORE_METADATA", []byte("groupby:clicks"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	info, err := meta.LoadServingInfo("clicks")
	require.NoError(t, err)
	assert.Equal(t, fstore.AccuracySnapshot, info.Accuracy)
}

func TestLoadServingInfo_MissingDocumentErrors(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	_, err := meta.LoadServingInfo("ghost")
	assert.Error(t, err)
}

func TestLoadServingInfo_InvalidGroupByFailsValidation(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	// Missing the required keyColumns field.
	doc := `{"groupBy": {"name":"clicks","dataModel":"events"}, "outputSchema": "{}"}`
	store.Put("FETCHCORE_METADATA", []byte("groupby:clicks"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	_, err := meta.LoadServingInfo("clicks")
	assert.Error(t, err)
}

func TestLoadServingInfo_UsesLatestDocumentByMillis(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	older := `{"groupBy": {"name":"clicks","dataModel":"events","keyColumns":["user_id"]}, "batchEndMillis": 100, "outputSchema": "{}"}`
	newer := `{"groupBy": {"name":"clicks","dataModel":"events","keyColumns":["user_id"]}, "batchEndMillis": 200, "outputSchema": "{}"}`
	store.Put("FETCHCORE_METADATA", []byte("groupby:clicks"), fstore.TimedValue{Bytes: []byte(older), Millis: 1})
	store.Put("FETCHCORE_METADATA", []byte("groupby:clicks"), fstore.TimedValue{Bytes: []byte(newer), Millis: 2})

	info, err := meta.LoadServingInfo("clicks")
	require.NoError(t, err)
	assert.Equal(t, int64(200), info.BatchEndMillis)
}

func TestLoadJoinConfig_DecodesPartsAndDerivations(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	doc := `{
		"name": "checkout",
		"parts": [{"groupByName":"user_features","fullPrefix":"user"}],
		"derivations": [{"name":"doubled","expression":"user_age * 2"}]
	}`
	store.Put("FETCHCORE_METADATA", []byte("join:checkout"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	cfg, err := meta.LoadJoinConfig("checkout")
	require.NoError(t, err)
	require.Len(t, cfg.Parts, 1)
	assert.Equal(t, "user_features", cfg.Parts[0].GroupByName)
	require.Len(t, cfg.Derivations, 1)
	assert.Equal(t, "doubled", cfg.Derivations[0].Name)
}

func TestLoadJoinConfig_InvalidDocumentFailsValidation(t *testing.T) {
	store := kvstore.NewMemStore()
	meta := NewStore(store, "FETCHCORE_METADATA")

	// parts must have at least one entry.
	doc := `{"name": "checkout", "parts": []}`
	store.Put("FETCHCORE_METADATA", []byte("join:checkout"), fstore.TimedValue{Bytes: []byte(doc), Millis: 1})

	_, err := meta.LoadJoinConfig("checkout")
	assert.Error(t, err)
}
