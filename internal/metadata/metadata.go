// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package metadata resolves GroupBy and Join configuration documents from
// the metadata dataset, and turns a GroupBy document into the ServingInfo
// the rest of the fetch core runs on. Every document is validated against
// its embedded JSON Schema before use, the same read-then-validate step
// the teacher applies to every config file it loads.
package metadata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/onfeat/fetchcore/internal/kvstore"
	"github.com/onfeat/fetchcore/pkg/fstore"
)

// groupByDocument is the envelope stored for one GroupBy in the metadata
// dataset: the declaration plus the compiled Avro schemas and watermark a
// ServingInfo is built from.
type groupByDocument struct {
	GroupBy         fstore.GroupByConfig `json:"groupBy"`
	KeySchema       string               `json:"keySchema"`
	StreamingSchema string               `json:"streamingSchema"`
	MutationSchema  string               `json:"mutationSchema"`
	IRSchema        string               `json:"irSchema"`
	OutputSchema    string               `json:"outputSchema"`
	OutputColumns   []string             `json:"outputColumns"`
	BatchEndMillis  int64                `json:"batchEndMillis"`
}

// Store resolves raw metadata documents by key. It is satisfied by a thin
// adapter over kvstore.Store scoped to one dataset name.
type Store struct {
	kv      kvstore.Store
	dataset string
}

func NewStore(kv kvstore.Store, dataset string) *Store {
	return &Store{kv: kv, dataset: dataset}
}

func (s *Store) fetch(ctx context.Context, key string) ([]byte, error) {
	resps, err := s.kv.MultiGet(ctx, []fstore.GetRequest{{
		Dataset:  s.dataset,
		KeyBytes: []byte(key),
	}})
	if err != nil {
		return nil, fmt.Errorf("metadata: multiget %q: %w", key, err)
	}
	if len(resps) != 1 {
		return nil, fmt.Errorf("metadata: unexpected response count for %q", key)
	}
	if resps[0].Err != nil {
		return nil, fmt.Errorf("metadata: fetching %q: %w", key, resps[0].Err)
	}
	if len(resps[0].Values) == 0 {
		return nil, fmt.Errorf("metadata: no document for %q", key)
	}
	return latest(resps[0].Values).Bytes, nil
}

func latest(values []fstore.TimedValue) fstore.TimedValue {
	best := values[0]
	for _, v := range values[1:] {
		if v.Millis > best.Millis {
			best = v
		}
	}
	return best
}

// LoadServingInfo is a servinginfocache.Loader: it resolves the GroupBy
// document for name, validates it, and derives the ServingInfo the
// group-by fetcher runs on.
func (s *Store) LoadServingInfo(name string) (fstore.ServingInfo, error) {
	raw, err := s.fetch(context.Background(), groupByKey(name))
	if err != nil {
		return fstore.ServingInfo{}, err
	}

	if err := fstore.Validate(fstore.GroupByKind, bytes.NewReader(groupByField(raw))); err != nil {
		return fstore.ServingInfo{}, fmt.Errorf("metadata: validating groupby %q: %w", name, err)
	}

	var doc groupByDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fstore.ServingInfo{}, fmt.Errorf("metadata: decoding groupby %q: %w", name, err)
	}

	accuracy := fstore.AccuracySnapshot
	switch {
	case doc.GroupBy.AccuracyHint != nil:
		accuracy = *doc.GroupBy.AccuracyHint
	case doc.StreamingSchema != "":
		accuracy = fstore.AccuracyTemporal
	}

	return fstore.ServingInfo{
		Name:            name,
		Config:          doc.GroupBy,
		KeySchema:       doc.KeySchema,
		StreamingSchema: doc.StreamingSchema,
		MutationSchema:  doc.MutationSchema,
		IRSchema:        doc.IRSchema,
		OutputSchema:    doc.OutputSchema,
		OutputColumns:   doc.OutputColumns,
		Accuracy:        accuracy,
		BatchEndMillis:  doc.BatchEndMillis,
	}, nil
}

// LoadJoinConfig is a join.ConfigLoader: it resolves and validates the
// Join document for name.
func (s *Store) LoadJoinConfig(name string) (fstore.JoinConfig, error) {
	raw, err := s.fetch(context.Background(), joinKey(name))
	if err != nil {
		return fstore.JoinConfig{}, err
	}

	if err := fstore.Validate(fstore.JoinKind, bytes.NewReader(raw)); err != nil {
		return fstore.JoinConfig{}, fmt.Errorf("metadata: validating join %q: %w", name, err)
	}

	var cfg fstore.JoinConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fstore.JoinConfig{}, fmt.Errorf("metadata: decoding join %q: %w", name, err)
	}
	return cfg, nil
}

func groupByKey(name string) string { return "groupby:" + name }
func joinKey(name string) string    { return "join:" + name }

// groupByField re-marshals just the "groupBy" field so it can be checked
// against the GroupByConfig schema on its own, since the stored envelope
// also carries the compiled schemas and watermark the schema doesn't know
// about.
func groupByField(raw []byte) []byte {
	var envelope struct {
		GroupBy json.RawMessage `json:"groupBy"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.GroupBy == nil {
		return []byte("{}")
	}
	return envelope.GroupBy
}
