// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package kvstore

import (
	"context"
	"sync"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// MemStore is an in-memory reference Store used for local development and
// tests. It keeps every written value forever (no retention), matching
// only the interface, never the production backend's storage engine.
type MemStore struct {
	mu   sync.RWMutex
	data map[Key][]fstore.TimedValue
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[Key][]fstore.TimedValue{}}
}

// Put appends a value for (dataset, keyBytes); call order is irrelevant.
// MultiGet returns every stored value whose millis are at or after the
// request's AfterMillis (all of them when AfterMillis is 0); any further
// staleness filtering is left to the caller.
func (m *MemStore) Put(dataset string, keyBytes []byte, value fstore.TimedValue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := Key{Dataset: dataset, Key: string(keyBytes)}
	m.data[k] = append(m.data[k], value)
}

func (m *MemStore) MultiGet(_ context.Context, reqs []fstore.GetRequest) ([]fstore.GetResponse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]fstore.GetResponse, len(reqs))
	for i, req := range reqs {
		stored := m.data[KeyOf(req)]
		var values []fstore.TimedValue
		for _, v := range stored {
			if req.AfterMillis > 0 && v.Millis < req.AfterMillis {
				continue
			}
			values = append(values, v)
		}
		out[i] = fstore.GetResponse{Request: req, Values: values}
	}
	return out, nil
}
