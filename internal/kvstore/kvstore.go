// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package kvstore defines the interface the fetch core consumes to read
// opaque batch and streaming blobs, plus a couple of reference backends
// used for local development and tests. Production deployments bring
// their own Store implementation; this package never redesigns the
// on-disk format of the real key-value layer.
package kvstore

import (
	"context"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// Store is the only way the fetch core touches the key-value layer.
type Store interface {
	// MultiGet resolves every GetRequest in one round-trip. The returned
	// slice has the same length and order as reqs; a GetResponse carries
	// either values or a non-nil Err for that single request. A nil
	// overall error means the call itself succeeded, even if individual
	// requests failed.
	MultiGet(ctx context.Context, reqs []fstore.GetRequest) ([]fstore.GetResponse, error)
}

// Key joins dataset and the raw key bytes for result lookup after a
// MultiGet call, since GetRequest itself has no identity beyond its
// field values (it is a value-typed lookup key).
type Key struct {
	Dataset string
	Key     string
}

func KeyOf(req fstore.GetRequest) Key {
	return Key{Dataset: req.Dataset, Key: string(req.KeyBytes)}
}
