// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package logsampler

import (
	"context"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// JoinFetcher is the layer logsampler wraps — satisfied by *join.Planner.
type JoinFetcher interface {
	FetchJoins(ctx context.Context, requests []fstore.Request) []fstore.Response
}

// Wrapped is the join fetcher fronted by a Sampler: callers use it exactly
// like the underlying planner, with sampling happening transparently
// after each response.
type Wrapped struct {
	Inner   JoinFetcher
	Sampler *Sampler
}

func Wrap(inner JoinFetcher, sampler *Sampler) *Wrapped {
	return &Wrapped{Inner: inner, Sampler: sampler}
}

func (w *Wrapped) FetchJoins(ctx context.Context, requests []fstore.Request) []fstore.Response {
	responses := w.Inner.FetchJoins(ctx, requests)
	for _, resp := range responses {
		w.Sampler.Observe(resp.Request.Name, resp)
	}
	return responses
}
