// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package groupby implements the key-value dispatcher: for each group-by
// request, encode keys, issue one batched multi-get across batch and
// optional streaming reads, decode, select the no-agg/snapshot/temporal
// path, and return a feature map.
package groupby

import (
	"context"
	"fmt"

	"github.com/onfeat/fetchcore/internal/aggregator"
	"github.com/onfeat/fetchcore/internal/codec"
	"github.com/onfeat/fetchcore/internal/kvstore"
	"github.com/onfeat/fetchcore/internal/servinginfocache"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// Fetcher is the group-by layer: a serving-info cache, a key-value store
// and a codec registry bound together with a bounded worker pool.
type Fetcher struct {
	Cache  *servinginfocache.Cache
	Store  kvstore.Store
	Codecs *codec.Registry
	Pool   *Pool
}

func New(cache *servinginfocache.Cache, store kvstore.Store, codecs *codec.Registry, pool *Pool) *Fetcher {
	if pool == nil {
		pool = NewPool(0)
	}
	return &Fetcher{Cache: cache, Store: store, Codecs: codecs, Pool: pool}
}

// plan is the per-request working state threaded from key encoding through
// to response assembly.
type plan struct {
	req        fstore.Request
	info       fstore.ServingInfo
	codecs     codec.Set
	failure    *fstore.Failure
	batchIdx   int // index into the shared GetRequest slice, -1 if none
	streamIdx  int // index into the shared GetRequest slice, -1 if none
}

// FetchGroupBys resolves a batch of group-by Requests. A failure for
// request i never affects the outcome of request j != i.
func (f *Fetcher) FetchGroupBys(ctx context.Context, requests []fstore.Request) []fstore.Response {
	plans := make([]plan, len(requests))
	var getReqs []fstore.GetRequest

	for i, req := range requests {
		p := plan{req: req, batchIdx: -1, streamIdx: -1}

		info, err := f.Cache.Get(req.Name)
		if err != nil {
			p.failure = fstore.WrapFailure(fstore.MetadataMissing, err, "no serving info for %q", req.Name)
			plans[i] = p
			continue
		}
		p.info = info

		codecs, err := f.Codecs.Build(info)
		if err != nil {
			p.failure = fstore.WrapFailure(fstore.Decode, err, "building codecs for %q", req.Name)
			plans[i] = p
			continue
		}
		needsOutput := info.Config.Aggregations == nil || !info.HasStreaming()
		if codecs.Key == nil || (needsOutput && codecs.Output == nil) ||
			(!needsOutput && (codecs.IR == nil || (codecs.StreamingRow == nil && codecs.MutationRow == nil))) {
			p.failure = fstore.NewFailure(fstore.Decode, "building codecs for %q: a schema this fetch needs is empty", req.Name)
			plans[i] = p
			continue
		}
		p.codecs = codecs

		keyBytes, err := codecs.Key.Encode(req.Keys)
		if err != nil {
			p.failure = fstore.WrapFailure(fstore.EncodeKeys, err, "encoding keys for %q", req.Name)
			plans[i] = p
			continue
		}

		p.batchIdx = len(getReqs)
		getReqs = append(getReqs, fstore.GetRequest{
			KeyBytes: keyBytes,
			Dataset:  kvstore.BatchDataset(req.Name),
		})

		if info.HasStreaming() {
			p.streamIdx = len(getReqs)
			getReqs = append(getReqs, fstore.GetRequest{
				KeyBytes:    keyBytes,
				Dataset:     kvstore.StreamingDataset(req.Name),
				AfterMillis: info.BatchEndMillis,
			})
		}

		plans[i] = p
	}

	var getResps []fstore.GetResponse
	if len(getReqs) > 0 {
		resps, err := f.Store.MultiGet(ctx, getReqs)
		if err != nil {
			// Wholesale failure: every response in the batch that reached
			// this point becomes KvStore, per §7's propagation policy.
			failure := fstore.WrapFailure(fstore.KvStore, err, "multiget failed")
			for i := range plans {
				if plans[i].failure == nil {
					plans[i].failure = failure
				}
			}
			getResps = nil
		} else {
			getResps = resps
		}
	}

	responses := make([]fstore.Response, len(requests))
	f.Pool.Run(len(requests), func(i int) {
		responses[i] = f.resolve(plans[i], getResps)
	})
	return responses
}

func (f *Fetcher) resolve(p plan, getResps []fstore.GetResponse) fstore.Response {
	if p.failure != nil {
		return fstore.Response{Request: p.req, Failure: p.failure}
	}

	var batchResp *fstore.GetResponse
	if p.batchIdx >= 0 && p.batchIdx < len(getResps) {
		batchResp = &getResps[p.batchIdx]
	}
	var streamResp *fstore.GetResponse
	if p.streamIdx >= 0 && p.streamIdx < len(getResps) {
		streamResp = &getResps[p.streamIdx]
	}

	if batchResp != nil && batchResp.Err != nil {
		return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.KvStore, batchResp.Err, "batch read for %q", p.req.Name)}
	}

	info := p.info
	var batchValue *fstore.TimedValue
	if batchResp != nil {
		batchValue = maxTimedValue(batchResp.Values)
	}
	if batchValue != nil && batchValue.Millis < info.BatchEndMillis {
		// Stale bulk upload that wasn't pruned; treat as absent (§3, §8 prop 4).
		batchValue = nil
	}

	if batchValue != nil && batchValue.Millis > info.BatchEndMillis {
		refreshed, err := f.Cache.Force(p.req.Name)
		if err != nil {
			log.Warnf("groupby: stale serving info for %q, proceeding with cached entry: %v", p.req.Name, err)
		} else {
			info = refreshed
			codecs, cErr := f.Codecs.Build(info)
			if cErr == nil {
				p.codecs = codecs
			}
		}
	}

	if info.HasStreaming() && batchValue == nil {
		return fstore.Response{Request: p.req, Failure: fstore.NewFailure(fstore.BatchMissing, "no batch value for %q", p.req.Name)}
	}

	queryMillis := p.req.AtMillis

	switch {
	case info.Config.Aggregations == nil:
		if batchValue == nil {
			return fstore.Response{Request: p.req, Failure: fstore.NewFailure(fstore.BatchMissing, "no batch value for %q", p.req.Name)}
		}
		values, err := p.codecs.Output.DecodeMap(batchValue.Bytes)
		if err != nil {
			return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.Decode, err, "no-agg decode for %q", p.req.Name)}
		}
		return fstore.Response{Request: p.req, Values: values}

	case !info.HasStreaming():
		values, err := p.codecs.Output.DecodeMap(batchValue.Bytes)
		if err != nil {
			return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.Decode, err, "snapshot decode for %q", p.req.Name)}
		}
		return fstore.Response{Request: p.req, Values: values}

	default:
		var batchIR *fstore.BatchIR
		if batchValue != nil {
			ir, err := p.codecs.IR.Decode(batchValue.Bytes)
			if err != nil {
				return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.Decode, err, "ir decode for %q", p.req.Name)}
			}
			batchIR = &ir
		}

		rows, err := decodeStreamingRows(p, streamResp)
		if err != nil {
			return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.Decode, err, "streaming decode for %q", p.req.Name)}
		}

		agg := aggregator.New(info.Config.Aggregations)
		finalized, err := agg.LambdaAggregateFinalized(batchIR, fstore.NewSliceRowIter(rows), effectiveQueryMillis(queryMillis))
		if err != nil {
			return fstore.Response{Request: p.req, Failure: fstore.WrapFailure(fstore.Aggregate, err, "aggregation for %q", p.req.Name)}
		}

		values := make(map[string]any, len(finalized))
		for i, col := range info.OutputColumns {
			if i < len(finalized) {
				values[col] = finalized[i]
			}
		}
		return fstore.Response{Request: p.req, Values: values}
	}
}

func decodeStreamingRows(p plan, streamResp *fstore.GetResponse) ([]fstore.StreamingRow, error) {
	if streamResp == nil {
		return nil, nil
	}
	if streamResp.Err != nil {
		return nil, fmt.Errorf("streaming read: %w", streamResp.Err)
	}

	rowCodec := p.codecs.StreamingRow
	if p.info.Config.DataModel == fstore.DataModelEntities && p.codecs.MutationRow != nil {
		rowCodec = p.codecs.MutationRow
	}

	rows := make([]fstore.StreamingRow, 0, len(streamResp.Values))
	for _, tv := range streamResp.Values {
		if tv.Millis < p.info.BatchEndMillis {
			// Staleness filter (§3, §8 prop 3): never reaches the aggregator.
			continue
		}
		row, err := rowCodec.Decode(tv)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func maxTimedValue(values []fstore.TimedValue) *fstore.TimedValue {
	if len(values) == 0 {
		return nil
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.Millis > best.Millis {
			best = v
		}
	}
	return &best
}

func effectiveQueryMillis(atMillis int64) int64 {
	if atMillis > 0 {
		return atMillis
	}
	return nowMillis()
}
