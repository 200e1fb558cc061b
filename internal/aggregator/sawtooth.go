// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package aggregator implements the sawtooth online aggregator: folding a
// batch intermediate representation with post-batch streaming rows at an
// arbitrary query time, honoring per-column windows and entity mutation
// semantics for streaming rows. The batch collapsed vector and every
// tail-hop bucket are folded as stored, without regard to window or query
// time; Aggregation.ResolutionMs is not read.
package aggregator

import (
	"fmt"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// Sawtooth is a pure, serving-info-bound folder: it carries no state of
// its own between calls.
type Sawtooth struct {
	Aggregations []fstore.Aggregation
}

func New(aggregations []fstore.Aggregation) *Sawtooth {
	return &Sawtooth{Aggregations: aggregations}
}

// LambdaAggregateFinalized folds streamingRows into batchIR at queryMillis
// and returns a finalized value vector aligned with the output codec's
// field-name order (one value per configured aggregation, in order).
//
// batchIR may be nil: the result is then produced from streaming rows
// alone. An empty streamingRows iterator finalizes the batch snapshot at
// queryMillis with no updates.
func (s *Sawtooth) LambdaAggregateFinalized(
	batchIR *fstore.BatchIR,
	streamingRows fstore.StreamingRowIter,
	queryMillis int64,
) ([]any, error) {
	accs := make([]accumulator, len(s.Aggregations))
	for i, agg := range s.Aggregations {
		accs[i] = newAccumulator(agg)
		if batchIR != nil {
			if i < len(batchIR.Collapsed) {
				accs[i].seedCollapsed(batchIR.Collapsed[i])
			}
			if i < len(batchIR.TailHops) {
				accs[i].seedTailHops(batchIR.TailHops[i])
			}
		}
	}

	for {
		row, ok := streamingRows.Next()
		if !ok {
			break
		}
		for i, agg := range s.Aggregations {
			if !withinWindow(agg, row.Millis, queryMillis) {
				continue
			}
			value, present := row.Values[agg.InputColumn]
			if !present {
				continue
			}
			if row.IsMutation {
				if row.IsBefore {
					if err := accs[i].subtract(value); err != nil {
						return nil, fmt.Errorf("aggregate %q: %w", agg.OutputName, err)
					}
				} else {
					if err := accs[i].add(value); err != nil {
						return nil, fmt.Errorf("aggregate %q: %w", agg.OutputName, err)
					}
				}
			} else {
				if err := accs[i].add(value); err != nil {
					return nil, fmt.Errorf("aggregate %q: %w", agg.OutputName, err)
				}
			}
		}
	}

	out := make([]any, len(accs))
	for i, acc := range accs {
		out[i] = acc.finalize()
	}
	return out, nil
}

// withinWindow reports whether a streaming row's timestamp falls inside
// the aggregation's window relative to queryMillis. A zero window means
// unbounded (all time since batch start).
func withinWindow(agg fstore.Aggregation, rowMillis, queryMillis int64) bool {
	if rowMillis > queryMillis {
		return false
	}
	if agg.WindowMs == 0 {
		return true
	}
	return rowMillis >= queryMillis-agg.WindowMs
}
