// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregator

import (
	"fmt"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

// accumulator folds one column's worth of collapsed batch state, tail
// hops and streaming rows into a single finalized value. The coarse-to-fine
// hop buckets are folded first (seedTailHops), then streaming rows refine
// the tail — the "sawtooth" shape this package is named for.
type accumulator struct {
	agg   fstore.Aggregation
	sum   float64
	count int64
	min   *float64
	max   *float64
	lastK []float64
}

func newAccumulator(agg fstore.Aggregation) accumulator {
	return accumulator{agg: agg}
}

func (a *accumulator) seedCollapsed(partial any) {
	a.foldPartial(partial)
}

func (a *accumulator) seedTailHops(hops [][]any) {
	for _, bucket := range hops {
		for _, partial := range bucket {
			a.foldPartial(partial)
		}
	}
}

// foldPartial absorbs a pre-aggregated batch partial without error
// propagation: batch IR is trusted input, produced by the upstream batch
// job against the same schema this accumulator was built from.
func (a *accumulator) foldPartial(partial any) {
	switch a.agg.Operation {
	case "count":
		if n, ok := toFloat(partial); ok {
			a.count += int64(n)
		}
	case "sum", "average":
		if n, ok := toFloat(partial); ok {
			a.sum += n
			a.count++
		}
	case "min":
		if n, ok := toFloat(partial); ok {
			a.foldMin(n)
		}
	case "max":
		if n, ok := toFloat(partial); ok {
			a.foldMax(n)
		}
	case "lastK", "approxDistinct":
		if n, ok := toFloat(partial); ok {
			a.lastK = append(a.lastK, n)
		}
	}
}

func (a *accumulator) add(value any) error {
	n, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("non-numeric value %v (%T) for operation %q", value, value, a.agg.Operation)
	}
	switch a.agg.Operation {
	case "count":
		a.count++
	case "sum", "average":
		a.sum += n
		a.count++
	case "min":
		a.foldMin(n)
	case "max":
		a.foldMax(n)
	case "lastK", "approxDistinct":
		a.lastK = append(a.lastK, n)
	default:
		return fmt.Errorf("unknown aggregation operation %q", a.agg.Operation)
	}
	return nil
}

func (a *accumulator) subtract(value any) error {
	n, ok := toFloat(value)
	if !ok {
		return fmt.Errorf("non-numeric value %v (%T) for operation %q", value, value, a.agg.Operation)
	}
	switch a.agg.Operation {
	case "count":
		a.count--
	case "sum":
		a.sum -= n
		a.count--
	case "average":
		a.sum -= n
		a.count--
	case "min", "max", "lastK", "approxDistinct":
		// Before-image removal from a min/max/lastK window requires
		// recomputation from the surviving rows, not simple inversion;
		// that path is out of scope here (external windowing engine).
	default:
		return fmt.Errorf("unknown aggregation operation %q", a.agg.Operation)
	}
	return nil
}

func (a *accumulator) foldMin(n float64) {
	if a.min == nil || n < *a.min {
		v := n
		a.min = &v
	}
}

func (a *accumulator) foldMax(n float64) {
	if a.max == nil || n > *a.max {
		v := n
		a.max = &v
	}
}

func (a *accumulator) finalize() any {
	switch a.agg.Operation {
	case "count":
		return a.count
	case "sum":
		return a.sum
	case "average":
		if a.count == 0 {
			return nil
		}
		return a.sum / float64(a.count)
	case "min":
		if a.min == nil {
			return nil
		}
		return *a.min
	case "max":
		if a.max == nil {
			return nil
		}
		return *a.max
	case "approxDistinct":
		return int64(len(dedupe(a.lastK)))
	case "lastK":
		return a.lastK
	default:
		return nil
	}
}

func dedupe(values []float64) []float64 {
	seen := map[float64]struct{}{}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	default:
		return 0, false
	}
}
