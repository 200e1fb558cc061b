// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

func sumAgg() fstore.Aggregation {
	return fstore.Aggregation{Operation: "sum", InputColumn: "amount", OutputName: "amount_sum"}
}

func countAgg() fstore.Aggregation {
	return fstore.Aggregation{Operation: "count", InputColumn: "amount", OutputName: "amount_count"}
}

func row(amount float64, millis int64) fstore.StreamingRow {
	return fstore.StreamingRow{Values: map[string]any{"amount": amount}, Millis: millis}
}

func mutationRow(amount float64, millis int64, isBefore bool) fstore.StreamingRow {
	return fstore.StreamingRow{Values: map[string]any{"amount": amount}, Millis: millis, IsMutation: true, IsBefore: isBefore}
}

// S1: batch IR alone, no streaming rows at all.
func TestLambdaAggregateFinalized_BatchOnly(t *testing.T) {
	s := New([]fstore.Aggregation{sumAgg()})
	batchIR := &fstore.BatchIR{Collapsed: []any{10.0}}

	out, err := s.LambdaAggregateFinalized(batchIR, fstore.NewSliceRowIter(nil), 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{10.0}, out)
}

// S2: streaming rows refine a nil batch IR (no prior batch yet).
func TestLambdaAggregateFinalized_StreamingOnly(t *testing.T) {
	s := New([]fstore.Aggregation{sumAgg()})
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{row(3, 100), row(4, 200)})

	out, err := s.LambdaAggregateFinalized(nil, rows, 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{7.0}, out)
}

// S3: batch IR plus streaming rows combine additively.
func TestLambdaAggregateFinalized_BatchPlusStreaming(t *testing.T) {
	s := New([]fstore.Aggregation{sumAgg()})
	batchIR := &fstore.BatchIR{Collapsed: []any{10.0}}
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{row(5, 100)})

	out, err := s.LambdaAggregateFinalized(batchIR, rows, 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{15.0}, out)
}

// S4: a mutation delete retracts its prior contribution within the same
// streaming batch as the insert that added it — count ends at 10, not 11.
func TestLambdaAggregateFinalized_MutationInsertThenDelete(t *testing.T) {
	s := New([]fstore.Aggregation{countAgg()})
	batchIR := &fstore.BatchIR{Collapsed: []any{10.0}}
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{
		mutationRow(1, 100, false),
		mutationRow(1, 150, true),
	})

	out, err := s.LambdaAggregateFinalized(batchIR, rows, 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{int64(10)}, out)
}

// S5: rows after the query time never contribute, even if present in the
// streaming read.
func TestLambdaAggregateFinalized_RowsAfterQueryTimeExcluded(t *testing.T) {
	s := New([]fstore.Aggregation{sumAgg()})
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{row(5, 100), row(99, 5000)})

	out, err := s.LambdaAggregateFinalized(nil, rows, 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{5.0}, out)
}

// S6: a windowed aggregation drops rows older than the window relative to
// query time.
func TestLambdaAggregateFinalized_WindowedAggregationDropsOldRows(t *testing.T) {
	agg := sumAgg()
	agg.WindowMs = 500
	s := New([]fstore.Aggregation{agg})
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{row(5, 100), row(7, 900)})

	out, err := s.LambdaAggregateFinalized(nil, rows, 1000)
	require.NoError(t, err)
	assert.Equal(t, []any{7.0}, out)
}

func TestLambdaAggregateFinalized_NonNumericValueErrors(t *testing.T) {
	s := New([]fstore.Aggregation{sumAgg()})
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{
		{Values: map[string]any{"amount": "not-a-number"}, Millis: 100},
	})

	_, err := s.LambdaAggregateFinalized(nil, rows, 1000)
	assert.Error(t, err)
}

func TestLambdaAggregateFinalized_AverageAndMinMax(t *testing.T) {
	aggs := []fstore.Aggregation{
		{Operation: "average", InputColumn: "amount", OutputName: "avg"},
		{Operation: "min", InputColumn: "amount", OutputName: "min"},
		{Operation: "max", InputColumn: "amount", OutputName: "max"},
	}
	s := New(aggs)
	rows := fstore.NewSliceRowIter([]fstore.StreamingRow{row(2, 100), row(8, 200)})

	out, err := s.LambdaAggregateFinalized(nil, rows, 1000)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, 5.0, out[0])
	assert.Equal(t, 2.0, out[1])
	assert.Equal(t, 8.0, out[2])
}
