// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package logsampler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleHash_DeterministicAcrossCalls(t *testing.T) {
	keys := map[string]any{"user_id": "u1", "merchant_id": "m1"}
	order := []string{"user_id", "merchant_id"}

	first := sampleHash(keys, order)
	second := sampleHash(keys, order)
	assert.Equal(t, first, second)
}

func TestSampleHash_IndependentOfMapConstructionOrder(t *testing.T) {
	order := []string{"user_id", "merchant_id"}

	a := map[string]any{"user_id": "u1", "merchant_id": "m1"}
	b := map[string]any{"merchant_id": "m1", "user_id": "u1"}

	assert.Equal(t, sampleHash(a, order), sampleHash(b, order))
}

func TestSampleHash_DiffersWhenKeyOrderDiffers(t *testing.T) {
	keys := map[string]any{"a": "1", "b": "2"}
	assert.NotEqual(t, sampleHash(keys, []string{"a", "b"}), sampleHash(keys, []string{"b", "a"}))
}

func TestSampleHash_MissingOrderedKeyIsSkippedNotZeroed(t *testing.T) {
	keys := map[string]any{"user_id": "u1"}
	withMissing := sampleHash(keys, []string{"user_id", "absent"})
	withoutMissing := sampleHash(keys, []string{"user_id"})
	assert.Equal(t, withoutMissing, withMissing, "an ordered key absent from the request's keys must not perturb the hash")
}

func TestShouldSample_ZeroPercentNeverSamples(t *testing.T) {
	keys := map[string]any{"user_id": "u1"}
	for i := 0; i < 20; i++ {
		keys["user_id"] = i
		assert.False(t, shouldSample(keys, []string{"user_id"}, 0))
	}
}

func TestShouldSample_HundredPercentAlwaysSamples(t *testing.T) {
	keys := map[string]any{"user_id": "u1"}
	for i := 0; i < 20; i++ {
		keys["user_id"] = i
		assert.True(t, shouldSample(keys, []string{"user_id"}, 100))
	}
}

func TestOrderedKeyNames_SortsAlphabetically(t *testing.T) {
	names := orderedKeyNames(map[string]any{"zeta": 1, "alpha": 2, "mid": 3})
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, names)
}
