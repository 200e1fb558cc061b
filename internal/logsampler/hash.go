// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package logsampler

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// sampleHash computes a byte-order-stable hash over the ordered tuple of
// a request's key values, so the sampling decision is reproducible across
// processes and offline re-analysis (§4.6, §8 prop 7, §9).
//
// Key order follows the Join's declared key-name order (orderedKeys),
// not map iteration order, which Go leaves unspecified.
func sampleHash(keys map[string]any, orderedKeys []string) uint64 {
	h := xxhash.New()
	for _, name := range orderedKeys {
		value, ok := keys[name]
		if !ok {
			continue
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, uint64(len(name)))
		h.Write(buf)
		h.Write([]byte(name))

		rendered := []byte(fmt.Sprintf("%v", value))
		binary.BigEndian.PutUint64(buf, uint64(len(rendered)))
		h.Write(buf)
		h.Write(rendered)
	}
	return h.Sum64()
}

// shouldSample reproduces §9's sampling rule: abs(hash) mod 100_000 <=
// floor(samplePercent * 1000).
func shouldSample(keys map[string]any, orderedKeys []string, samplePercent float64) bool {
	if samplePercent <= 0 {
		return false
	}
	threshold := int64(samplePercent * 1000)
	h := sampleHash(keys, orderedKeys)
	return int64(h%100000) <= threshold
}

func orderedKeyNames(keys map[string]any) []string {
	names := make([]string, 0, len(keys))
	for k := range keys {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
