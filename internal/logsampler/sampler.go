// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logsampler implements the logging sampler: deterministic
// sub-sampling of join fetch responses, re-encoded with a unified
// per-join codec and emitted to a caller-supplied sink for auditing.
package logsampler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/onfeat/fetchcore/internal/codec"
	"github.com/onfeat/fetchcore/internal/metrics"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// JoinCodec is the unified key/value codec pair used to encode a sampled
// LoggableResponse: a union key schema across a join's parts, and a
// concatenated, prefixed value schema.
type JoinCodec struct {
	Key   codec.KeyCodec
	Value codec.MapCodec
}

// JoinCodecLoader builds (or looks up) the JoinCodec for a join name.
type JoinCodecLoader func(joinName string) (JoinCodec, error)

// Sink is the downstream auditing destination a LoggableResponse is
// handed to. Implementations that cannot complete fire-and-forget must
// still return quickly — Emit is on the request's critical path.
type Sink interface {
	Emit(fstore.LoggableResponse) error
}

type codecCacheEntry struct {
	codec      JoinCodec
	expiration time.Time
}

// Sampler wraps a join fetch: after each response it decides whether to
// sample, and if so, encodes and emits it.
type Sampler struct {
	Sink        Sink
	LoadCodec   JoinCodecLoader
	SamplePct   func(joinName string) float64
	OrderedKeys func(joinName string) []string

	codecTTL time.Duration
	mu       sync.Mutex
	codecs   map[string]codecCacheEntry

	limiter *rate.Limiter
}

// New builds a Sampler. failLimit bounds how often logging failures are
// actually logged (SPEC_FULL.md §4.6/§9(i)); every failure still
// increments the fetchcore_logsampler_failures_total counter regardless
// of whether it was logged, so operators never lose visibility to the
// rate limit.
func New(sink Sink, loadCodec JoinCodecLoader, samplePct func(string) float64, orderedKeys func(string) []string, codecTTL time.Duration, failLimit rate.Limit) *Sampler {
	return &Sampler{
		Sink:        sink,
		LoadCodec:   loadCodec,
		SamplePct:   samplePct,
		OrderedKeys: orderedKeys,
		codecTTL:    codecTTL,
		codecs:      map[string]codecCacheEntry{},
		limiter:     rate.NewLimiter(failLimit, 1),
	}
}

// Observe is called once per Response produced by a join fetch. It never
// returns an error and never blocks the caller on a slow sink beyond the
// sink's own Emit call — logging failures must not fail the fetch.
func (s *Sampler) Observe(joinName string, resp fstore.Response) {
	pct := s.SamplePct(joinName)
	orderedKeys := s.OrderedKeys(joinName)
	if len(orderedKeys) == 0 {
		orderedKeys = orderedKeyNames(resp.Request.Keys)
	}

	if !shouldSample(resp.Request.Keys, orderedKeys, pct) {
		return
	}

	jc, err := s.codecFor(joinName)
	if err != nil {
		s.reportFailure("logsampler: loading codec for %q: %v", joinName, err)
		return
	}

	loggable, err := s.encode(joinName, resp, jc)
	if err != nil {
		s.reportFailure("logsampler: encoding response for %q: %v", joinName, err)
		return
	}

	if err := s.Sink.Emit(loggable); err != nil {
		s.reportFailure("logsampler: sink emit for %q: %v", joinName, err)
	}
}

func (s *Sampler) encode(joinName string, resp fstore.Response, jc JoinCodec) (fstore.LoggableResponse, error) {
	keyBytes, err := jc.Key.Encode(resp.Request.Keys)
	if err != nil {
		return fstore.LoggableResponse{}, err
	}

	var valueBytes []byte
	if resp.Failure == nil {
		encoded, err := jc.Value.EncodeMap(resp.Values)
		if err != nil {
			return fstore.LoggableResponse{}, err
		}
		valueBytes = encoded
	}

	at := resp.Request.AtMillis
	return fstore.LoggableResponse{
		KeyBytes:   keyBytes,
		ValueBytes: valueBytes,
		JoinName:   joinName,
		AtMillis:   at,
	}, nil
}

func (s *Sampler) codecFor(joinName string) (JoinCodec, error) {
	s.mu.Lock()
	if entry, ok := s.codecs[joinName]; ok && time.Now().Before(entry.expiration) {
		s.mu.Unlock()
		return entry.codec, nil
	}
	s.mu.Unlock()

	jc, err := s.LoadCodec(joinName)
	if err != nil {
		return JoinCodec{}, err
	}

	s.mu.Lock()
	s.codecs[joinName] = codecCacheEntry{codec: jc, expiration: time.Now().Add(s.codecTTL)}
	s.mu.Unlock()
	return jc, nil
}

func (s *Sampler) reportFailure(format string, args ...any) {
	metrics.LogSamplerFailures.Inc()
	if s.limiter.Allow() {
		log.Warnf(format, args...)
	}
}
