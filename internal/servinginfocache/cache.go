// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package servinginfocache is the TTL cache with forced refresh described
// for ServingInfo: a concurrent mapping from feature-set name to its
// metadata, single-flighted on miss and re-validated lazily at access
// time, modeled on the coordination scheme of an LRU closure-cache.
package servinginfocache

import (
	"fmt"
	"sync"
	"time"

	"github.com/onfeat/fetchcore/internal/metrics"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// Loader fetches a fresh ServingInfo for name from the metadata dataset.
type Loader func(name string) (fstore.ServingInfo, error)

type entry struct {
	value      fstore.ServingInfo
	expiration time.Time
	loading    bool
}

// Cache is the concurrent name -> ServingInfo mapping. Only the cache
// mutates entries; callers always see a complete, immutable ServingInfo
// value.
type Cache struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ttl     time.Duration
	load    Loader
	entries map[string]*entry
}

func New(ttl time.Duration, load Loader) *Cache {
	c := &Cache{ttl: ttl, load: load, entries: map[string]*entry{}}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Get returns the cached entry, loading synchronously on miss or expiry.
// A transient load failure is returned to the caller and never cached, so
// the very next call retries the load.
func (c *Cache) Get(name string) (fstore.ServingInfo, error) {
	c.mu.Lock()

	e, ok := c.entries[name]
	if ok {
		for e.loading {
			c.cond.Wait()
		}
		if time.Now().Before(e.expiration) {
			value := e.value
			c.mu.Unlock()
			return value, nil
		}
	}

	if e == nil {
		e = &entry{}
		c.entries[name] = e
	}
	e.loading = true
	c.mu.Unlock()

	value, err := c.load(name)

	c.mu.Lock()
	e.loading = false
	c.cond.Broadcast()
	if err != nil {
		// Do not cache the failure: the next Get retries immediately.
		if e.expiration.IsZero() {
			delete(c.entries, name)
		}
		c.mu.Unlock()
		return fstore.ServingInfo{}, fmt.Errorf("servinginfocache: loading %q: %w", name, err)
	}

	e.value = value
	e.expiration = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return value, nil
}

// Force unconditionally reloads name. On failure it retains the previous
// value and surfaces the error — the caller (the group-by fetcher)
// decides whether to proceed with the stale entry. This is the accepted
// degradation documented in SPEC_FULL.md §9(ii).
func (c *Cache) Force(name string) (fstore.ServingInfo, error) {
	c.mu.Lock()
	e, ok := c.entries[name]
	if !ok {
		e = &entry{}
		c.entries[name] = e
	}
	for e.loading {
		c.cond.Wait()
	}
	e.loading = true
	previous := e.value
	hadPrevious := !e.expiration.IsZero()
	c.mu.Unlock()

	value, err := c.load(name)

	c.mu.Lock()
	e.loading = false
	c.cond.Broadcast()
	if err != nil {
		c.mu.Unlock()
		if hadPrevious {
			metrics.ServingInfoStaleServed.Inc()
			log.Warnf("servinginfocache: forced refresh of %q failed, serving stale entry: %v", name, err)
			return previous, fmt.Errorf("servinginfocache: forced refresh of %q failed (serving stale): %w", name, err)
		}
		delete(c.entries, name)
		return fstore.ServingInfo{}, fmt.Errorf("servinginfocache: forced refresh of %q failed: %w", name, err)
	}

	e.value = value
	e.expiration = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return value, nil
}

// Put seeds or overwrites an entry directly, bypassing the Loader. Used by
// tests.
func (c *Cache) Put(name string, value fstore.ServingInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[name]
	if !ok {
		e = &entry{}
		c.entries[name] = e
	}
	for e.loading {
		c.cond.Wait()
	}
	e.value = value
	e.expiration = time.Now().Add(c.ttl)
}
