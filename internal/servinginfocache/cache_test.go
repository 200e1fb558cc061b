// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package servinginfocache

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onfeat/fetchcore/pkg/fstore"
)

func TestGet_LoadsOnMissAndCachesWithinTTL(t *testing.T) {
	var calls int32
	cache := New(time.Hour, func(name string) (fstore.ServingInfo, error) {
		atomic.AddInt32(&calls, 1)
		return fstore.ServingInfo{Name: name}, nil
	})

	info1, err := cache.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", info1.Name)

	_, err = cache.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_ReloadsAfterExpiry(t *testing.T) {
	var calls int32
	cache := New(5*time.Millisecond, func(name string) (fstore.ServingInfo, error) {
		n := atomic.AddInt32(&calls, 1)
		return fstore.ServingInfo{Name: fmt.Sprintf("%s-%d", name, n)}, nil
	})

	info1, err := cache.Get("foo")
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	info2, err := cache.Get("foo")
	require.NoError(t, err)

	assert.NotEqual(t, info1.Name, info2.Name)
}

func TestGet_ConcurrentMissesCoalesceIntoOneLoad(t *testing.T) {
	var calls int32
	release := make(chan struct{})
	cache := New(time.Hour, func(name string) (fstore.ServingInfo, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return fstore.ServingInfo{Name: name}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cache.Get("foo")
			assert.NoError(t, err)
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGet_FailedLoadIsNotCached(t *testing.T) {
	var calls int32
	cache := New(time.Hour, func(name string) (fstore.ServingInfo, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return fstore.ServingInfo{}, assert.AnError
		}
		return fstore.ServingInfo{Name: name}, nil
	})

	_, err := cache.Get("foo")
	assert.Error(t, err)

	info, err := cache.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, "foo", info.Name)
}

func TestForce_FallsBackToStaleOnFailure(t *testing.T) {
	var calls int32
	cache := New(time.Hour, func(name string) (fstore.ServingInfo, error) {
		n := atomic.AddInt32(&calls, 1)
		if n > 1 {
			return fstore.ServingInfo{}, assert.AnError
		}
		return fstore.ServingInfo{Name: name, BatchEndMillis: 100}, nil
	})

	info, err := cache.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, int64(100), info.BatchEndMillis)

	stale, err := cache.Force("foo")
	assert.Error(t, err)
	assert.Equal(t, int64(100), stale.BatchEndMillis)
}

func TestPut_SeedsEntryBypassingLoader(t *testing.T) {
	cache := New(time.Hour, func(name string) (fstore.ServingInfo, error) {
		t.Fatal("loader should not be called")
		return fstore.ServingInfo{}, nil
	})

	cache.Put("foo", fstore.ServingInfo{Name: "foo", BatchEndMillis: 7})

	info, err := cache.Get("foo")
	require.NoError(t, err)
	assert.Equal(t, int64(7), info.BatchEndMillis)
}
