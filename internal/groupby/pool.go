// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package groupby

import (
	"runtime"
	"sync"
)

// Pool is a bounded worker pool used to decode and aggregate a request
// batch in parallel while the key-value fan-out itself stays a single
// batched call. Modeled on the channel-of-work-items pattern of a
// background archiving worker, generalized from one worker to N.
type Pool struct {
	size int
}

// NewPool returns a Pool sized to n, or to the number of available cores
// when n <= 0.
func NewPool(n int) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Pool{size: n}
}

// Run executes fn(i) for i in [0, n) across the pool, blocking until every
// invocation has returned.
func (p *Pool) Run(n int, fn func(i int)) {
	if n == 0 {
		return
	}
	workers := p.size
	if workers > n {
		workers = n
	}

	work := make(chan int, n)
	for i := 0; i < n; i++ {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range work {
				fn(i)
			}
		}()
	}
	wg.Wait()
}
