// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package registry

import (
	"context"
	"time"

	"github.com/onfeat/fetchcore/pkg/log"
)

type queryTimingKey struct{}

// Hooks satisfies sqlhooks.Hooks, timing every query the registry issues.
type Hooks struct{}

func (h *Hooks) Before(ctx context.Context, query string, args ...any) (context.Context, error) {
	log.Debugf("registry SQL %s %q", query, args)
	return context.WithValue(ctx, queryTimingKey{}, time.Now()), nil
}

func (h *Hooks) After(ctx context.Context, query string, args ...any) (context.Context, error) {
	if begin, ok := ctx.Value(queryTimingKey{}).(time.Time); ok {
		log.Debugf("registry SQL took: %s", time.Since(begin))
	}
	return ctx, nil
}
