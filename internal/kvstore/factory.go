// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package kvstore

import (
	"context"
	"encoding/json"
	"fmt"
)

// kindOnly is decoded first to dispatch to the right backend-specific
// config struct, mirroring the teacher's job-archive backend dispatch in
// pkg/archive (a "kind" discriminator picking the concrete implementation).
type kindOnly struct {
	Kind string `json:"kind"`
}

// Open builds a Store from its configuration document's "kind" field.
func Open(ctx context.Context, raw json.RawMessage) (Store, error) {
	var k kindOnly
	if err := json.Unmarshal(raw, &k); err != nil {
		return nil, fmt.Errorf("kvstore: decoding backend kind: %w", err)
	}

	switch k.Kind {
	case "", "memory":
		return NewMemStore(), nil

	case "http":
		var cfg HTTPConfig
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("kvstore: decoding http config: %w", err)
		}
		return NewHTTPStore(cfg), nil

	case "s3":
		var cfg S3Config
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, fmt.Errorf("kvstore: decoding s3 config: %w", err)
		}
		return NewS3Store(ctx, cfg)

	default:
		return nil, fmt.Errorf("kvstore: unknown backend kind %q", k.Kind)
	}
}
