// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package join implements the request planner: decomposing a Join request
// into group-by requests, deduping across the batch, and re-assembling
// prefixed, derivation-enriched responses.
package join

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/onfeat/fetchcore/internal/groupby"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// ConfigLoader resolves a Join configuration by name.
type ConfigLoader func(name string) (fstore.JoinConfig, error)

// Planner is the join layer: a config loader fronting a group-by fetcher.
type Planner struct {
	Configs  ConfigLoader
	GroupBys *groupby.Fetcher
}

func New(configs ConfigLoader, groupBys *groupby.Fetcher) *Planner {
	return &Planner{Configs: configs, GroupBys: groupBys}
}

// dedupKey identifies a group-by Request for coalescing purposes: same
// name, same keys, same query time.
type dedupKey struct {
	name  string
	keys  string
	at    int64
}

func keyOf(req fstore.Request) dedupKey {
	return dedupKey{name: req.Name, keys: formatKeys(req.Keys), at: req.AtMillis}
}

func formatKeys(keys map[string]any) string {
	// Deterministic string form for map equality; key order in the source
	// map is irrelevant to identity, only the rendered pairs matter.
	out := make([]string, 0, len(keys))
	for k, v := range keys {
		out = append(out, fmt.Sprintf("%s=%v", k, v))
	}
	return fmt.Sprint(sorted(out))
}

func sorted(s []string) []string {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
	return s
}

// FetchJoins resolves a batch of Join Requests.
func (p *Planner) FetchJoins(ctx context.Context, requests []fstore.Request) []fstore.Response {
	type partRequest struct {
		joinIdx  int
		part     fstore.JoinPart
		groupBy  fstore.Request
		dedupIdx int
	}

	configs := make([]*fstore.JoinConfig, len(requests))
	configErrs := make([]*fstore.Failure, len(requests))

	var parts []partRequest
	dedup := map[dedupKey]int{}
	var unique []fstore.Request

	for i, req := range requests {
		cfg, err := p.Configs(req.Name)
		if err != nil {
			configErrs[i] = fstore.WrapFailure(fstore.MetadataMissing, err, "no join config for %q", req.Name)
			continue
		}
		configs[i] = &cfg

		for _, part := range cfg.Parts {
			gbReq := fstore.Request{
				Name:     part.GroupByName,
				Keys:     remapKeys(req.Keys, part.KeyMapping),
				AtMillis: req.AtMillis,
			}
			dk := keyOf(gbReq)
			idx, ok := dedup[dk]
			if !ok {
				idx = len(unique)
				dedup[dk] = idx
				unique = append(unique, gbReq)
			}
			parts = append(parts, partRequest{joinIdx: i, part: part, groupBy: gbReq, dedupIdx: idx})
		}
	}

	var gbResponses []fstore.Response
	if len(unique) > 0 {
		gbResponses = p.GroupBys.FetchGroupBys(ctx, unique)
	}

	merged := make([]map[string]any, len(requests))
	for i := range merged {
		merged[i] = map[string]any{}
	}
	for _, pr := range parts {
		resp := gbResponses[pr.dedupIdx]
		if resp.Failure != nil {
			merged[pr.joinIdx][fmt.Sprintf("%s_exception", pr.part.GroupByName)] = resp.Failure.Error()
			continue
		}
		for col, val := range resp.Values {
			merged[pr.joinIdx][fmt.Sprintf("%s_%s", pr.part.FullPrefix, col)] = val
		}
	}

	responses := make([]fstore.Response, len(requests))
	for i, req := range requests {
		if configErrs[i] != nil {
			responses[i] = fstore.Response{Request: req, Failure: configErrs[i]}
			continue
		}
		values := merged[i]
		if cfg := configs[i]; cfg != nil {
			for _, d := range cfg.Derivations {
				result, err := evalDerivation(d, values)
				if err != nil {
					log.Warnf("join: derivation %q for %q failed: %v", d.Name, req.Name, err)
					continue
				}
				values[d.Name] = result
			}
		}
		responses[i] = fstore.Response{Request: req, Values: values}
	}
	return responses
}

func remapKeys(keys map[string]any, mapping map[string]string) map[string]any {
	if len(mapping) == 0 {
		return keys
	}
	out := make(map[string]any, len(keys))
	for k, v := range keys {
		if renamed, ok := mapping[k]; ok {
			out[renamed] = v
			continue
		}
		out[k] = v
	}
	return out
}

func evalDerivation(d fstore.Derivation, env map[string]any) (any, error) {
	program, err := expr.Compile(d.Expression, expr.Env(env), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling derivation %q: %w", d.Name, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating derivation %q: %w", d.Name, err)
	}
	return result, nil
}
