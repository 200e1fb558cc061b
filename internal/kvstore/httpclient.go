// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package kvstore

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// HTTPConfig configures an HTTPStore.
type HTTPConfig struct {
	Kind  string `json:"kind"`
	URL   string `json:"url"`
	Token string `json:"token"`
}

// HTTPStore is a Store backed by a remote key-value service reachable over
// HTTP, with a bearer token and a single batched multi-get endpoint.
type HTTPStore struct {
	jwt           string
	queryEndpoint string
	client        http.Client
}

func NewHTTPStore(cfg HTTPConfig) *HTTPStore {
	return &HTTPStore{
		jwt:           cfg.Token,
		queryEndpoint: fmt.Sprintf("%s/api/multiget", cfg.URL),
		client:        http.Client{Timeout: 10 * time.Second},
	}
}

type multiGetRequestBody struct {
	Requests []fstore.GetRequest `json:"requests"`
}

type multiGetResponseItem struct {
	Values []fstore.TimedValue `json:"values"`
	Error  *string             `json:"error"`
}

type multiGetResponseBody struct {
	Results []multiGetResponseItem `json:"results"`
}

func (s *HTTPStore) MultiGet(ctx context.Context, reqs []fstore.GetRequest) ([]fstore.GetResponse, error) {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(multiGetRequestBody{Requests: reqs}); err != nil {
		log.Warn("kvstore: error while encoding multiget request body")
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.queryEndpoint, buf)
	if err != nil {
		log.Warn("kvstore: error while building multiget request")
		return nil, err
	}
	if s.jwt != "" {
		req.Header.Add("Authorization", fmt.Sprintf("Bearer %s", s.jwt))
	}

	res, err := s.client.Do(req)
	if err != nil {
		log.Error("kvstore: error while performing multiget request")
		return nil, err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("'%s': HTTP status %s", s.queryEndpoint, res.Status)
	}

	var body multiGetResponseBody
	if err := json.NewDecoder(bufio.NewReader(res.Body)).Decode(&body); err != nil {
		log.Warn("kvstore: error while decoding multiget response body")
		return nil, err
	}
	if len(body.Results) != len(reqs) {
		return nil, fmt.Errorf("kvstore: multiget returned %d results for %d requests", len(body.Results), len(reqs))
	}

	out := make([]fstore.GetResponse, len(reqs))
	for i, item := range body.Results {
		resp := fstore.GetResponse{Request: reqs[i], Values: item.Values}
		if item.Error != nil {
			resp.Err = fmt.Errorf("%s", *item.Error)
		}
		out[i] = resp
	}
	return out, nil
}
