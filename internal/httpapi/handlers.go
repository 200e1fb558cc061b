// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/onfeat/fetchcore/internal/metrics"
	"github.com/onfeat/fetchcore/internal/servinginfocache"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// groupByFetcher is the subset of *groupby.Fetcher the HTTP surface needs.
type groupByFetcher interface {
	FetchGroupBys(ctx context.Context, requests []fstore.Request) []fstore.Response
}

// joinFetcher is the subset of *logsampler.Wrapped (or *join.Planner
// directly, if sampling is disabled) the HTTP surface needs.
type joinFetcher interface {
	FetchJoins(ctx context.Context, requests []fstore.Request) []fstore.Response
}

// fetchRequestBody is the wire shape of both fetch endpoints: a batch of
// named, keyed lookups, optionally pinned to a point in time.
type fetchRequestBody struct {
	Requests []fetchRequestItem `json:"requests"`
}

type fetchRequestItem struct {
	Name     string         `json:"name"`
	Keys     map[string]any `json:"keys"`
	AtMillis int64          `json:"atMillis,omitempty"`
}

type fetchResponseBody struct {
	Responses []fetchResponseItem `json:"responses"`
}

type fetchResponseItem struct {
	Name    string         `json:"name"`
	Values  map[string]any `json:"values,omitempty"`
	Failure *failureBody   `json:"failure,omitempty"`
}

type failureBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func toRequests(items []fetchRequestItem) []fstore.Request {
	out := make([]fstore.Request, len(items))
	for i, it := range items {
		out[i] = fstore.Request{Name: it.Name, Keys: it.Keys, AtMillis: it.AtMillis}
	}
	return out
}

func toResponseBody(responses []fstore.Response) fetchResponseBody {
	out := fetchResponseBody{Responses: make([]fetchResponseItem, len(responses))}
	for i, r := range responses {
		item := fetchResponseItem{Name: r.Request.Name, Values: r.Values}
		if r.Failure != nil {
			item.Failure = &failureBody{Kind: string(r.Failure.Kind), Message: r.Failure.Error()}
		}
		out.Responses[i] = item
	}
	return out
}

// groupByHandler serves POST /v1/fetch/groupbys.
func groupByHandler(fetcher groupByFetcher) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body fetchRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}

		start := time.Now()
		responses := fetcher.FetchGroupBys(r.Context(), toRequests(body.Requests))
		observeFetch("groupby", start, responses)

		writeJSON(rw, http.StatusOK, toResponseBody(responses))
	}
}

// joinHandler serves POST /v1/fetch/joins.
func joinHandler(fetcher joinFetcher) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body fetchRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(rw, http.StatusBadRequest, err)
			return
		}

		start := time.Now()
		responses := fetcher.FetchJoins(r.Context(), toRequests(body.Requests))
		observeFetch("join", start, responses)

		writeJSON(rw, http.StatusOK, toResponseBody(responses))
	}
}

func observeFetch(layer string, start time.Time, responses []fstore.Response) {
	metrics.FetchDurationSeconds.WithLabelValues(layer).Observe(time.Since(start).Seconds())
	for _, r := range responses {
		outcome := "ok"
		if r.Failure != nil {
			outcome = "failed"
		}
		metrics.FetchRequestsTotal.WithLabelValues(layer, outcome).Inc()
	}
}

type servingInfoBody struct {
	Name           string `json:"name"`
	Accuracy       string `json:"accuracy"`
	BatchEndMillis int64  `json:"batchEndMillis"`
	LoadedAt       string `json:"loadedAt"`
}

// servingInfoHandler serves GET /v1/servinginfo/{name}.
func servingInfoHandler(cache *servinginfocache.Cache) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		info, err := cache.Get(name)
		if err != nil {
			writeError(rw, http.StatusNotFound, err)
			return
		}
		writeJSON(rw, http.StatusOK, servingInfoBody{
			Name:           info.Name,
			Accuracy:       info.Accuracy.String(),
			BatchEndMillis: info.BatchEndMillis,
			LoadedAt:       info.LoadedAt.Format(time.RFC3339),
		})
	}
}

// servingInfoRefreshHandler serves POST /v1/servinginfo/{name}/refresh: a
// manual trigger for operators, distinct from the automatic forced refresh
// the group-by fetcher performs when it observes a newer batch watermark.
func servingInfoRefreshHandler(cache *servinginfocache.Cache) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		info, err := cache.Force(name)
		if err != nil {
			log.Warnf("httpapi: forced refresh of %q requested via API failed: %v", name, err)
			writeError(rw, http.StatusBadGateway, err)
			return
		}
		writeJSON(rw, http.StatusOK, servingInfoBody{
			Name:           info.Name,
			Accuracy:       info.Accuracy.String(),
			BatchEndMillis: info.BatchEndMillis,
			LoadedAt:       info.LoadedAt.Format(time.RFC3339),
		})
	}
}

func healthzHandler(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(rw http.ResponseWriter, status int, body any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(body); err != nil {
		log.Warnf("httpapi: writing response: %v", err)
	}
}

func writeError(rw http.ResponseWriter, status int, err error) {
	writeJSON(rw, status, map[string]string{"error": err.Error()})
}
