// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package httpapi is the external HTTP surface of the fetch core: the two
// fetch endpoints, serving-info inspection and forced-refresh, health and
// metrics, and (reduced from the teacher's full web UI + GraphQL surface
// to a pure service-to-service API) swagger documentation only.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/onfeat/fetchcore/internal/servinginfocache"
	"github.com/onfeat/fetchcore/pkg/log"
)

// Config bundles the dependencies a Server routes requests to.
type Config struct {
	Addr        string
	JWTSecret   []byte
	GroupBys    groupByFetcher
	Joins       joinFetcher
	ServingInfo *servinginfocache.Cache
}

// NewServer builds the router and wraps it with the teacher's logging and
// CORS middleware stack.
func NewServer(cfg Config) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.Handle("/metrics", metricsHandler()).Methods(http.MethodGet)
	r.PathPrefix("/swagger/").Handler(httpSwagger.WrapHandler)

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(requireBearer(cfg.JWTSecret))
	api.HandleFunc("/fetch/groupbys", groupByHandler(cfg.GroupBys)).Methods(http.MethodPost)
	api.HandleFunc("/fetch/joins", joinHandler(cfg.Joins)).Methods(http.MethodPost)
	api.HandleFunc("/servinginfo/{name}", servingInfoHandler(cfg.ServingInfo)).Methods(http.MethodGet)
	api.HandleFunc("/servinginfo/{name}/refresh", servingInfoRefreshHandler(cfg.ServingInfo)).Methods(http.MethodPost)

	loggedRouter := handlers.CombinedLoggingHandler(logWriter{}, r)
	corsRouter := handlers.CORS(
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost}),
		handlers.AllowedHeaders([]string{"Authorization", "Content-Type"}),
	)(loggedRouter)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      corsRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// logWriter adapts the leveled logger to io.Writer for the access-log
// middleware, which writes one pre-formatted line per request.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Infof("httpapi: %s", string(p))
	return len(p), nil
}
