// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/onfeat/fetchcore/internal/codec"
	"github.com/onfeat/fetchcore/internal/config"
	"github.com/onfeat/fetchcore/internal/groupby"
	"github.com/onfeat/fetchcore/internal/httpapi"
	"github.com/onfeat/fetchcore/internal/join"
	"github.com/onfeat/fetchcore/internal/kvstore"
	"github.com/onfeat/fetchcore/internal/logsampler"
	"github.com/onfeat/fetchcore/internal/metadata"
	"github.com/onfeat/fetchcore/internal/registry"
	"github.com/onfeat/fetchcore/internal/servinginfocache"
	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

func main() {
	var flagConfigFile string
	var flagGops bool
	flag.StringVar(&flagConfigFile, "config", "./config.json", "Overwrite the default configuration with the options in `config.json`")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.Parse()

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("gops/agent.Listen failed: %s", err.Error())
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("parsing '.env' file failed: %s", err.Error())
	}

	if err := config.Init(flagConfigFile); err != nil {
		log.Fatal(err.Error())
	}
	cfg := config.Keys

	ctx := context.Background()
	store, err := kvstore.Open(ctx, cfg.KVStore)
	if err != nil {
		log.Fatal(err.Error())
	}

	meta := metadata.NewStore(store, cfg.MetadataDataset)
	cache := servinginfocache.New(cfg.ServingInfoTTLDuration(), meta.LoadServingInfo)
	codecs := codec.NewRegistry()
	pool := groupby.NewPool(cfg.WorkerPoolSize)
	fetcher := groupby.New(cache, store, codecs, pool)
	planner := join.New(meta.LoadJoinConfig, fetcher)

	var joins interface {
		FetchJoins(ctx context.Context, requests []fstore.Request) []fstore.Response
	} = planner

	if len(cfg.Nats) > 0 {
		sampler, err := buildSampler(cfg, meta)
		if err != nil {
			log.Fatal(err.Error())
		}
		if sampler != nil {
			joins = logsampler.Wrap(planner, sampler)
		}
	}

	reg, err := registry.Open(cfg.RegistryPath)
	if err != nil {
		log.Fatalf("opening feature-set registry failed: %s", err.Error())
	}
	defer reg.Close()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		log.Fatalf("starting scheduler failed: %s", err.Error())
	}
	if _, err := scheduler.NewJob(
		gocron.DurationJob(cfg.RegistrySyncIntervalDuration()),
		gocron.NewTask(syncRegistry, reg, meta, cfg),
	); err != nil {
		log.Fatalf("scheduling registry sync failed: %s", err.Error())
	}
	scheduler.Start()
	defer scheduler.Shutdown()

	// Seed the registry once at startup so fetchctl has something to show
	// before the first scheduled sync fires.
	syncRegistry(reg, meta, cfg)

	server := httpapi.NewServer(httpapi.Config{
		Addr:        cfg.Addr,
		JWTSecret:   []byte(cfg.JWTSecret),
		GroupBys:    fetcher,
		Joins:       joins,
		ServingInfo: cache,
	})

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatal(err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Infof("fetchd listening at %s", cfg.Addr)
		if err := server.Serve(listener); err != nil && err.Error() != "http: Server closed" {
			log.Fatal(err.Error())
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("error during server shutdown: %s", err.Error())
	}
	wg.Wait()
}

// buildSampler wires a NATS-backed logging sampler when the configuration
// carries a "nats" block. It is optional: a deployment that never sets
// cfg.Nats runs without sampling at all.
func buildSampler(cfg config.Config, meta *metadata.Store) (*logsampler.Sampler, error) {
	var natsCfg struct {
		URL     string `json:"url"`
		Subject string `json:"subject"`
	}
	if err := json.Unmarshal(cfg.Nats, &natsCfg); err != nil {
		return nil, err
	}
	if natsCfg.URL == "" {
		return nil, nil
	}

	conn, err := nats.Connect(natsCfg.URL)
	if err != nil {
		return nil, err
	}
	sink := logsampler.NewNatsSink(conn, natsCfg.Subject)

	joinCodecs := codec.NewRegistry()
	loadJoinCodec := func(name string) (logsampler.JoinCodec, error) {
		jcfg, err := meta.LoadJoinConfig(name)
		if err != nil {
			return logsampler.JoinCodec{}, err
		}
		if len(jcfg.Parts) == 0 {
			return logsampler.JoinCodec{}, err
		}
		// The sampler logs against the first part's feature-set schema as
		// the unified key/value shape; see DESIGN.md for why a join-wide
		// union schema was not built instead.
		info, err := meta.LoadServingInfo(jcfg.Parts[0].GroupByName)
		if err != nil {
			return logsampler.JoinCodec{}, err
		}
		set, err := joinCodecs.Build(info)
		if err != nil {
			return logsampler.JoinCodec{}, err
		}
		return logsampler.JoinCodec{Key: set.Key, Value: set.Output}, nil
	}

	samplePct := func(name string) float64 {
		jcfg, err := meta.LoadJoinConfig(name)
		if err != nil {
			return 0
		}
		return jcfg.SamplePercent
	}
	orderedKeys := func(name string) []string {
		jcfg, err := meta.LoadJoinConfig(name)
		if err != nil || len(jcfg.Parts) == 0 {
			return nil
		}
		return nil // falls back to sorted key order, see logsampler/hash.go
	}

	return logsampler.New(sink, loadJoinCodec, samplePct, orderedKeys, cfg.JoinCodecTTLDuration(), 1), nil
}

// syncRegistry re-resolves every known feature set's latest metadata
// document and records it into the local operability registry, so
// fetchctl can list what the server has successfully loaded without
// touching the metadata dataset itself.
func syncRegistry(reg *registry.Registry, meta *metadata.Store, cfg config.Config) {
	now := time.Now()
	for _, name := range cfg.KnownGroupBys {
		info, err := meta.LoadServingInfo(name)
		if err != nil {
			log.Warnf("registry sync: groupby %q: %v", name, err)
			continue
		}
		raw, err := json.Marshal(info.Config)
		if err != nil {
			log.Warnf("registry sync: marshaling groupby %q: %v", name, err)
			continue
		}
		if err := reg.Upsert(name, "groupby", raw, now); err != nil {
			log.Warnf("registry sync: upserting groupby %q: %v", name, err)
		}
	}
	for _, name := range cfg.KnownJoins {
		jcfg, err := meta.LoadJoinConfig(name)
		if err != nil {
			log.Warnf("registry sync: join %q: %v", name, err)
			continue
		}
		raw, err := json.Marshal(jcfg)
		if err != nil {
			log.Warnf("registry sync: marshaling join %q: %v", name, err)
			continue
		}
		if err := reg.Upsert(name, "join", raw, now); err != nil {
			log.Warnf("registry sync: upserting join %q: %v", name, err)
		}
	}
}
