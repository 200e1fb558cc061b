// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package config loads and validates the server's JSON configuration
// document, following the same read-validate-decode pipeline the teacher
// uses: schema validation first, then a strict (DisallowUnknownFields)
// decode into the typed struct.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/onfeat/fetchcore/pkg/fstore"
	"github.com/onfeat/fetchcore/pkg/log"
)

// Config is the full server configuration document.
type Config struct {
	Addr                 string          `json:"addr"`
	MetadataDataset      string          `json:"metadataDataset"`
	ServingInfoTTL       string          `json:"servingInfoTtl"`
	JoinCodecTTL         string          `json:"joinCodecTtl"`
	FetchTimeout         string          `json:"fetchTimeout"`
	WorkerPoolSize       int             `json:"workerPoolSize"`
	KVStore              json.RawMessage `json:"kvStore"`
	Nats                 json.RawMessage `json:"nats"`
	JWTSecret            string          `json:"jwtSecret"`
	LogLevel             string          `json:"logLevel"`
	LogDate              bool            `json:"logDate"`
	KnownGroupBys        []string        `json:"knownGroupBys"`
	KnownJoins           []string        `json:"knownJoins"`
	RegistryPath         string          `json:"registryPath"`
	RegistrySyncInterval string          `json:"registrySyncInterval"`
}

// Keys holds the process-wide configuration, matching the teacher's
// global-singleton config style.
var Keys = Config{
	Addr:                 ":8090",
	MetadataDataset:      "FETCHCORE_METADATA",
	ServingInfoTTL:       "5m",
	JoinCodecTTL:         "5m",
	FetchTimeout:         "10s",
	WorkerPoolSize:       0, // 0 means runtime.NumCPU()
	KVStore:              json.RawMessage(`{"kind":"memory"}`),
	LogLevel:             "info",
	RegistryPath:         "./var/registry.db",
	RegistrySyncInterval: "10m",
}

// Init reads, validates and decodes flagConfigFile into Keys. A missing
// file is not an error — the defaults above are used as-is, matching
// local/dev usage.
func Init(flagConfigFile string) error {
	raw, err := os.ReadFile(flagConfigFile)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warnf("config: %q not found, using defaults", flagConfigFile)
			log.SetLogLevel(Keys.LogLevel)
			return nil
		}
		return fmt.Errorf("config: reading %q: %w", flagConfigFile, err)
	}

	if err := fstore.Validate(fstore.ConfigKind, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("config: validating %q: %w", flagConfigFile, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&Keys); err != nil {
		return fmt.Errorf("config: decoding %q: %w", flagConfigFile, err)
	}

	log.SetLogLevel(Keys.LogLevel)
	log.SetLogDateTime(Keys.LogDate)
	return nil
}

func (c Config) ServingInfoTTLDuration() time.Duration {
	return mustDuration(c.ServingInfoTTL, 5*time.Minute)
}

func (c Config) JoinCodecTTLDuration() time.Duration {
	return mustDuration(c.JoinCodecTTL, 5*time.Minute)
}

func (c Config) FetchTimeoutDuration() time.Duration {
	return mustDuration(c.FetchTimeout, 10*time.Second)
}

func (c Config) RegistrySyncIntervalDuration() time.Duration {
	return mustDuration(c.RegistrySyncInterval, 10*time.Minute)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warnf("config: invalid duration %q, using %s", s, fallback)
		return fallback
	}
	return d
}
