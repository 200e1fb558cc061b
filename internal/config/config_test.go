// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withSavedKeys restores the package-global Keys after a test mutates it
// via Init, so config tests don't leak state into each other.
func withSavedKeys(t *testing.T) {
	t.Helper()
	saved := Keys
	t.Cleanup(func() { Keys = saved })
}

func TestInit_MissingFileKeepsDefaults(t *testing.T) {
	withSavedKeys(t)
	err := Init(filepath.Join(t.TempDir(), "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, ":8090", Keys.Addr)
}

func TestInit_ValidFileOverridesDefaults(t *testing.T) {
	withSavedKeys(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr":":9999","workerPoolSize":4,"knownGroupBys":["clicks"]}`), 0o644))

	require.NoError(t, Init(path))
	assert.Equal(t, ":9999", Keys.Addr)
	assert.Equal(t, 4, Keys.WorkerPoolSize)
	assert.Equal(t, []string{"clicks"}, Keys.KnownGroupBys)
}

func TestInit_RejectsUnknownField(t *testing.T) {
	withSavedKeys(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"totallyUnknownField":true}`), 0o644))

	err := Init(path)
	assert.Error(t, err)
}

func TestInit_RejectsSchemaInvalidDocument(t *testing.T) {
	withSavedKeys(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"workerPoolSize":"not-a-number"}`), 0o644))

	err := Init(path)
	assert.Error(t, err)
}

func TestDurationAccessors_FallBackOnInvalidOrEmptyValue(t *testing.T) {
	c := Config{ServingInfoTTL: "", JoinCodecTTL: "not-a-duration", FetchTimeout: "30s", RegistrySyncInterval: "1h"}

	assert.Equal(t, 5*time.Minute, c.ServingInfoTTLDuration())
	assert.Equal(t, 5*time.Minute, c.JoinCodecTTLDuration())
	assert.Equal(t, 30*time.Second, c.FetchTimeoutDuration())
	assert.Equal(t, time.Hour, c.RegistrySyncIntervalDuration())
}
