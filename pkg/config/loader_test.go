package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanbanhq/demandkit/pkg/config"
)

type defaultsConfig struct {
	Addr    string `env:"CFG_TEST_DEFAULTS_ADDR" envDefault:":8080"`
	Workers int    `env:"CFG_TEST_DEFAULTS_WORKERS" envDefault:"4"`
}

type overrideConfig struct {
	Addr  string `env:"CFG_TEST_OVERRIDE_ADDR" envDefault:":8080"`
	Debug bool   `env:"CFG_TEST_OVERRIDE_DEBUG"`
}

type requiredConfig struct {
	Secret string `env:"CFG_TEST_REQUIRED_SECRET,required"`
}

type validatedConfig struct {
	Limit int `env:"CFG_TEST_VALIDATED_LIMIT" envDefault:"-5"`
}

func (c validatedConfig) Validate() error {
	if c.Limit < 0 {
		return errors.New("limit must not be negative")
	}
	return nil
}

type cachedConfig struct {
	Value string `env:"CFG_TEST_CACHED_VALUE" envDefault:"first"`
}

type fileConfig struct {
	Token string `env:"CFG_TEST_FILE_TOKEN"`
}

func TestLoad(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg defaultsConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, 4, cfg.Workers)
	})

	t.Run("environment overrides", func(t *testing.T) {
		t.Setenv("CFG_TEST_OVERRIDE_ADDR", ":9090")
		t.Setenv("CFG_TEST_OVERRIDE_DEBUG", "true")

		var cfg overrideConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, ":9090", cfg.Addr)
		assert.True(t, cfg.Debug)
	})

	t.Run("missing required", func(t *testing.T) {
		var cfg requiredConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrParsingConfig)
		assert.Panics(t, func() { config.MustLoad(&cfg) })
	})

	t.Run("validator runs after parsing", func(t *testing.T) {
		var cfg validatedConfig
		assert.ErrorIs(t, config.Load(&cfg), config.ErrInvalidConfig)
	})

	t.Run("nil pointer", func(t *testing.T) {
		assert.ErrorIs(t, config.Load[defaultsConfig](nil), config.ErrNilPointer)
	})

	t.Run("parsed once per type", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				var cfg cachedConfig
				assert.NoError(t, config.Load(&cfg))
				assert.Equal(t, "first", cfg.Value)
			}()
		}
		wg.Wait()

		t.Setenv("CFG_TEST_CACHED_VALUE", "second")
		var cfg cachedConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "first", cfg.Value)
	})

	t.Run("dotenv files", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "test.env")
		require.NoError(t, os.WriteFile(path, []byte("CFG_TEST_FILE_TOKEN=from-file\n"), 0o600))
		t.Cleanup(func() { _ = os.Unsetenv("CFG_TEST_FILE_TOKEN") })

		require.NoError(t, config.LoadFiles(path))

		var cfg fileConfig
		require.NoError(t, config.Load(&cfg))
		assert.Equal(t, "from-file", cfg.Token)

		assert.NoError(t, config.LoadFiles())
		assert.Error(t, config.LoadFiles(filepath.Join(t.TempDir(), "missing.env")))
	})
}
