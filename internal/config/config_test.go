package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ingestor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
instance:
  id: test-ingestor
gamma:
  url: https://gamma.example.com
database:
  timescale:
    host: localhost
    port: 5432
    name: test_ts
    user: testuser
    password: testpass
`

func TestLoad(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Instance.ID != "test-ingestor" {
		t.Errorf("Instance.ID = %q, want %q", cfg.Instance.ID, "test-ingestor")
	}
	if cfg.Gamma.URL != "https://gamma.example.com" {
		t.Errorf("Gamma.URL = %q, want %q", cfg.Gamma.URL, "https://gamma.example.com")
	}
	if cfg.Database.Timescale.Host != "localhost" {
		t.Errorf("Database.Timescale.Host = %q, want %q", cfg.Database.Timescale.Host, "localhost")
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_DB_PASSWORD", "secret123")

	yaml := strings.Replace(validYAML, "testpass", "${TEST_DB_PASSWORD}", 1)
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Database.Timescale.Password != "secret123" {
		t.Errorf("Password = %q, want %q", cfg.Database.Timescale.Password, "secret123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	path := writeTempFile(t, validYAML)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Stream.URL != DefaultWSURL {
		t.Errorf("Stream.URL = %q, want default %q", cfg.Stream.URL, DefaultWSURL)
	}
	if cfg.Writers.BatchSize != DefaultBatchSize {
		t.Errorf("Writers.BatchSize = %d, want %d", cfg.Writers.BatchSize, DefaultBatchSize)
	}
	if cfg.Writers.FlushInterval != DefaultFlushInterval {
		t.Errorf("Writers.FlushInterval = %v, want %v", cfg.Writers.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Writers.Backpressure != "reject" {
		t.Errorf("Writers.Backpressure = %q, want %q", cfg.Writers.Backpressure, "reject")
	}
	if cfg.Catalog.PollInterval != 5*time.Minute {
		t.Errorf("Catalog.PollInterval = %v, want %v", cfg.Catalog.PollInterval, 5*time.Minute)
	}
	if cfg.Database.Timescale.MaxConns != DefaultMaxConns {
		t.Errorf("Timescale.MaxConns = %d, want %d", cfg.Database.Timescale.MaxConns, DefaultMaxConns)
	}
}

func TestLoadWithDefaults_ExplicitValuesKept(t *testing.T) {
	yaml := validYAML + `
writers:
  batch_size: 250
  backpressure: block
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Writers.BatchSize != 250 {
		t.Errorf("Writers.BatchSize = %d, want 250", cfg.Writers.BatchSize)
	}
	if cfg.Writers.Backpressure != "block" {
		t.Errorf("Writers.Backpressure = %q, want %q", cfg.Writers.Backpressure, "block")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *IngestorConfig {
		cfg, err := LoadWithDefaults(writeTempFile(t, validYAML))
		if err != nil {
			t.Fatalf("LoadWithDefaults failed: %v", err)
		}
		return cfg
	}

	t.Run("valid config passes", func(t *testing.T) {
		if err := valid().Validate(); err != nil {
			t.Errorf("Validate() = %v, want nil", err)
		}
	})

	t.Run("missing instance id", func(t *testing.T) {
		cfg := valid()
		cfg.Instance.ID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("missing db host", func(t *testing.T) {
		cfg := valid()
		cfg.Database.Timescale.Host = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("bad backpressure policy", func(t *testing.T) {
		cfg := valid()
		cfg.Writers.Backpressure = "explode"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("bad exhausted policy", func(t *testing.T) {
		cfg := valid()
		cfg.Writers.OnExhausted = "retry-forever"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("buffer smaller than batch", func(t *testing.T) {
		cfg := valid()
		cfg.Writers.BufferCapacity = cfg.Writers.BatchSize - 1
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("backoff floor above ceiling", func(t *testing.T) {
		cfg := valid()
		cfg.Stream.ReconnectBaseDelay = 2 * time.Minute
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})

	t.Run("bad health port", func(t *testing.T) {
		cfg := valid()
		cfg.Health.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() = nil, want error")
		}
	})
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Error("Load() = nil error for missing file")
	}
}
