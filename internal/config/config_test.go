package config

import (
	"os"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetAddress(t *testing.T) {
	tests := []struct {
		name string
		cfg  ServerConfig
		want string
	}{
		{"default", ServerConfig{Host: "0.0.0.0", Port: 3002}, "0.0.0.0:3002"},
		{"localhost", ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
		{"empty host", ServerConfig{Host: "", Port: 8080}, ":8080"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.cfg.GetAddress()
			if got != tt.want {
				t.Errorf("GetAddress() = %q, want %q", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// UploadConfig.MaxUploadBytes
// ---------------------------------------------------------------------------

func TestMaxUploadBytes(t *testing.T) {
	tests := []struct {
		name string
		mb   int
		want int64
	}{
		{"default 50MB", 50, 50 << 20},
		{"1MB", 1, 1 << 20},
		{"large 500MB", 500, 500 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := UploadConfig{MaxSizeMB: tt.mb}
			if got := cfg.MaxUploadBytes(); got != tt.want {
				t.Errorf("MaxUploadBytes() = %d, want %d", got, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    3002,
			BaseURL: "http://localhost:3002",
		},
		B2: B2Config{
			KeyID:          "key-id",
			ApplicationKey: "app-key",
			BucketID:       "bucket-id",
			BucketName:     "my-music",
			AuthURL:        "https://api.backblazeb2.com",
			SessionTTL:     23 * time.Hour,
		},
		Auth:    AuthConfig{APIKey: "secret"},
		Upload:  UploadConfig{MaxSizeMB: 50, DefaultAlbum: "Uncategorized"},
		Logging: LoggingConfig{Level: "info"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid minimal config passes", func(t *testing.T) {
		if err := minimalValidConfig().Validate(); err != nil {
			t.Errorf("Validate() unexpected error: %v", err)
		}
	})

	t.Run("invalid server port 0", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 0, got nil")
		}
	})

	t.Run("invalid server port 70000", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.Port = 70000
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for port 70000, got nil")
		}
	})

	t.Run("missing base_url", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Server.BaseURL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty base_url, got nil")
		}
	})

	t.Run("missing b2 key_id", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.B2.KeyID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty b2 key_id, got nil")
		}
	})

	t.Run("missing b2 application_key", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.B2.ApplicationKey = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty b2 application_key, got nil")
		}
	})

	t.Run("missing b2 bucket_id", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.B2.BucketID = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty b2 bucket_id, got nil")
		}
	})

	t.Run("missing b2 bucket_name", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.B2.BucketName = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty b2 bucket_name, got nil")
		}
	})

	t.Run("non-positive session_ttl", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.B2.SessionTTL = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero session_ttl, got nil")
		}
	})

	t.Run("missing api_key", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Auth.APIKey = ""
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for empty api_key, got nil")
		}
	})

	t.Run("zero max upload size", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Upload.MaxSizeMB = 0
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for zero max_size_mb, got nil")
		}
	})

	t.Run("tls enabled missing cert_file", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Security.TLS = TLSConfig{Enabled: true, KeyFile: "key.pem"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing tls cert_file, got nil")
		}
	})

	t.Run("tls enabled missing key_file", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Security.TLS = TLSConfig{Enabled: true, CertFile: "cert.pem"}
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for missing tls key_file, got nil")
		}
	})

	t.Run("invalid log level", func(t *testing.T) {
		cfg := minimalValidConfig()
		cfg.Logging.Level = "verbose"
		if err := cfg.Validate(); err == nil {
			t.Error("Validate() expected error for invalid log level, got nil")
		}
	})

	t.Run("all valid log levels pass", func(t *testing.T) {
		for _, level := range []string{"debug", "info", "warn", "error"} {
			cfg := minimalValidConfig()
			cfg.Logging.Level = level
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() unexpected error for log level %q: %v", level, err)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Load – with config file
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp("", "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	t.Cleanup(func() { os.Remove(f.Name()) })
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal("Close:", err)
	}
	return f.Name()
}

const validYAML = `
server:
  port: 4000
  base_url: "http://music.example.com"
b2:
  key_id: "file-key-id"
  application_key: "file-app-key"
  bucket_id: "file-bucket-id"
  bucket_name: "file-bucket"
auth:
  api_key: "file-api-key"
`

func TestLoad_FromFile(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.Server.Port != 4000 {
		t.Errorf("server port = %d, want 4000", cfg.Server.Port)
	}
	if cfg.B2.BucketName != "file-bucket" {
		t.Errorf("bucket name = %q, want %q", cfg.B2.BucketName, "file-bucket")
	}

	// Defaults fill in everything the file omits.
	if cfg.B2.AuthURL != "https://api.backblazeb2.com" {
		t.Errorf("auth url = %q, want default", cfg.B2.AuthURL)
	}
	if cfg.B2.SessionTTL != 23*time.Hour {
		t.Errorf("session ttl = %v, want 23h", cfg.B2.SessionTTL)
	}
	if cfg.Upload.MaxSizeMB != 50 {
		t.Errorf("max_size_mb = %d, want 50", cfg.Upload.MaxSizeMB)
	}
	if cfg.Upload.DefaultAlbum != "Uncategorized" {
		t.Errorf("default_album = %q, want %q", cfg.Upload.DefaultAlbum, "Uncategorized")
	}
	if cfg.Telemetry.ServiceName != "tunecrate" {
		t.Errorf("service name = %q, want %q", cfg.Telemetry.ServiceName, "tunecrate")
	}
	if cfg.Server.WriteTimeout != 0 {
		t.Errorf("write timeout = %v, want 0", cfg.Server.WriteTimeout)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeTempConfig(t, validYAML)

	t.Setenv("TC_SERVER_PORT", "5005")
	t.Setenv("TC_B2_BUCKET_NAME", "env-bucket")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.Server.Port != 5005 {
		t.Errorf("server port = %d, want env override 5005", cfg.Server.Port)
	}
	if cfg.B2.BucketName != "env-bucket" {
		t.Errorf("bucket name = %q, want env override %q", cfg.B2.BucketName, "env-bucket")
	}
}

func TestLoad_ExpandsSecretEnvRefs(t *testing.T) {
	t.Setenv("CONFIG_TEST_B2_KEY", "expanded-app-key")
	t.Setenv("CONFIG_TEST_API_KEY", "expanded-api-key")

	path := writeTempConfig(t, `
server:
  port: 3002
  base_url: "http://localhost:3002"
b2:
  key_id: "kid"
  application_key: "${CONFIG_TEST_B2_KEY}"
  bucket_id: "bid"
  bucket_name: "bname"
auth:
  api_key: "${CONFIG_TEST_API_KEY}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.B2.ApplicationKey != "expanded-app-key" {
		t.Errorf("application key = %q, want expanded value", cfg.B2.ApplicationKey)
	}
	if cfg.Auth.APIKey != "expanded-api-key" {
		t.Errorf("api key = %q, want expanded value", cfg.Auth.APIKey)
	}
}

func TestLoad_MissingRequiredFieldsFails(t *testing.T) {
	path := writeTempConfig(t, `
server:
  port: 3002
  base_url: "http://localhost:3002"
auth:
  api_key: "secret"
`)

	if _, err := Load(path); err == nil {
		t.Error("Load() expected validation error for missing b2 settings, got nil")
	}
}
