// Package config defines the operator-facing configuration for entitymap
// tools: which storage engine to open, how schemas are bootstrapped, and how
// logs and metrics are emitted.
//
// A config file is JSON or YAML, chosen by extension. Values from the file may
// be overridden by ENTITYMAP_* environment variables, which in turn may come
// from a .env file next to the process.
//
// Example (YAML):
//
//	storage:
//	  kind: sqlite
//	  dsn: file:app.db
//	schema:
//	  auto_create: true
//	logging:
//	  level: debug
//	  format: json
//	metrics:
//	  backend: prometheus
//	  pushgateway_url: http://localhost:9091
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"entitymap"
	"entitymap/storage"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level object decoded from a config file.
type Config struct {
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Schema  SchemaConfig  `json:"schema" yaml:"schema"`
	Logging LoggingConfig `json:"logging" yaml:"logging"`
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`
}

// StorageConfig selects and parameterizes a storage engine.
type StorageConfig struct {
	// Kind names a registered engine: sqlite, postgres, mssql, mysql, dynamo.
	Kind string `json:"kind" yaml:"kind"`

	// DSN is the driver connection string. Unused by dynamo.
	DSN string `json:"dsn" yaml:"dsn"`

	// MaxConns caps the connection pool; 0 keeps the driver default.
	MaxConns int `json:"max_conns" yaml:"max_conns"`

	// DynamoDB settings. Empty credentials fall back to the AWS default chain.
	Region          string `json:"region" yaml:"region"`
	Endpoint        string `json:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `json:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key" yaml:"secret_access_key"`
}

// SchemaConfig controls table bootstrapping.
type SchemaConfig struct {
	// AutoCreate ensures an entity's table before its first operation.
	AutoCreate bool `json:"auto_create" yaml:"auto_create"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string `json:"level" yaml:"level"`

	// Format is text or json. Empty means text.
	Format string `json:"format" yaml:"format"`

	// SeqURL enables a Seq sink alongside stderr when set.
	SeqURL string `json:"seq_url" yaml:"seq_url"`
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	// Backend is "", "none", "prometheus" or "datadog".
	Backend string `json:"backend" yaml:"backend"`

	// Job labels pushed Prometheus series.
	Job            string `json:"job" yaml:"job"`
	PushgatewayURL string `json:"pushgateway_url" yaml:"pushgateway_url"`

	// DatadogAddr is the DogStatsD address, e.g. 127.0.0.1:8125.
	DatadogAddr string `json:"datadog_addr" yaml:"datadog_addr"`
	Namespace   string `json:"namespace" yaml:"namespace"`
}

// ToStorage converts s to the engine registry's configuration.
func (s StorageConfig) ToStorage() storage.Config {
	return storage.Config{
		Kind:            s.Kind,
		DSN:             s.DSN,
		MaxConns:        s.MaxConns,
		Region:          s.Region,
		Endpoint:        s.Endpoint,
		AccessKeyID:     s.AccessKeyID,
		SecretAccessKey: s.SecretAccessKey,
	}
}

// Supplier returns a storage supplier that always yields s.
func (s StorageConfig) Supplier() entitymap.Supplier {
	return func() (storage.Config, error) { return s.ToStorage(), nil }
}

// Load reads the config file at path, applies .env and ENTITYMAP_* overrides,
// and returns the result. An empty path yields a config built from the
// environment alone. Load does not validate; call Validate for that.
func Load(path string) (Config, error) {
	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if cfg, err = Decode(b, filepath.Ext(path)); err != nil {
			return Config{}, fmt.Errorf("config: %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: .env: %w", err)
	}
	if err := ApplyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode parses b as YAML when ext is .yaml or .yml and as JSON otherwise.
// Unknown fields are rejected in both formats.
func Decode(b []byte, ext string) (Config, error) {
	var cfg Config
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("decode json: %w", err)
		}
	}
	return cfg, nil
}
