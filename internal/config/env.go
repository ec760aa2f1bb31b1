package config

import (
	"fmt"
	"strconv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "ENTITYMAP_"

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

type binding struct {
	key string
	str *string
	num *int
	flg *bool
}

func bindings(cfg *Config) []binding {
	return []binding{
		{key: "STORAGE_KIND", str: &cfg.Storage.Kind},
		{key: "STORAGE_DSN", str: &cfg.Storage.DSN},
		{key: "STORAGE_MAX_CONNS", num: &cfg.Storage.MaxConns},
		{key: "STORAGE_REGION", str: &cfg.Storage.Region},
		{key: "STORAGE_ENDPOINT", str: &cfg.Storage.Endpoint},
		{key: "STORAGE_ACCESS_KEY_ID", str: &cfg.Storage.AccessKeyID},
		{key: "STORAGE_SECRET_ACCESS_KEY", str: &cfg.Storage.SecretAccessKey},
		{key: "SCHEMA_AUTO_CREATE", flg: &cfg.Schema.AutoCreate},
		{key: "LOG_LEVEL", str: &cfg.Logging.Level},
		{key: "LOG_FORMAT", str: &cfg.Logging.Format},
		{key: "SEQ_URL", str: &cfg.Logging.SeqURL},
		{key: "METRICS_BACKEND", str: &cfg.Metrics.Backend},
		{key: "METRICS_JOB", str: &cfg.Metrics.Job},
		{key: "PUSHGATEWAY_URL", str: &cfg.Metrics.PushgatewayURL},
		{key: "DATADOG_ADDR", str: &cfg.Metrics.DatadogAddr},
		{key: "METRICS_NAMESPACE", str: &cfg.Metrics.Namespace},
	}
}

// ApplyEnv overwrites fields of cfg for every ENTITYMAP_* variable lookup
// reports as set. An empty value is applied as-is.
func ApplyEnv(cfg *Config, lookup LookupFunc) error {
	for _, b := range bindings(cfg) {
		name := EnvPrefix + b.key
		v, ok := lookup(name)
		if !ok {
			continue
		}
		switch {
		case b.str != nil:
			*b.str = v
		case b.num != nil:
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s=%q: invalid integer", name, v)
			}
			*b.num = n
		case b.flg != nil:
			f, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("config: %s=%q: invalid boolean", name, v)
			}
			*b.flg = f
		}
	}
	return nil
}
