package config

import (
	"fmt"
	"net/url"
	"strings"

	"entitymap/storage"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that should be surfaced to users but
	// does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.kind"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static checks over cfg. It does not mutate cfg; callers
// decide whether warnings are fatal.
//
// Storage kinds are checked against storage.ListKinds, so the result depends
// on which engines are linked into the binary.
func Validate(cfg Config) []Issue {
	var issues []Issue
	issues = append(issues, validateStorage(cfg.Storage)...)
	issues = append(issues, validateLogging(cfg.Logging)...)
	issues = append(issues, validateMetrics(cfg.Metrics)...)
	return issues
}

func validateStorage(s StorageConfig) []Issue {
	var issues []Issue

	kind := strings.TrimSpace(s.Kind)
	if kind == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}

	registered := false
	for _, k := range storage.ListKinds() {
		if k == kind {
			registered = true
			break
		}
	}
	if !registered {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  fmt.Sprintf("unknown storage kind %q; registered: %s", kind, strings.Join(storage.ListKinds(), ", ")),
		})
	}

	if s.MaxConns < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.max_conns",
			Message:  "max_conns must not be negative",
		})
	}

	switch kind {
	case "dynamo":
		if s.Region == "" && s.Endpoint == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.region",
				Message:  "no region or endpoint; the AWS default chain must supply one",
			})
		}
		if (s.AccessKeyID == "") != (s.SecretAccessKey == "") {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.access_key_id",
				Message:  "access_key_id and secret_access_key must be set together",
			})
		}
		if s.DSN != "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "storage.dsn",
				Message:  "dsn is ignored by the dynamo engine",
			})
		}
	default:
		if strings.TrimSpace(s.DSN) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.dsn",
				Message:  "storage.dsn must not be empty",
			})
		}
	}

	return issues
}

func validateLogging(l LoggingConfig) []Issue {
	var issues []Issue

	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "logging.level",
			Message:  fmt.Sprintf("unknown level %q; info will be used", l.Level),
		})
	}
	switch strings.ToLower(l.Format) {
	case "", "text", "json":
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "logging.format",
			Message:  fmt.Sprintf("unknown format %q; text will be used", l.Format),
		})
	}
	if l.SeqURL != "" {
		issues = append(issues, checkURL("logging.seq_url", l.SeqURL)...)
	}

	return issues
}

func validateMetrics(m MetricsConfig) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		} else {
			issues = append(issues, checkURL("metrics.pushgateway_url", m.PushgatewayURL)...)
		}
		if m.Job == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.job",
				Message:  "job is empty; pushed series will use the default job name",
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "datadog_addr is empty; the DogStatsD default address will be used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q", m.Backend),
		})
	}

	return issues
}

func checkURL(path, raw string) []Issue {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []Issue{{
			Severity: SeverityError,
			Path:     path,
			Message:  fmt.Sprintf("%q is not an absolute URL", raw),
		}}
	}
	return nil
}
