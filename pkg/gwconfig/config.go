// Package gwconfig parses and validates the gateway's TOML configuration
// file into an immutable snapshot.
package gwconfig

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	DialectAnthropic = "anthropic"
	DialectOpenAI    = "openai"

	defaultConfigFileName = "config.toml"
)

// OptimizationKeys enumerates every recognized optimization tag. A config
// file may omit any of these (defaulting to enabled) but may not mention a
// key outside this set.
var OptimizationKeys = []string{
	"enable_network_probe_mock",
	"enable_fast_prefix_detection",
	"enable_historical_analysis_mock",
	"enable_title_generation_skip",
	"enable_suggestion_mode_skip",
	"enable_filepath_extraction_mock",
}

// Upstream is one configured backend: an endpoint, the model name forced
// onto every request routed there, a pool of credentials, and the wire
// dialect it speaks.
type Upstream struct {
	Endpoint string   `toml:"endpoint"`
	Model    string   `toml:"model"`
	APIKeys  []string `toml:"api_keys"`
	Dialect  string   `toml:"dialect,omitempty"`
}

type loggingConfig struct {
	LogReqBody bool `toml:"log_req_body"`
	LogResBody bool `toml:"log_res_body"`
}

// rawConfig mirrors the TOML document shape exactly; Snapshot is the
// validated, defaulted form handlers actually consume.
type rawConfig struct {
	Upstream      []Upstream      `toml:"upstream"`
	Optimizations map[string]bool `toml:"optimizations"`
	Logging       loggingConfig   `toml:"logging"`
}

// Snapshot is the fully validated, immutable configuration in force at a
// point in time. Once returned from Load it is never mutated; a reload
// produces a brand new Snapshot value.
type Snapshot struct {
	Upstreams     []Upstream
	Optimizations map[string]bool
	LogReqBody    bool
	LogResBody    bool
}

// IsOptimizationEnabled reports whether the named optimization tag is
// active in this snapshot, defaulting to true for unrecognized/absent keys
// only because validation already rejected anything outside OptimizationKeys.
func (s *Snapshot) IsOptimizationEnabled(key string) bool {
	if s == nil {
		return true
	}
	enabled, ok := s.Optimizations[key]
	if !ok {
		return true
	}
	return enabled
}

func DefaultConfigPath() string {
	return defaultConfigFileName
}

// Load reads, strictly parses, and validates the TOML file at path.
func Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and defaults a raw TOML document already read into memory.
func Parse(data []byte) (*Snapshot, error) {
	var raw rawConfig
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return validate(&raw)
}

func validate(raw *rawConfig) (*Snapshot, error) {
	if len(raw.Upstream) == 0 {
		return nil, fmt.Errorf("config: at least one [[upstream]] is required")
	}

	upstreams := make([]Upstream, 0, len(raw.Upstream))
	for i, u := range raw.Upstream {
		endpoint := strings.TrimSpace(u.Endpoint)
		if endpoint == "" {
			return nil, fmt.Errorf("config: upstream[%d] has an empty endpoint", i)
		}
		model := strings.TrimSpace(u.Model)
		if model == "" {
			return nil, fmt.Errorf("config: upstream[%d] has an empty model", i)
		}
		keys := make([]string, 0, len(u.APIKeys))
		for _, k := range u.APIKeys {
			k = strings.TrimSpace(k)
			if k == "" {
				continue
			}
			keys = append(keys, k)
		}
		if len(keys) == 0 {
			return nil, fmt.Errorf("config: upstream[%d] (%s) needs at least one non-empty api key", i, endpoint)
		}
		dialect := strings.ToLower(strings.TrimSpace(u.Dialect))
		if dialect == "" {
			dialect = inferDialect(endpoint)
		}
		if dialect != DialectAnthropic && dialect != DialectOpenAI {
			return nil, fmt.Errorf("config: upstream[%d] has unknown dialect %q", i, dialect)
		}
		upstreams = append(upstreams, Upstream{
			Endpoint: endpoint,
			Model:    model,
			APIKeys:  keys,
			Dialect:  dialect,
		})
	}

	known := make(map[string]struct{}, len(OptimizationKeys))
	for _, k := range OptimizationKeys {
		known[k] = struct{}{}
	}
	opts := make(map[string]bool, len(OptimizationKeys))
	for _, k := range OptimizationKeys {
		opts[k] = true
	}
	for k, v := range raw.Optimizations {
		if _, ok := known[k]; !ok {
			return nil, fmt.Errorf("config: unknown optimization tag %q", k)
		}
		opts[k] = v
	}

	return &Snapshot{
		Upstreams:     upstreams,
		Optimizations: opts,
		LogReqBody:    raw.Logging.LogReqBody,
		LogResBody:    raw.Logging.LogResBody,
	}, nil
}

// inferDialect guesses the wire dialect from the endpoint path when the
// operator did not declare one explicitly, per §3's "inferred from endpoint
// path or declared".
func inferDialect(endpoint string) string {
	lower := strings.ToLower(endpoint)
	if strings.Contains(lower, "openai") || strings.Contains(lower, "/v1/chat/completions") {
		return DialectOpenAI
	}
	return DialectAnthropic
}
