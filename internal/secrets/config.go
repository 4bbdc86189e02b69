// Package secrets redacts credentials from text before it is persisted.
//
// Detection combines the gitleaks default rule set with a few
// conversational patterns ("my password is ...", "пароль: ...") that
// gitleaks does not target.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// DefaultRedaction replaces each detected secret.
const DefaultRedaction = "[REDACTED]"

var (
	// ErrInvalidRegex indicates an allowlist pattern failed to compile.
	ErrInvalidRegex = errors.New("invalid regex pattern")

	// ErrInvalidTOML indicates an allowlist file could not be parsed.
	ErrInvalidTOML = errors.New("invalid TOML format")
)

// Config configures the scrubber.
type Config struct {
	// Enabled turns scrubbing on. A disabled scrubber returns input as is.
	Enabled bool `koanf:"enabled"`

	// Redaction replaces every detected secret.
	Redaction string `koanf:"redaction"`

	// AllowlistFile is an optional TOML file with an [allowlist] table.
	AllowlistFile string `koanf:"allowlist_file"`
}

// DefaultConfig returns an enabled configuration.
func DefaultConfig() Config {
	return Config{Enabled: true, Redaction: DefaultRedaction}
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Redaction == "" {
		c.Redaction = DefaultRedaction
	}
}

// Allowlist holds content patterns that are never redacted.
type Allowlist struct {
	Regexes []string
}

// LoadAllowlist reads an allowlist file of the form
//
//	[allowlist]
//	regexes = ["DEMO_[A-Z_]+"]
//
// A missing file yields an empty allowlist.
func LoadAllowlist(path string) (*Allowlist, error) {
	if path == "" {
		return &Allowlist{}, nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return &Allowlist{}, nil
		}
		return nil, err
	}

	var file struct {
		Allowlist struct {
			Regexes []string
		}
	}
	if _, err := toml.DecodeFile(path, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidTOML, path, err)
	}
	if _, err := compileAll(file.Allowlist.Regexes); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Allowlist{Regexes: file.Allowlist.Regexes}, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidRegex, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}
