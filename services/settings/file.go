package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/upb/finance-advisor/services/providers"
	"gopkg.in/yaml.v3"
)

// fileSettings is the YAML shape of a settings seed file
type fileSettings struct {
	CacheEnabled    *bool   `yaml:"cache_enabled"`
	CacheTTL        *string `yaml:"cache_ttl"`
	DefaultProvider *string `yaml:"default_provider"`
	AutoFallback    *bool   `yaml:"auto_fallback"`
	MaxRetries      *int    `yaml:"max_retries"`
}

// LoadFile reads a YAML settings file into a Partial
func LoadFile(path string) (Partial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Partial{}, fmt.Errorf("read settings file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML decodes YAML settings. Unknown keys are rejected.
func ParseYAML(data []byte) (Partial, error) {
	var fs fileSettings
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fs); err != nil && !errors.Is(err, io.EOF) {
		return Partial{}, fmt.Errorf("parse settings file: %w", err)
	}

	p := Partial{
		CacheEnabled: fs.CacheEnabled,
		AutoFallback: fs.AutoFallback,
		MaxRetries:   fs.MaxRetries,
	}

	if fs.CacheTTL != nil {
		ttl, err := time.ParseDuration(*fs.CacheTTL)
		if err != nil {
			return Partial{}, fmt.Errorf("parse cache_ttl: %w", err)
		}
		p.CacheTTL = &ttl
	}

	if fs.DefaultProvider != nil {
		id, err := providers.ParseProviderID(*fs.DefaultProvider)
		if err != nil {
			return Partial{}, err
		}
		p.DefaultProvider = &id
	}

	return p, nil
}
