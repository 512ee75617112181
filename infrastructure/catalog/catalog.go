package catalog

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"social_automation/domain/entities"

	"gopkg.in/yaml.v3"
)

//go:embed platforms/*.yaml
var embedded embed.FS

// Catalog holds the loaded platform configurations
type Catalog struct {
	mu        sync.RWMutex
	platforms map[entities.Platform]*entities.PlatformConfig
}

// Load - reads every embedded platform file, then applies overrides from
// dir (one <platform>.yaml per platform) when dir is non-empty
func Load(dir string) (*Catalog, error) {
	c := &Catalog{platforms: make(map[entities.Platform]*entities.PlatformConfig)}

	for _, p := range entities.Platforms() {
		data, err := embedded.ReadFile("platforms/" + string(p) + ".yaml")
		if err != nil {
			return nil, fmt.Errorf("embedded catalog for %s: %w", p, err)
		}

		if dir != "" {
			override, err := os.ReadFile(filepath.Join(dir, string(p)+".yaml"))
			switch {
			case err == nil:
				data = override
			case !errors.Is(err, fs.ErrNotExist):
				return nil, fmt.Errorf("failed to read catalog override for %s: %w", p, err)
			}
		}

		cfg, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", p, err)
		}
		if cfg.Platform != p {
			return nil, fmt.Errorf("catalog file %s declares platform %q", p, cfg.Platform)
		}
		c.platforms[p] = cfg
	}

	return c, nil
}

// MustLoadEmbedded - loads the embedded catalog, panics on error
func MustLoadEmbedded() *Catalog {
	c, err := Load("")
	if err != nil {
		panic(err)
	}
	return c
}

// Parse - decodes and validates one platform document
func Parse(data []byte) (*entities.PlatformConfig, error) {
	var cfg entities.PlatformConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for name, t := range cfg.Targets {
		if t != nil {
			t.Name = name
		}
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Get - returns the configuration for platform
func (c *Catalog) Get(platform entities.Platform) (*entities.PlatformConfig, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cfg, ok := c.platforms[platform]
	if !ok {
		return nil, fmt.Errorf("no catalog for platform %q", platform)
	}
	return cfg, nil
}

// Put - replaces one platform configuration
func (c *Catalog) Put(cfg *entities.PlatformConfig) error {
	if err := Validate(cfg); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.platforms[cfg.Platform] = cfg
	return nil
}
