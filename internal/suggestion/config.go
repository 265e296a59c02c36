package suggestion

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the ranking weights and thresholds.
type Config struct {
	// TimingWeight multiplies same-hour, same-weekday visits to a favorite.
	TimingWeight float64 `yaml:"timing_weight"`
	// ShortWaitThreshold is the mean wait below which a queue counts as short.
	ShortWaitThreshold time.Duration `yaml:"short_wait_threshold"`
	// ShortWaitScale normalizes the short-wait score: (scale - mean) / scale.
	ShortWaitScale   time.Duration `yaml:"short_wait_scale"`
	PopularWindow    time.Duration `yaml:"popular_window"`
	PopularMinVisits int           `yaml:"popular_min_visits"`
	PopularDivisor   float64       `yaml:"popular_divisor"`
	Limit            int           `yaml:"limit"`
}

func DefaultConfig() Config {
	return Config{
		TimingWeight:       2,
		ShortWaitThreshold: 15 * time.Minute,
		ShortWaitScale:     30 * time.Minute,
		PopularWindow:      24 * time.Hour,
		PopularMinVisits:   3,
		PopularDivisor:     10,
		Limit:              5,
	}
}

// LoadConfig reads overrides from a YAML file. An empty path yields the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read suggestion config: %w", err)
	}

	var override Config
	if err := yaml.Unmarshal(data, &override); err != nil {
		return cfg, fmt.Errorf("parse suggestion config: %w", err)
	}

	return cfg.merge(override), nil
}

// merge returns c with every non-zero field of o applied.
func (c Config) merge(o Config) Config {
	if o.TimingWeight > 0 {
		c.TimingWeight = o.TimingWeight
	}
	if o.ShortWaitThreshold > 0 {
		c.ShortWaitThreshold = o.ShortWaitThreshold
	}
	if o.ShortWaitScale > 0 {
		c.ShortWaitScale = o.ShortWaitScale
	}
	if o.PopularWindow > 0 {
		c.PopularWindow = o.PopularWindow
	}
	if o.PopularMinVisits > 0 {
		c.PopularMinVisits = o.PopularMinVisits
	}
	if o.PopularDivisor > 0 {
		c.PopularDivisor = o.PopularDivisor
	}
	if o.Limit > 0 {
		c.Limit = o.Limit
	}
	return c
}
