// Package config loads the node configuration from a YAML file, filling in
// defaults for anything unset.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Tolerance is the acceptance band for delivered energy, in percent of the
// ordered amount.
type Tolerance struct {
	MinPct uint64 `yaml:"min_pct"`
	MaxPct uint64 `yaml:"max_pct"`
}

// Bounds are the plausibility limits for measurement samples. Frequency is
// in centihertz, voltage in volts.
type Bounds struct {
	FreqMin uint32 `yaml:"freq_min"`
	FreqMax uint32 `yaml:"freq_max"`
	VoltMin uint32 `yaml:"volt_min"`
	VoltMax uint32 `yaml:"volt_max"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type Config struct {
	ListenAddress  string    `yaml:"listen_address"`
	MetricsAddress string    `yaml:"metrics_address"`
	DataDir        string    `yaml:"data_dir"` // empty keeps state in memory
	EscrowAtMatch  bool      `yaml:"escrow_at_match"`
	Tolerance      Tolerance `yaml:"tolerance"`
	Bounds         Bounds    `yaml:"bounds"`
	Kafka          Kafka     `yaml:"kafka"`
}

// Default is the configuration used when no file is given. The tolerance
// band is in percent of the ordered amount, frequency bounds in centihertz.
func Default() Config {
	return Config{
		ListenAddress:  "0.0.0.0:9001",
		MetricsAddress: "0.0.0.0:9102",
		EscrowAtMatch:  true,
		Tolerance:      Tolerance{MinPct: 95, MaxPct: 105},
		Bounds:         Bounds{FreqMin: 4950, FreqMax: 5050, VoltMin: 200, VoltMax: 250},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	if c.Tolerance.MinPct == 0 || c.Tolerance.MinPct > c.Tolerance.MaxPct {
		return fmt.Errorf("invalid tolerance band %d..%d", c.Tolerance.MinPct, c.Tolerance.MaxPct)
	}
	if c.Bounds.FreqMin > c.Bounds.FreqMax || c.Bounds.VoltMin > c.Bounds.VoltMax {
		return fmt.Errorf("invalid measurement bounds")
	}
	return nil
}
