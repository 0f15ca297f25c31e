package simulation

import (
	"fmt"
	"math"
	"math/rand"
)

// ConfigError is fatal and surfaced before the simulation starts.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Err: fmt.Errorf(format, args...)}
}

const (
	DistConstant    = "constant"
	DistUniform     = "uniform"
	DistExponential = "exponential"
)

// Distribution describes how a scalar (link latency, node weight) is
// drawn. All draws go through the single simulation rng so runs stay
// reproducible.
type Distribution struct {
	Kind  string  `mapstructure:"kind"`
	Value float64 `mapstructure:"value"` // constant
	Min   float64 `mapstructure:"min"`   // uniform
	Max   float64 `mapstructure:"max"`   // uniform
	Mean  float64 `mapstructure:"mean"`  // exponential
}

func (d Distribution) Sample(rng *rand.Rand) float64 {
	switch d.Kind {
	case DistUniform:
		return d.Min + rng.Float64()*(d.Max-d.Min)
	case DistExponential:
		return -math.Log(1.0-rng.Float64()) * d.Mean
	default:
		return d.Value
	}
}

func (d Distribution) validate(field string) error {
	switch d.Kind {
	case DistConstant:
		if d.Value < 0 {
			return configErrorf(field, "constant value must be non-negative, got %v", d.Value)
		}
	case DistUniform:
		if d.Min < 0 || d.Max < d.Min {
			return configErrorf(field, "uniform bounds invalid: min=%v max=%v", d.Min, d.Max)
		}
	case DistExponential:
		if d.Mean <= 0 {
			return configErrorf(field, "exponential mean must be positive, got %v", d.Mean)
		}
	default:
		return configErrorf(field, "unknown distribution kind %q", d.Kind)
	}
	return nil
}

type TopologyConfig struct {
	Kind     string       `mapstructure:"kind"`
	EdgeProb float64      `mapstructure:"edge_prob"` // random topology only
	Latency  Distribution `mapstructure:"latency"`
	// Jitter re-samples the latency per message; otherwise each link
	// keeps the latency drawn at construction.
	Jitter bool `mapstructure:"jitter"`
}

type HorizonConfig struct {
	MaxTime   float64 `mapstructure:"max_time"`
	MaxBlocks uint64  `mapstructure:"max_blocks"`
}

type Config struct {
	NodeCount int            `mapstructure:"node_count"`
	Consensus string         `mapstructure:"consensus"`
	Topology  TopologyConfig `mapstructure:"topology"`
	Weights   Distribution   `mapstructure:"weights"`
	// NodeWeights pins each node's hash power or stake explicitly,
	// overriding the Weights distribution. Useful for scenario
	// experiments with designated miners.
	NodeWeights []float64 `mapstructure:"node_weights"`
	// BlockInterval is the expected time for the whole network to
	// produce one block; a node's own expected interval scales
	// inversely with its weight share.
	BlockInterval float64 `mapstructure:"block_interval"`
	// ConsensusInterval schedules periodic fork checks per node.
	// Zero disables them.
	ConsensusInterval float64       `mapstructure:"consensus_interval"`
	StartJitter       float64       `mapstructure:"start_jitter"`
	DropRate          float64       `mapstructure:"drop_rate"`
	Horizon           HorizonConfig `mapstructure:"horizon"`
	Seed              int64         `mapstructure:"seed"`
	StoreCapacity     int           `mapstructure:"store_capacity"`
}

func DefaultConfig() Config {
	return Config{
		NodeCount: 8,
		Consensus: "pow",
		Topology: TopologyConfig{
			Kind:    "full",
			Latency: Distribution{Kind: DistUniform, Min: 0.1, Max: 0.5},
		},
		Weights:           Distribution{Kind: DistConstant, Value: 1},
		BlockInterval:     10,
		ConsensusInterval: 0,
		Horizon:           HorizonConfig{MaxBlocks: 100},
		Seed:              1,
		StoreCapacity:     10000,
	}
}

func (c *Config) Validate() error {
	if c.NodeCount <= 0 {
		return configErrorf("node_count", "must be positive, got %d", c.NodeCount)
	}
	if _, err := ParseConsensus(c.Consensus); err != nil {
		return &ConfigError{Field: "consensus", Err: err}
	}
	if _, err := ParseTopologyKind(c.Topology.Kind); err != nil {
		return &ConfigError{Field: "topology.kind", Err: err}
	}
	if c.Topology.Kind == string(TopologyRandom) && (c.Topology.EdgeProb <= 0 || c.Topology.EdgeProb > 1) {
		return configErrorf("topology.edge_prob", "must be in (0, 1], got %v", c.Topology.EdgeProb)
	}
	if err := c.Topology.Latency.validate("topology.latency"); err != nil {
		return err
	}
	if err := c.Weights.validate("weights"); err != nil {
		return err
	}
	if len(c.NodeWeights) > 0 {
		if len(c.NodeWeights) != c.NodeCount {
			return configErrorf("node_weights", "got %d entries for %d nodes", len(c.NodeWeights), c.NodeCount)
		}
		for i, w := range c.NodeWeights {
			if w < 0 {
				return configErrorf("node_weights", "entry %d is negative", i)
			}
		}
	}
	if c.BlockInterval <= 0 {
		return configErrorf("block_interval", "must be positive, got %v", c.BlockInterval)
	}
	if c.ConsensusInterval < 0 {
		return configErrorf("consensus_interval", "must be non-negative, got %v", c.ConsensusInterval)
	}
	if c.StartJitter < 0 {
		return configErrorf("start_jitter", "must be non-negative, got %v", c.StartJitter)
	}
	if c.DropRate < 0 || c.DropRate >= 1 {
		return configErrorf("drop_rate", "must be in [0, 1), got %v", c.DropRate)
	}
	if c.Horizon.MaxTime <= 0 && c.Horizon.MaxBlocks == 0 {
		return configErrorf("horizon", "either max_time or max_blocks must be set")
	}
	if c.StoreCapacity <= 0 {
		return configErrorf("store_capacity", "must be positive, got %d", c.StoreCapacity)
	}
	return nil
}
