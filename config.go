package rnnt

import (
	"fmt"
	"os"

	"golang.org/x/exp/constraints"
	"gopkg.in/yaml.v3"
)

// Decoding strategies.
const (
	StrategyGreedy = "greedy"
	StrategyBeam   = "beam"
)

// DecodingConfig holds the decoding-side knobs of a transducer session:
// strategy selection, buffer sizing, and which optional traces to keep.
// Model and checkpoint configuration stay with the external decoder.
type DecodingConfig struct {
	Strategy string       `yaml:"strategy"` // "greedy" or "beam"
	Greedy   GreedyConfig `yaml:"greedy"`
	Beam     BeamConfig   `yaml:"beam"`

	PreserveAlignments      bool                  `yaml:"preserve_alignments"`
	PreserveFrameConfidence bool                  `yaml:"preserve_frame_confidence"`
	WithDurationConfidence  bool                  `yaml:"with_duration_confidence"`
	ConfidenceAggregation   ConfidenceAggregation `yaml:"confidence_aggregation"`
}

// GreedyConfig holds greedy decoding settings.
type GreedyConfig struct {
	// MaxSymbolsPerFrame caps consecutive emissions on one frame. The
	// decoding loop enforces it against LastTimestepRepeats; buffers only
	// record the counter.
	MaxSymbolsPerFrame int `yaml:"max_symbols_per_frame"`
	InitCapacity       int `yaml:"init_capacity"`
}

// BeamConfig holds beam decoding settings.
type BeamConfig struct {
	Size         int   `yaml:"size"`
	InitCapacity int   `yaml:"init_capacity"`
	BlankID      int32 `yaml:"blank_id"`
}

// DefaultDecodingConfig returns a DecodingConfig with sensible defaults.
func DefaultDecodingConfig() *DecodingConfig {
	return &DecodingConfig{
		Strategy: StrategyGreedy,
		Greedy: GreedyConfig{
			MaxSymbolsPerFrame: 10,
			InitCapacity:       32,
		},
		Beam: BeamConfig{
			Size:         4,
			InitCapacity: 32,
			BlankID:      1024,
		},
		ConfidenceAggregation: ConfidenceMean,
	}
}

// LoadDecodingConfig reads and parses a YAML decoding config. Missing
// fields are filled with defaults.
func LoadDecodingConfig(path string) (*DecodingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading decoding config: %w", err)
	}

	cfg := DefaultDecodingConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing decoding config: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *DecodingConfig) Validate() error {
	switch c.Strategy {
	case StrategyGreedy, StrategyBeam:
	default:
		return fmt.Errorf("strategy must be %q or %q, got %q: %w", StrategyGreedy, StrategyBeam, c.Strategy, ErrInvalidArgument)
	}

	if c.Greedy.MaxSymbolsPerFrame <= 0 {
		return fmt.Errorf("greedy.max_symbols_per_frame must be > 0, got %d: %w", c.Greedy.MaxSymbolsPerFrame, ErrInvalidArgument)
	}
	if c.Greedy.InitCapacity <= 0 {
		return fmt.Errorf("greedy.init_capacity must be > 0, got %d: %w", c.Greedy.InitCapacity, ErrInvalidArgument)
	}

	if c.Beam.Size <= 0 {
		return fmt.Errorf("beam.size must be > 0, got %d: %w", c.Beam.Size, ErrInvalidArgument)
	}
	if c.Beam.InitCapacity <= 0 {
		return fmt.Errorf("beam.init_capacity must be > 0, got %d: %w", c.Beam.InitCapacity, ErrInvalidArgument)
	}
	if c.Beam.BlankID < 0 {
		return fmt.Errorf("beam.blank_id must be >= 0, got %d: %w", c.Beam.BlankID, ErrInvalidArgument)
	}

	if !c.ConfidenceAggregation.valid() {
		return fmt.Errorf("confidence_aggregation must be mean, min, max, or prod, got %q: %w", c.ConfidenceAggregation, ErrInvalidArgument)
	}

	return nil
}

// NewBatchedHypsFromConfig builds a greedy hypothesis buffer for batchSize
// utterances with the config's greedy sizing.
func NewBatchedHypsFromConfig[F constraints.Float](cfg *DecodingConfig, batchSize int) (*BatchedHyps[F], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return NewBatchedHyps[F](batchSize, cfg.Greedy.InitCapacity)
}

// NewBatchedAlignmentsFromConfig builds an alignment buffer recording the
// sections the config's trace flags select. logitsDim is the width of one
// joint output row. The trace starts at the greedy initial capacity and
// grows independently per frame.
func NewBatchedAlignmentsFromConfig[F constraints.Float](cfg *DecodingConfig, batchSize, logitsDim int) (*BatchedAlignments[F], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return NewBatchedAlignments[F](batchSize, logitsDim, cfg.Greedy.InitCapacity, AlignmentOptions{
		StoreAlignments:        cfg.PreserveAlignments,
		StoreFrameConfidence:   cfg.PreserveFrameConfidence,
		WithDurationConfidence: cfg.WithDurationConfidence,
	})
}

// NewBatchedBeamHypsFromConfig builds a beam buffer for batchSize
// utterances with the config's beam settings.
func NewBatchedBeamHypsFromConfig[F constraints.Float](cfg *DecodingConfig, batchSize int) (*BatchedBeamHyps[F], error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return NewBatchedBeamHyps[F](batchSize, cfg.Beam.Size, cfg.Beam.InitCapacity, cfg.Beam.BlankID)
}
