package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/utxob/Data-Recover-toll/carver"
	"github.com/utxob/Data-Recover-toll/exporter"
	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/signatures"
	"github.com/utxob/Data-Recover-toll/utils"
)

var ErrConfigurationInvalid = errors.New("configuration invalid")

type Mode string

const (
	ModeMetadata Mode = "metadata"
	ModeCarving  Mode = "carving"
)

const MinChunkSize = 4096

// Config is the resolved configuration of one session.
type Config struct {
	Mode         Mode
	Source       string
	ReaderMode   string
	Output       string
	Filter       filters.Config
	ChunkSize    int
	Shards       int
	Workers      int
	SectorSize   int
	ReadTimeout  time.Duration
	Partition    int
	Hash         string
	Strategy     string
	ResultsJSONL string
	ResultsDB    string
	LogFile      string
}

func DefaultConfig() Config {
	return Config{
		Mode:       ModeCarving,
		ReaderMode: "auto",
		Filter:     filters.Config{Recursive: true},
		ChunkSize:  carver.DefaultChunkSize,
		Shards:     1,
		Workers:    4,
		SectorSize: 512,
		Partition:  -1,
		Strategy:   exporter.StrategySequence,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationInvalid, fmt.Sprintf(format, args...))
}

// Validate rejects settings no run could honour. Registry is the catalogue carving would
// use, nil means the default one.
func (config Config) Validate(registry *signatures.Registry) error {
	if registry == nil {
		registry = signatures.Default()
	}
	switch config.Mode {
	case ModeMetadata, ModeCarving:
	default:
		return invalid("unknown mode %q", config.Mode)
	}
	if config.Output == "" {
		return invalid("output root is empty")
	}
	if config.ChunkSize < MinChunkSize {
		return invalid("chunk size %d below %d", config.ChunkSize, MinChunkSize)
	}
	if config.Shards < 1 || config.Workers < 1 {
		return invalid("shards and workers must be positive")
	}
	if config.SectorSize <= 0 || config.SectorSize%512 != 0 {
		return invalid("sector size %d", config.SectorSize)
	}
	if config.ReadTimeout < 0 {
		return invalid("negative read timeout")
	}
	if config.Filter.MaxSize < 0 {
		return invalid("negative max_size")
	}
	if _, err := utils.NewHasher(config.Hash); err != nil {
		return invalid("%v", err)
	}
	if config.Strategy != exporter.StrategySequence && config.Strategy != exporter.StrategyID {
		return invalid("unknown naming strategy %q", config.Strategy)
	}
	if config.Mode != ModeCarving {
		return nil
	}

	extensions := config.Filter.NormalizedExtensions()
	tags := registry.TagsForExtensions(extensions)
	if len(extensions) > 0 && len(tags) == 0 {
		return invalid("no signature carves %v", extensions)
	}
	if config.Filter.MaxSize > 0 {
		if minSize, tag := registry.LargestMinSize(tags); minSize > config.Filter.MaxSize {
			return invalid("max_size %d is smaller than the %d bytes %s needs", config.Filter.MaxSize, minSize, tag)
		}
	}
	return nil
}

// carvingRegistry keeps the signatures the extension filter selects, capped at max_size.
func (config Config) carvingRegistry(registry *signatures.Registry) (*signatures.Registry, error) {
	if extensions := config.Filter.NormalizedExtensions(); len(extensions) > 0 {
		subset, err := registry.Subset(registry.TagsForExtensions(extensions))
		if err != nil {
			return nil, err
		}
		registry = subset
	}
	return registry.Capped(config.Filter.MaxSize)
}

// excludedRegistry holds the signatures the extension filter drops, nil when none are.
func (config Config) excludedRegistry(registry *signatures.Registry) (*signatures.Registry, error) {
	extensions := config.Filter.NormalizedExtensions()
	if len(extensions) == 0 {
		return nil, nil
	}
	selected := make(map[string]bool)
	for _, tag := range registry.TagsForExtensions(extensions) {
		selected[tag] = true
	}
	var dropped []string
	for _, tag := range registry.Tags() {
		if !selected[tag] {
			dropped = append(dropped, tag)
		}
	}
	if len(dropped) == 0 {
		return nil, nil
	}
	return registry.Subset(dropped)
}
