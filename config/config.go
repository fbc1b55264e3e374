// Package config loads session configuration from YAML files.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/session"
)

var ErrConfigurationInvalid = session.ErrConfigurationInvalid

// File is the YAML layout of a session configuration, missing keys keep their defaults.
type File struct {
	Mode        string         `yaml:"mode"`
	Source      string         `yaml:"source"`
	Reader      string         `yaml:"reader"`
	Output      string         `yaml:"output"`
	Filter      filters.Config `yaml:"filter"`
	ChunkSize   int            `yaml:"chunk_size_mib"`
	Shards      int            `yaml:"shards"`
	Workers     int            `yaml:"workers"`
	SectorSize  int            `yaml:"sector_size"`
	ReadTimeout time.Duration  `yaml:"read_timeout"`
	Partition   int            `yaml:"partition"`
	Hash        string         `yaml:"hash"`
	Strategy    string         `yaml:"strategy"`
	Results     ResultsConfig  `yaml:"results"`
	Log         string         `yaml:"log,omitempty"`
}

type ResultsConfig struct {
	JSONL  string `yaml:"jsonl,omitempty"`
	SQLite string `yaml:"sqlite,omitempty"`
}

// Defaults mirrors session.DefaultConfig.
func Defaults() File {
	defaults := session.DefaultConfig()
	return File{
		Mode:        string(defaults.Mode),
		Reader:      defaults.ReaderMode,
		Filter:      defaults.Filter,
		ChunkSize:   defaults.ChunkSize / (1024 * 1024),
		Shards:      defaults.Shards,
		Workers:     defaults.Workers,
		SectorSize:  defaults.SectorSize,
		ReadTimeout: defaults.ReadTimeout,
		Partition:   defaults.Partition,
		Hash:        defaults.Hash,
		Strategy:    defaults.Strategy,
	}
}

// ParseMode accepts the command names besides the mode names.
func ParseMode(mode string) (session.Mode, error) {
	switch strings.ToLower(mode) {
	case "metadata", "deleted":
		return session.ModeMetadata, nil
	case "carving", "carve":
		return session.ModeCarving, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrConfigurationInvalid, mode)
}

func Load(path string) (session.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return session.Config{}, fmt.Errorf("load config %q: %w", path, err)
	}
	file, err := Parse(data)
	if err != nil {
		return session.Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}
	return file.Resolve()
}

// Parse decodes data over the defaults, unknown keys are rejected.
func Parse(data []byte) (File, error) {
	file := Defaults()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return File{}, fmt.Errorf("%w: %w", ErrConfigurationInvalid, err)
	}
	return file, nil
}

// Resolve converts the file into a validated session configuration.
func (file File) Resolve() (session.Config, error) {
	mode, err := ParseMode(file.Mode)
	if err != nil {
		return session.Config{}, err
	}
	config := session.Config{
		Mode:         mode,
		Source:       file.Source,
		ReaderMode:   file.Reader,
		Output:       file.Output,
		Filter:       file.Filter,
		ChunkSize:    file.ChunkSize * 1024 * 1024,
		Shards:       file.Shards,
		Workers:      file.Workers,
		SectorSize:   file.SectorSize,
		ReadTimeout:  file.ReadTimeout,
		Partition:    file.Partition,
		Hash:         file.Hash,
		Strategy:     file.Strategy,
		ResultsJSONL: file.Results.JSONL,
		ResultsDB:    file.Results.SQLite,
		LogFile:      file.Log,
	}
	config.Filter.Extensions = config.Filter.NormalizedExtensions()
	if err := config.Validate(nil); err != nil {
		return session.Config{}, err
	}
	return config, nil
}

// Marshal renders file as YAML, used to write a starting configuration.
func (file File) Marshal() ([]byte, error) {
	return yaml.Marshal(file)
}
