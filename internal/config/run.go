// Package config loads receive-run configuration from JSON files. Fields
// omitted from the file keep their defaults, so partial configs are safe, and
// command-line flags can still override individual values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Defaults applied when neither the file nor a flag sets a value.
const (
	DefaultHost        = "localhost"
	DefaultPort        = 2115
	DefaultProtocol    = "udp"
	DefaultSegments    = 200
	DefaultChunkSize   = 1024
	DefaultMaxDatagram = 65535
)

// RunConfig describes one receive run. Pointer fields distinguish "absent"
// from zero values when merging file contents over defaults.
type RunConfig struct {
	Host        *string `json:"host,omitempty"`
	Port        *int    `json:"port,omitempty"`
	Protocol    *string `json:"protocol,omitempty"` // "udp" or "tcp"
	Segments    *int    `json:"segments,omitempty"`
	ChunkSize   *int    `json:"chunk_size,omitempty"`   // tcp per-read buffer
	MaxDatagram *int    `json:"max_datagram,omitempty"` // udp receive buffer
	SkipErrors  *bool   `json:"skip_errors,omitempty"`  // skip-and-log decode policy
	RecordPath  *string `json:"record_path,omitempty"`  // sqlite recorder target
}

// LoadRunConfig loads a RunConfig from a JSON file. The path must have a
// .json extension and stay under a 1 MB size cap.
func LoadRunConfig(path string) (*RunConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg := &RunConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no run could use.
func (c *RunConfig) Validate() error {
	if c.Port != nil && (*c.Port < 1 || *c.Port > 65535) {
		return fmt.Errorf("port %d out of range", *c.Port)
	}
	if c.Protocol != nil && *c.Protocol != "udp" && *c.Protocol != "tcp" {
		return fmt.Errorf("protocol must be udp or tcp, got %q", *c.Protocol)
	}
	if c.Segments != nil && *c.Segments < 1 {
		return fmt.Errorf("segments must be positive, got %d", *c.Segments)
	}
	if c.ChunkSize != nil && *c.ChunkSize < 1 {
		return fmt.Errorf("chunk_size must be positive, got %d", *c.ChunkSize)
	}
	if c.MaxDatagram != nil && *c.MaxDatagram < 1 {
		return fmt.Errorf("max_datagram must be positive, got %d", *c.MaxDatagram)
	}
	return nil
}

// Accessors returning the configured value or the default.

func (c *RunConfig) HostOrDefault() string {
	if c != nil && c.Host != nil {
		return *c.Host
	}
	return DefaultHost
}

func (c *RunConfig) PortOrDefault() int {
	if c != nil && c.Port != nil {
		return *c.Port
	}
	return DefaultPort
}

func (c *RunConfig) ProtocolOrDefault() string {
	if c != nil && c.Protocol != nil {
		return *c.Protocol
	}
	return DefaultProtocol
}

func (c *RunConfig) SegmentsOrDefault() int {
	if c != nil && c.Segments != nil {
		return *c.Segments
	}
	return DefaultSegments
}

func (c *RunConfig) ChunkSizeOrDefault() int {
	if c != nil && c.ChunkSize != nil {
		return *c.ChunkSize
	}
	return DefaultChunkSize
}

func (c *RunConfig) MaxDatagramOrDefault() int {
	if c != nil && c.MaxDatagram != nil {
		return *c.MaxDatagram
	}
	return DefaultMaxDatagram
}

func (c *RunConfig) SkipErrorsOrDefault() bool {
	if c != nil && c.SkipErrors != nil {
		return *c.SkipErrors
	}
	return false
}

func (c *RunConfig) RecordPathOrDefault() string {
	if c != nil && c.RecordPath != nil {
		return *c.RecordPath
	}
	return ""
}
