// Package config loads runtime builder settings from YAML or TOML files.
//
// Only settings the launcher leaves to the caller are configurable. The LIFO
// slot, thread naming and driver toggles are fixed by taskrt.Build.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/Swind/taskrt/core"
	"gopkg.in/yaml.v3"
)

// Format is a config file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrUnknownFlavor     = errors.New("unknown runtime flavor")
)

// Runtime is the file form of a core.Builder.
//
//	flavor = "multi_thread"          # or "current_thread"
//	name = "api"
//	worker_threads = 8
//	max_blocking_threads = 64
//	thread_keep_alive = "30s"
//	global_queue_interval = 31
//
// Unset numeric fields keep the engine defaults.
type Runtime struct {
	Flavor              string `yaml:"flavor" toml:"flavor"`
	Name                string `yaml:"name" toml:"name"`
	WorkerThreads       *int   `yaml:"worker_threads" toml:"worker_threads"`
	MaxBlockingThreads  *int   `yaml:"max_blocking_threads" toml:"max_blocking_threads"`
	ThreadKeepAlive     string `yaml:"thread_keep_alive" toml:"thread_keep_alive"`
	GlobalQueueInterval *int   `yaml:"global_queue_interval" toml:"global_queue_interval"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, path)
	}
}

// Load reads a runtime config file. The format follows the extension.
func Load(path string) (Runtime, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return Runtime{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Runtime{}, fmt.Errorf("load runtime config: %w", err)
	}
	cfg, err := Parse(data, format)
	if err != nil {
		return Runtime{}, fmt.Errorf("load runtime config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes data in the given format. Unknown keys are rejected.
func Parse(data []byte, format Format) (Runtime, error) {
	var cfg Runtime
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Runtime{}, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		meta, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return Runtime{}, fmt.Errorf("decode toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Runtime{}, fmt.Errorf("decode toml: unknown keys %v", undecoded)
		}
	default:
		return Runtime{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return cfg, nil
}

// Builder returns a builder carrying these settings. Range checks are left
// to core.Builder.Build.
func (c Runtime) Builder() (*core.Builder, error) {
	var b *core.Builder
	switch strings.TrimSpace(c.Flavor) {
	case "", core.FlavorMultiThread.String():
		b = core.NewMultiThread()
	case core.FlavorCurrentThread.String():
		b = core.NewCurrentThread()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFlavor, c.Flavor)
	}

	if name := strings.TrimSpace(c.Name); name != "" {
		b.Name(name)
	}
	if c.WorkerThreads != nil {
		b.WorkerThreads(*c.WorkerThreads)
	}
	if c.MaxBlockingThreads != nil {
		b.MaxBlockingThreads(*c.MaxBlockingThreads)
	}
	if c.GlobalQueueInterval != nil {
		b.GlobalQueueInterval(*c.GlobalQueueInterval)
	}
	if s := strings.TrimSpace(c.ThreadKeepAlive); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return nil, fmt.Errorf("thread_keep_alive: %w", err)
		}
		b.ThreadKeepAlive(d)
	}
	return b, nil
}
