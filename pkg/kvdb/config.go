package kvdb

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config holds the storage-layer configuration.
type Config struct {
	DataDir string `yaml:"data_dir"`
	DBFile  string `yaml:"db_file"`
	Backend string `yaml:"backend"` // bolt, map or mem

	// MapSize is the initial capacity of the memory-mapped backend,
	// in bytes. Zero uses the backend default.
	MapSize int64 `yaml:"map_size"`

	// Sync forces every write to disk before returning.
	Sync bool `yaml:"sync"`

	// DumpInterval is the timed-dump period in seconds. Zero disables
	// timed dumps.
	DumpInterval int `yaml:"dump_interval"`
}

// DefaultConfig returns the stock configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "data",
		DBFile:  "netmush.kv",
		Backend: "bolt",
		Sync:    true,
	}
}

// Path returns the backing file path for the active backend.
func (c *Config) Path() string {
	return filepath.Join(c.DataDir, c.DBFile)
}

// LoadConfig reads a YAML configuration file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kvdb: read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("kvdb: parse config %s: %w", path, err)
	}
	return cfg, nil
}

// WatchConfig starts an fsnotify watcher on a configuration file.
// When the file is rewritten it is reloaded and handed to apply; the
// caller decides which fields are safe to change live. The returned
// closer stops the watcher.
func WatchConfig(path string, apply func(*Config)) (io.Closer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("kvdb: config watcher: %w", err)
	}

	base := filepath.Base(path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				cfg, err := LoadConfig(path)
				if err != nil {
					log.Printf("kvdb: config reload failed: %v", err)
					continue
				}
				log.Printf("kvdb: configuration file changed: %s", path)
				apply(cfg)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("kvdb: config watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("kvdb: watch %s: %w", path, err)
	}
	return watcher, nil
}
