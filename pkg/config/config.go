// Package config loads the node's runtime configuration from JSON,
// the payload the foreign-function `new` call receives verbatim.
package config

import (
	"bytes"
	"encoding/json"
	"io"

	"github.com/nipsysdev/logos-storage-go/pkg/storageerr"
)

// Config holds every field the foreign `new(configJson, ...)` call may
// set, with a default applied to anything left zero.
type Config struct {
	DataDir              string   `json:"data-dir"`
	LogLevel             string   `json:"log-level"`
	LogFormat            string   `json:"log-format"`
	APIPort              int      `json:"api-port"`
	DiscPort             int      `json:"disc-port"`
	ListenAddrs          []string `json:"listen-addrs"`
	BootstrapNode        string   `json:"bootstrap-node"`
	NAT                  string   `json:"nat"`
	StorageQuota         uint64   `json:"storage-quota"`
	BlockTTL             int64    `json:"block-ttl"`
	NumThreads           int      `json:"num-threads"`
	BlockRetries         int      `json:"block-retries"`
	APICorsAllowedOrigin string   `json:"api-cors-allowed-origin"`
	StorageBackend       string   `json:"storage-backend"`
	DefaultBlockSize     uint32   `json:"default-block-size"`
}

const (
	defaultAPIPort          = 8080
	defaultDiscPort         = 8090
	defaultLogLevel         = "INFO"
	defaultLogFormat        = "text"
	defaultBlockRetries     = 3
	defaultDefaultBlockSize = 64 * 1024
	defaultCorsOrigin       = "*"
)

func defaults() Config {
	return Config{
		DataDir:              "./data",
		LogLevel:             defaultLogLevel,
		LogFormat:            defaultLogFormat,
		APIPort:              defaultAPIPort,
		DiscPort:             defaultDiscPort,
		NAT:                  "any",
		BlockRetries:         defaultBlockRetries,
		APICorsAllowedOrigin: defaultCorsOrigin,
		StorageBackend:       "badger",
		DefaultBlockSize:     defaultDefaultBlockSize,
	}
}

// Load decodes JSON configuration from r into Config, starting from
// this module's defaults and overriding whatever the input sets.
//
// Decoding is strict: an unrecognized field is a load error rather than
// being silently ignored, so a typo in a config file fails fast instead
// of quietly falling back to a default the caller didn't intend.
func Load(r io.Reader) (Config, error) {
	cfg := defaults()
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return Config{}, storageerr.Wrap(storageerr.InvalidArgument, "config.Load", err)
	}
	if cfg.NumThreads < 0 {
		return Config{}, storageerr.Newf(storageerr.InvalidArgument, "config.Load", "num-threads must not be negative")
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, storageerr.Newf(storageerr.InvalidArgument, "config.Load", "log-format must be \"text\" or \"json\", got %q", cfg.LogFormat)
	}
	return cfg, nil
}

// Parse is a convenience wrapper over Load for a JSON string, matching
// the shape of the foreign `new(configJson, ...)` call.
func Parse(configJSON string) (Config, error) {
	return Load(bytes.NewReader([]byte(configJSON)))
}
