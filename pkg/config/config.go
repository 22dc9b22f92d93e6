// Package config provides TOML configuration loading for matrixpush.
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration structure.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Display DisplayConfig `toml:"display"`
}

// ServerConfig holds settings for the PixelPusher protocol server.
type ServerConfig struct {
	Interface      string `toml:"interface"`
	ListenPort     int    `toml:"listen_port"`
	DiscoveryPort  int    `toml:"discovery_port"`
	UDPPacketSize  int    `toml:"udp_packet_size"`
	Logarithmic    bool   `toml:"logarithmic"`
	Controller     int    `toml:"controller"`
	Group          int    `toml:"group"`
	ArtnetUniverse int    `toml:"artnet_universe"`
	ArtnetChannel  int    `toml:"artnet_channel"`
	RPCSocket      string `toml:"rpc_socket"`
	LogLevel       string `toml:"log_level"`
}

// DisplayConfig describes the attached display geometry and the optional
// frame dump sink.
type DisplayConfig struct {
	Rows     int    `toml:"rows"`
	Columns  int    `toml:"columns"`
	DumpPath string `toml:"dump_path"`
}

// Load reads and parses a TOML config file, applying defaults for unset values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	applyDefaults(cfg)
	cfg.expandPaths()
	return cfg, nil
}

func (cfg *Config) expandPaths() {
	cfg.Display.DumpPath = ExpandPath(cfg.Display.DumpPath)
}

// ExpandPath expands tilde (~) to the user's home directory.
func ExpandPath(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	usr, err := user.Current()
	if err != nil {
		return path
	}
	if path == "~" {
		return usr.HomeDir
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}

func applyDefaults(cfg *Config) {

	// Server defaults
	if cfg.Server.ListenPort == 0 {
		cfg.Server.ListenPort = 5078
	}
	if cfg.Server.DiscoveryPort == 0 {
		cfg.Server.DiscoveryPort = 7331
	}
	if cfg.Server.UDPPacketSize == 0 {
		cfg.Server.UDPPacketSize = 65507
	}
	if cfg.Server.RPCSocket == "" {
		cfg.Server.RPCSocket = "/run/matrixpush/server.sock"
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = "info"
	}

	// Display defaults
	if cfg.Display.Rows == 0 {
		cfg.Display.Rows = 64
	}
	if cfg.Display.Columns == 0 {
		cfg.Display.Columns = 64
	}
}
