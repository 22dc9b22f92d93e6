// Package serve implements the matrixpush server CLI entry point.
package serve

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"matrixpush/internal/device"
	"matrixpush/internal/rpc"
	"matrixpush/internal/server"
	"matrixpush/pkg/config"
	"matrixpush/pkg/logger"
)

// Run starts the PixelPusher server and blocks until a signal arrives.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logger.Init(cfg.Server.LogLevel)

	if cfg.Display.Rows < 1 || cfg.Display.Rows > 255 {
		return fmt.Errorf("display rows must be 1..255, got %d", cfg.Display.Rows)
	}
	if cfg.Display.Columns < 1 {
		return fmt.Errorf("display columns must be positive, got %d", cfg.Display.Columns)
	}

	// Ensure RPC socket directory exists
	sockDir := filepath.Dir(cfg.Server.RPCSocket)
	if err := os.MkdirAll(sockDir, 0700); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", sockDir, err)
	}

	out, cleanup, err := buildDevice(cfg, log)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := server.Start(server.Options{
		Interface:      cfg.Server.Interface,
		ListenPort:     cfg.Server.ListenPort,
		DiscoveryPort:  cfg.Server.DiscoveryPort,
		UDPPacketSize:  cfg.Server.UDPPacketSize,
		Logarithmic:    cfg.Server.Logarithmic,
		Controller:     int32(cfg.Server.Controller),
		Group:          int32(cfg.Server.Group),
		ArtnetUniverse: uint16(cfg.Server.ArtnetUniverse),
		ArtnetChannel:  uint16(cfg.Server.ArtnetChannel),
	}, out, log)
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	if err := rpc.StartServer(cfg.Server.RPCSocket, srv, log); err != nil {
		srv.Shutdown()
		return fmt.Errorf("starting RPC server: %w", err)
	}

	log.Info().
		Int("listen_port", cfg.Server.ListenPort).
		Int("discovery_port", cfg.Server.DiscoveryPort).
		Msg("matrixpush serving")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
	srv.Shutdown()
	os.Remove(cfg.Server.RPCSocket)
	return nil
}

// buildDevice picks the output sink: a frame dumper when dump_path is set,
// a plain in-memory display otherwise. The returned cleanup closes the
// dump file.
func buildDevice(cfg *config.Config, log zerolog.Logger) (device.Output, func(), error) {
	rows, cols := cfg.Display.Rows, cfg.Display.Columns

	if cfg.Display.DumpPath == "" {
		return device.NewMemoryOutput(rows, cols), func() {}, nil
	}

	f, err := os.OpenFile(cfg.Display.DumpPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening dump file %s: %w", cfg.Display.DumpPath, err)
	}
	log.Info().Str("dump_path", cfg.Display.DumpPath).Msg("Dumping committed frames")
	return device.NewDumpOutput(rows, cols, f, log), func() { f.Close() }, nil
}
