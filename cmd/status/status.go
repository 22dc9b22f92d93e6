// Package status implements the CLI that queries a running server over
// its Unix RPC socket and prints live stats with a host summary.
package status

import (
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"matrixpush/internal/rpc"
	"matrixpush/pkg/config"
)

// Run fetches and prints the server snapshot.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client, err := rpc.NewClient(cfg.Server.RPCSocket)
	if err != nil {
		return fmt.Errorf("is the server running? %w", err)
	}
	defer client.Close()

	snap, err := client.Stats()
	if err != nil {
		return fmt.Errorf("fetching stats: %w", err)
	}

	fmt.Printf("matrixpush server on %s\n\n", cfg.Server.RPCSocket)
	fmt.Printf("  Uptime:            %s\n", snap.Uptime.Round(time.Second))
	fmt.Printf("  Display:           %d strips × %d pixels\n", snap.StripsAttached, snap.PixelsPerStrip)
	fmt.Printf("  Packets received:  %d (%s)\n", snap.PacketsReceived, formatBytes(snap.BytesReceived))
	fmt.Printf("  Discarded:         %d\n", snap.Discards)
	fmt.Printf("  Pusher commands:   %d\n", snap.PusherCommands)
	fmt.Printf("  Last sequence:     %d\n", snap.LastSequence)
	fmt.Printf("  Update period:     %d µs\n", snap.UpdatePeriodUSec)

	printHostSummary()
	return nil
}

func printHostSummary() {
	fmt.Printf("\nHost:\n")
	if info, err := host.Info(); err == nil {
		fmt.Printf("  %s (%s, up %s)\n", info.Hostname, info.Platform,
			(time.Duration(info.Uptime) * time.Second).Round(time.Minute))
	}
	fmt.Printf("  %d CPUs, %s\n", runtime.NumCPU(), runtime.GOARCH)
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Printf("  Memory: %.1f%% of %s used\n", vm.UsedPercent, formatBytes(vm.Total))
	}
}

func formatBytes(n uint64) string {
	if n < 1024 {
		return fmt.Sprintf("%d B", n)
	}
	exp := int(math.Log2(float64(n)) / 10)
	units := []string{"B", "KiB", "MiB", "GiB", "TiB"}
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f %s", float64(n)/math.Pow(1024, float64(exp)), units[exp])
}
