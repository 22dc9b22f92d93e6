// matrixpush — PixelPusher protocol server for LED matrix displays
//
// Usage:
//
//	matrixpush serve   — advertise and accept PixelPusher pixel frames
//	matrixpush status  — query a running server for live stats
//	matrixpush push    — send a burst of test frames to a server
package main

import (
	"fmt"
	"os"

	"matrixpush/cmd/push"
	"matrixpush/cmd/serve"
	"matrixpush/cmd/status"
)

const (
	defaultSystemPath = "/etc/matrixpush/config.toml"
	defaultLocalPath  = "config.toml"
	version           = "1.0.0"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	configPath := ""

	// Parse --config flag if present
	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			args = append(args[:i], args[i+2:]...)
			i--
			continue
		}
		if len(arg) > 9 && arg[:9] == "--config=" {
			configPath = arg[9:]
			args = append(args[:i], args[i+1:]...)
			i--
			continue
		}
	}

	// Auto-discover config if not specified
	if configPath == "" {
		if _, err := os.Stat(defaultLocalPath); err == nil {
			configPath = defaultLocalPath
		} else {
			configPath = defaultSystemPath
		}
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	subcommand := args[0]
	var err error

	switch subcommand {
	case "serve":
		err = serve.Run(configPath)
	case "status":
		err = status.Run(configPath)
	case "push":
		err = push.Run(configPath, args[1:])
	case "edit":
		err = serve.EditConfig(configPath)
	case "version":
		fmt.Printf("matrixpush v%s\n", version)
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", subcommand)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf(`matrixpush v%s — PixelPusher protocol server for LED matrices

Usage:
  matrixpush <command> [--config <path>]

Commands:
  serve    Start the PixelPusher server (beacon + pixel receiver)
  status   Print live stats of a running server
  push     Send a burst of test frames to a server (debugging aid)
  edit     Edit the configuration file in your system editor
  version  Print version information
  help     Show this help message

Options:
  --config <path>  Path to config file (default: looks for ./config.toml, then %s)

Examples:
  matrixpush serve                      # Start the server with default config
  matrixpush edit                       # Edit configuration
  matrixpush push 192.168.1.40 ff0000   # Paint a remote display red

`, version, defaultSystemPath)
}
