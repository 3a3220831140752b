// Package main is the convertctl command: an interactive shell and one-shot
// commands for the SWIFT MT to MX conversion API.
package main

import (
	"fmt"
	"os"
)

// Version is set at build time via ldflags.
var Version = "v0.1.0"

func main() {
	args := os.Args[1:]

	// Global flags come before the subcommand.
	var opts globalOptions
	i := 0
parseLoop:
	for i < len(args) {
		switch args[i] {
		case "-h", "--help":
			printUsage()
			return
		case "-c", "--config":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --config requires a value")
				os.Exit(1)
			}
			opts.configPath = args[i+1]
			i += 2
		case "-d", "--debug":
			opts.debug = true
			i++
		case "--api":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "Error: --api requires a value")
				os.Exit(1)
			}
			opts.apiURL = args[i+1]
			i += 2
		default:
			break parseLoop
		}
	}
	args = args[i:]

	command := "shell"
	if len(args) > 0 {
		command, args = args[0], args[1:]
	}

	var code int
	switch command {
	case "shell":
		code = runShell(opts)
	case "convert":
		code = runConvertCommand(opts, args)
	case "balance":
		code = runBalanceCommand(opts)
	case "version", "-v", "--version":
		fmt.Printf("convertctl %s\n", Version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		code = 2
	}
	os.Exit(code)
}

type globalOptions struct {
	configPath string
	apiURL     string
	debug      bool
}

func printUsage() {
	fmt.Println("convertctl - SWIFT MT to ISO 20022 MX conversion client")
	fmt.Println()
	fmt.Println("Usage: convertctl [OPTIONS] [COMMAND] [ARGS...]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  shell                      Interactive session (default)")
	fmt.Println("  convert -t TYPE [-o OUT] [FILE]  Convert one message (FILE or stdin)")
	fmt.Println("  balance                    Show the credit balance")
	fmt.Println("  version                    Print the version")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -c, --config FILE    YAML config file")
	fmt.Println("  --api URL            API base URL (overrides config)")
	fmt.Println("  -d, --debug          Enable debug logging")
	fmt.Println("  -h, --help           Show this help")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  CONVERT_API_URL        API base URL")
	fmt.Println("  CONVERT_SESSION_TOKEN  Start with this credential already signed in")
	fmt.Println("  CONVERT_LOG_LEVEL      debug, info, warn, error")
}
