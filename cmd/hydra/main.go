// Command hydra runs the editing-bridge relay between an admin application
// and a decoupled content frontend.
package main

import (
	"fmt"
	"os"

	"github.com/collective/volto-hydra/cmd/hydra/commands"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "check":
		err = commands.CheckCommand(args)
	case "version":
		fmt.Printf("hydra version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("hydra - editing bridge relay for decoupled frontends")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  hydra serve [directory]   Start the relay server")
	fmt.Println("  hydra check [directory]   Validate the configuration")
	fmt.Println("  hydra version             Show version")
	fmt.Println("  hydra help                Show this help")
	fmt.Println()
	fmt.Println("Serve options:")
	fmt.Println("  --config, -c PATH   Configuration file (default: hydra.yaml)")
	fmt.Println("  --port, -p PORT     Override listen port")
	fmt.Println("  --host HOST         Override listen host")
	fmt.Println("  --watch, -w         Watch the directory and reload frames")
	fmt.Println("  --debug             Verbose logging")
}
