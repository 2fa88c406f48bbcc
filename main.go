package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-vitals/vitals/internal/bootstrap"
	"github.com/go-vitals/vitals/internal/config"
	"github.com/go-vitals/vitals/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	flag.Usage = printUsage
	flag.Parse()

	if *showVersion {
		version.PrintVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "server":
		if err := bootstrap.Run(config.Load()); err != nil {
			log.Fatalf("Failed to start: %v", err)
		}
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Printf("Usage: %s [OPTIONS] COMMAND\n\n", os.Args[0])
	fmt.Println("Health dashboard backend (Oura + Strava OAuth aggregation)")
	fmt.Println("\nCommands:")
	fmt.Println("  server    Start the API server")
	fmt.Println("\nOptions:")
	fmt.Println("  -v, --version    Show version information")
	fmt.Println("  -h, --help       Show this help message")
}
