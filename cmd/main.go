package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reelcache/pkg/engine"
)

const defaultConfigPath = "reelcache.config.yaml"

func printRootHelp() {
	fmt.Println(`reelcache - media cache proxy for video carousels

Usage:
  reelcache <command> [options]

Available Commands:
  init      Write a default config file
  up        Start the reelcache proxy
  down      Stop the reelcache proxy
  clear     Delete every cache partition of a disk or redis backend
  help      Show help for a command

Run 'reelcache help <command>' for details on a specific command.`)
}

func printCommandHelp(command, summary string) {
	fmt.Printf(`%s

Usage:
  reelcache %s [--config <path>]

Options:
  --config   Path to reelcache config YAML file (default: ./%s)
`, summary, command, defaultConfigPath)
}

// parseConfigPath parses the flags after the command and resolves --config.
func parseConfigPath(command string, mustExist bool) string {
	cmd := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := cmd.String("config", defaultConfigPath, "Path to configuration YAML file")

	if err := cmd.Parse(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	absPath, err := filepath.Abs(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to resolve config path: %v\n", err)
		os.Exit(1)
	}

	if mustExist {
		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Config file not found: %s\n", absPath)
			os.Exit(1)
		}
	}
	return absPath
}

func main() {
	if len(os.Args) < 2 {
		printRootHelp()
		os.Exit(1)
	}

	switch os.Args[1] {

	case "init":
		configPath := parseConfigPath("init", false)
		if _, err := os.Stat(configPath); err == nil {
			fmt.Fprintf(os.Stderr, "Config file already exists: %s\n", configPath)
			os.Exit(1)
		}
		if err := engine.InitConfig(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to write config: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote default config to %s\n", configPath)

	case "up":
		configPath := parseConfigPath("up", true)
		proxyEngine := engine.InstantiateReelcacheEngine(configPath)
		proxyEngine.Run()

	case "down":
		configPath := parseConfigPath("down", true)
		if err := engine.KillReelcache(configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Unable to stop the reelcache proxy at %s: %v\n", configPath, err)
			os.Exit(1)
		}
		fmt.Printf("Shut down reelcache proxy at %s\n", configPath)

	case "clear":
		configPath := parseConfigPath("clear", true)
		deleted, err := engine.ClearCaches(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to clear caches: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted %d cache partitions\n", len(deleted))
		for _, name := range deleted {
			fmt.Printf("  %s\n", name)
		}

	case "help":
		if len(os.Args) == 2 {
			printRootHelp()
			return
		}
		switch os.Args[2] {
		case "init":
			printCommandHelp("init", "Write a default config file.")
		case "up":
			printCommandHelp("up", "Start the reelcache proxy.")
		case "down":
			printCommandHelp("down", "Stop the reelcache proxy started with the same config.")
		case "clear":
			printCommandHelp("clear", "Delete every cache partition, whatever its version.")
		default:
			fmt.Printf("Unknown help topic: %s\n", os.Args[2])
			printRootHelp()
			os.Exit(1)
		}

	default:
		fmt.Printf("Unknown command: %s\n\n", os.Args[1])
		printRootHelp()
		os.Exit(1)
	}
}
