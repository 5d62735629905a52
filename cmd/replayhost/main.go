// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/wingedpig/replayhost/internal/app"
	"github.com/wingedpig/replayhost/internal/config"
	"github.com/wingedpig/replayhost/internal/swarm"
)

var (
	version = "0.9.0"
)

func main() {
	// Check for subcommands before flag parsing
	subcommands := map[string]func() error{
		"init": runInit,
		"seed": runSeed,
	}
	if len(os.Args) > 1 {
		if run, ok := subcommands[os.Args[1]]; ok {
			if err := run(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}

	var (
		configPath  string
		host        string
		port        int
		showVersion bool
		debug       bool
	)

	flag.StringVar(&configPath, "config", "", "Path to config file (default: auto-detect)")
	flag.StringVar(&configPath, "c", "", "Path to config file (short)")
	flag.StringVar(&host, "host", "", "Control server host (overrides config)")
	flag.IntVar(&port, "port", 0, "Control server port (overrides config)")
	flag.BoolVar(&showVersion, "version", false, "Show version")
	flag.BoolVar(&showVersion, "v", false, "Show version (short)")
	flag.BoolVar(&debug, "debug", false, "Enable debug mode")
	flag.Parse()

	if showVersion {
		fmt.Printf("replayhost %s\n", version)
		os.Exit(0)
	}

	if configPath == "" {
		found, err := config.NewLoader().FindConfig()
		if err != nil {
			log.Printf("No config file found, using defaults")
		}
		configPath = found
	}
	if configPath != "" {
		log.Printf("Using config: %s", configPath)
	}

	application, err := app.New(app.Options{
		ConfigPath: configPath,
		Host:       host,
		Port:       port,
		Debug:      debug,
		Version:    version,
	})
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	// Archives named on the command line are opened at startup.
	for _, path := range flag.Args() {
		if err := application.OpenWARC(context.Background(), path); err != nil {
			log.Printf("%s: %v", path, err)
		}
	}

	if err := application.Run(context.Background()); err != nil {
		log.Fatalf("App error: %v", err)
	}
}

// runSeed serves archives stored under a directory to syncing hosts.
func runSeed() error {
	seedFlags := flag.NewFlagSet("seed", flag.ExitOnError)
	dir := seedFlags.String("dir", ".", "Directory holding one sub-directory per content key")
	listen := seedFlags.String("listen", ":3282", "Address to accept peers on")
	seedFlags.Parse(os.Args[2:])

	seeder := swarm.NewSeeder(config.ExpandPath(*dir))
	if err := seeder.Listen(*listen); err != nil {
		return err
	}
	log.Printf("Seeding %s on %s", *dir, seeder.Addr())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Println("Stopping seeder...")
	return seeder.Close()
}

// runInit writes a starter replayhost.hjson in the current directory.
func runInit() error {
	initFlags := flag.NewFlagSet("init", flag.ExitOnError)
	showHelp := initFlags.Bool("help", false, "Show help for init command")
	initFlags.BoolVar(showHelp, "h", false, "Show help for init command")
	initFlags.Parse(os.Args[2:])

	if *showHelp {
		fmt.Println(`Usage: replayhost init [options]

Create a new replayhost.hjson configuration file in the current directory.

Options:
  -h, -help    Show this help message

The command will ask about:
  - Path to the replay backend binary
  - Directory synced archives are downloaded to
  - Seeders to sync from`)
		return nil
	}

	configFile := "replayhost.hjson"
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("%s already exists; remove it first or use a different directory", configFile)
	}

	defaults := &config.Config{}
	config.ApplyDefaults(defaults)

	reader := bufio.NewReader(os.Stdin)
	fmt.Println("replayhost Configuration Setup")
	fmt.Println("==============================")
	fmt.Println("Press Enter to accept defaults shown in [brackets].")
	fmt.Println()

	binary := prompt(reader, "Backend binary", defaults.Backend.Binary)
	downloadDir := prompt(reader, "Download directory", "~/Downloads/webrecorder-dat")
	peers := prompt(reader, "Seeders (host:port, comma separated, or empty)", "")

	content := generateConfig(binary, downloadDir, splitList(peers), defaults.Control.Port)
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Println()
	fmt.Printf("Created %s\n", configFile)
	fmt.Println("Next: run ./replayhost")
	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// escapeHJSONValue escapes a string for safe inclusion in an HJSON double-quoted value.
func escapeHJSONValue(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

func generateConfig(binary, downloadDir string, peers []string, port int) string {
	var sb strings.Builder

	sb.WriteString("{\n")
	sb.WriteString("  // replayhost configuration (HJSON: JSON with comments and relaxed syntax)\n\n")

	sb.WriteString("  backend: {\n")
	fmt.Fprintf(&sb, "    binary: \"%s\"\n", escapeHJSONValue(binary))
	sb.WriteString("    cache_dir: \"_warc_cache\"\n")
	sb.WriteString("    // Grace period before the backend is killed\n")
	sb.WriteString("    stop_timeout: \"5s\"\n")
	sb.WriteString("    // \"0\" waits forever for the backend to report its port\n")
	sb.WriteString("    startup_timeout: \"60s\"\n")
	sb.WriteString("  }\n\n")

	sb.WriteString("  sync: {\n")
	fmt.Fprintf(&sb, "    download_dir: \"%s\"\n", escapeHJSONValue(downloadDir))
	sb.WriteString("    settle_delay: \"750ms\"\n")
	sb.WriteString("    peers: [")
	for i, p := range peers {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "\"%s\"", escapeHJSONValue(p))
	}
	sb.WriteString("]\n")
	sb.WriteString("  }\n\n")

	sb.WriteString("  control: {\n")
	sb.WriteString("    host: \"127.0.0.1\"\n")
	fmt.Fprintf(&sb, "    port: %d\n", port)
	sb.WriteString("  }\n")
	sb.WriteString("}\n")

	return sb.String()
}
