// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// replayhost-ctl is a command-line tool for controlling a running replayhost.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/wingedpig/replayhost/pkg/client"
)

var (
	version    = "0.9.0"
	apiURL     = "http://127.0.0.1:7480"
	jsonOutput = false

	apiClient *client.Client
)

func main() {
	if env := os.Getenv("REPLAYHOST_API"); env != "" {
		apiURL = strings.TrimSuffix(env, "/")
	}

	// Parse global flags and filter them out
	var filteredArgs []string
	for _, arg := range os.Args[1:] {
		if arg == "-json" {
			jsonOutput = true
		} else {
			filteredArgs = append(filteredArgs, arg)
		}
	}

	apiClient = client.New(apiURL)

	if len(filteredArgs) < 1 {
		printUsage()
		os.Exit(1)
	}

	cmd := filteredArgs[0]
	args := filteredArgs[1:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus(args)
	case "open":
		err = cmdOpen(args)
	case "sync":
		err = cmdSync(args)
	case "log":
		err = cmdLog(args)
	case "events":
		err = cmdEvents(args)
	case "watch":
		err = cmdWatch(args)
	case "version", "-v", "--version":
		fmt.Printf("replayhost-ctl %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`replayhost-ctl - Control a running replayhost

Usage:
  replayhost-ctl [-json] <command> [arguments]

Global Flags:
  -json          Output in JSON format

Environment:
  REPLAYHOST_API Base URL of the control server (default: http://127.0.0.1:7480)

Commands:
  status                   Show backend, proxy and sync status
  open <file>              Replay a .warc, .warc.gz, .arc, .arc.gz or .har file
  sync <dat://key>         Download an archive from the swarm and replay it
  log                      Show the backend log
  events [options]         Show recent control messages
    -n N                   Number of messages (default: 50)
    -type <type>           Only messages of this type (can repeat)
    -generation N          Only messages of this backend generation
  watch                    Stream control messages until interrupted
  version                  Show version`)
}

func ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func cmdStatus(args []string) error {
	c, cancel := ctx()
	defer cancel()

	status, err := apiClient.Status(c)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(status)
	}

	fmt.Printf("Version:    %s\n", strings.ReplaceAll(status.Version, "<BR>", " / "))
	fmt.Printf("Backend:    %s (generation %d)\n", status.Backend.State, status.Backend.Generation)
	if status.Backend.PID != 0 {
		fmt.Printf("PID:        %d\n", status.Backend.PID)
	}
	if status.Backend.Origin != "" {
		fmt.Printf("Serving:    %s (%s)\n", status.Backend.Origin, status.Backend.Mode)
	}
	if ep := status.Backend.Endpoint; ep != nil {
		fmt.Printf("Endpoint:   http://localhost:%d/\n", ep.Port)
	}
	proxy := status.Proxy
	if proxy == "" {
		proxy = "direct"
	}
	fmt.Printf("Session:    %s via %s\n", status.Session, proxy)
	if status.Plugin != "" {
		fmt.Printf("Plugin:     %s\n", status.Plugin)
	}
	if job := status.Sync; job != nil {
		fmt.Printf("Sync:       %s %d%% (%d/%d bytes)\n", job.Key, job.Percent, job.Downloaded, job.Length)
	}
	return nil
}

func cmdOpen(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: replayhost-ctl open <file>")
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	c, cancel := ctx()
	defer cancel()
	if err := apiClient.OpenWARC(c, path); err != nil {
		return err
	}
	fmt.Printf("Opening %s\n", path)
	return nil
}

func cmdSync(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: replayhost-ctl sync <dat://key>")
	}

	c, cancel := ctx()
	defer cancel()
	if err := apiClient.SyncDat(c, args[0]); err != nil {
		return err
	}
	fmt.Printf("Syncing %s\n", args[0])
	return nil
}

func cmdLog(args []string) error {
	c, cancel := ctx()
	defer cancel()

	resp, err := apiClient.AsyncCall(c)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(resp)
	}
	fmt.Print(strings.ReplaceAll(resp.Stdout, "<BR>", "\n"))
	return nil
}

type stringList []string

func (s *stringList) String() string     { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error { *s = append(*s, v); return nil }

func cmdEvents(args []string) error {
	fs := flag.NewFlagSet("events", flag.ContinueOnError)
	limit := fs.Int("n", 50, "Number of messages")
	generation := fs.Uint64("generation", 0, "Backend generation")
	var types stringList
	fs.Var(&types, "type", "Message type (can repeat)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, cancel := ctx()
	defer cancel()

	list, err := apiClient.Events(c, &client.ListOptions{
		Limit:      *limit,
		Types:      types,
		Generation: *generation,
	})
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(list)
	}

	for _, e := range list {
		fmt.Printf("%s  %-16s gen=%-3d %s\n", e.Timestamp.Format("15:04:05.000"), e.Type, e.Generation, string(e.Payload))
	}
	return nil
}

func cmdWatch(args []string) error {
	c, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	conn, err := apiClient.Dial(c)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-c.Done():
			return nil
		case msg, ok := <-conn.Messages():
			if !ok {
				return conn.Err()
			}
			if jsonOutput {
				if err := json.NewEncoder(os.Stdout).Encode(msg); err != nil {
					return err
				}
				continue
			}
			fmt.Println(formatMessage(msg))
		}
	}
}

// formatMessage renders a control message as one line.
func formatMessage(msg client.Message) string {
	switch msg.Type {
	case client.TypeIndexing:
		var p client.Indexing
		if msg.Decode(&p) == nil {
			return fmt.Sprintf("indexing       %s at %s", p.Source, p.Host)
		}
	case client.TypeIndexProgress:
		var p client.IndexProgress
		if msg.Decode(&p) == nil {
			return fmt.Sprintf("indexProgress  %3d%% %s", p.Perct, progressBar(p.Perct, 20))
		}
	}
	return fmt.Sprintf("%-14s %s", msg.Type, string(msg.Payload))
}

func progressBar(pct, width int) string {
	filled := pct * width / 100
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
