// Command repcoach-mcp exposes a remote repcoach server to a local MCP
// client over stdio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mark3labs/mcp-go/server"

	coachmcp "github.com/claude/repcoach/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "http://repcoach", "repcoach base URL (tailnet hostname or host:port)")
	apiKey := flag.String("api-key", "", "API key (or set REPCOACH_API_KEY)")
	flag.Parse()

	if *apiKey == "" {
		*apiKey = os.Getenv("REPCOACH_API_KEY")
	}
	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "Error: -api-key or REPCOACH_API_KEY is required")
		os.Exit(1)
	}

	// stdout carries the protocol; logs go to stderr.
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	client := coachmcp.NewHTTPClient(*serverURL, *apiKey)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := client.Ping(ctx); err != nil {
		log.Warn("server not reachable yet", "url", *serverURL, "error", err)
	}
	cancel()

	s := coachmcp.New(client, Version, log)
	if err := server.ServeStdio(s); err != nil {
		log.Error("stdio server failed", "error", err)
		os.Exit(1)
	}
}
