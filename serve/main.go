// Command fimletd is the fimlet daemon.
// It listens on a Unix domain socket for inline completion requests from editors,
// builds a fill-in-the-middle prompt around the cursor, and returns the model's suggestion.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	fimlet "github.com/Paranoid-AF/fimlet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	verbose := flag.Bool("verbose", false, "log every request and response to stderr")
	noWatch := flag.Bool("no-watch", false, "do not reload when the config file changes")
	flag.Parse()

	if *showVersion {
		fmt.Println("fimletd", Version)
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	socketPath := resolveSocketPath()

	slog.Info("starting", "socket", socketPath)

	srv, err := NewServer(socketPath)
	if err != nil {
		slog.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	if !*noWatch {
		if err := srv.WatchConfig(fimlet.ConfigDir()); err != nil {
			slog.Warn("config hot reload disabled", "dir", fimlet.ConfigDir(), "error", err)
		}
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		slog.Info("shutting down")
		srv.Close()
		os.Exit(0)
	}()

	slog.Info("ready")
	if err := srv.Serve(); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func resolveSocketPath() string {
	if path := os.Getenv("FIMLET_SOCKET"); path != "" {
		return path
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return dir + "/fimlet.sock"
	}
	return fmt.Sprintf("/tmp/fimlet-%d.sock", os.Getuid())
}
