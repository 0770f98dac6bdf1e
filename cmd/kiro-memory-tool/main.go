// kiro-memory-tool is the stdio tool adapter: it speaks the length-framed
// tool protocol on stdin/stdout and relays every call to the worker's HTTP
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/kiro-memory/worker/internal/logging"
	"github.com/kiro-memory/worker/internal/toolproxy"
)

func main() {
	workerURL := flag.String("worker", "", "Worker base URL (default from KIRO_MEMORY_WORKER_HOST/PORT)")
	flag.Parse()

	baseURL := *workerURL
	if baseURL == "" {
		host := os.Getenv("KIRO_MEMORY_WORKER_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := os.Getenv("KIRO_MEMORY_WORKER_PORT")
		if port == "" {
			port = "3001"
		}
		baseURL = fmt.Sprintf("http://%s:%s", host, port)
	}

	// Logs go to stderr; stdout carries only protocol frames.
	log := logging.New("tool", logging.Level(os.Getenv("KIRO_MEMORY_LOG_LEVEL")), os.Stderr)

	proxy := toolproxy.New(baseURL, readWorkerToken(), log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := proxy.Run(ctx, os.Stdin, os.Stdout); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("tool adapter stream failed")
		os.Exit(1)
	}
}

// readWorkerToken loads the worker's bearer token if the worker has written
// one; tools that only hit unauthenticated routes work without it.
func readWorkerToken() string {
	dataDir := os.Getenv("KIRO_MEMORY_DATA_DIR")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataDir = filepath.Join(home, ".kiro-memory")
	}
	data, err := os.ReadFile(filepath.Join(dataDir, "worker.token"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
