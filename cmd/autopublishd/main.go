// Command autopublishd runs the admission daemon with the default
// configuration lookup. It is equivalent to `autopublish daemon`.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"autopublish/internal/config"
	"autopublish/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "Configuration file path")
	logLevel := flag.String("log-level", "", "Override [logging] level")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("ensure directories: %v", err)
	}

	if err := daemonrun.Run(ctx, cfg, daemonrun.Options{LogLevel: *logLevel}); err != nil {
		log.Fatalf("daemon: %v", err)
	}
}
