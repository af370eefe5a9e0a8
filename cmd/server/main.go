// This is the entrypoint for the RTMP ingest/relay server.
// It handles configuration loading, server startup, and graceful shutdown.

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/Q0R1Y/rtmp-server/internal/config"
	"github.com/Q0R1Y/rtmp-server/internal/server"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server <listen_port> [config_path]")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	port, err := strconv.ParseUint(os.Args[1], 10, 16)
	if err != nil {
		usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if len(os.Args) >= 3 {
		loaded, err := config.Load(os.Args[2])
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	cfg.Server.RTMPPort = int(port)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	srv := server.New(cfg)
	ctx := context.Background()
	shutdownHandler := server.NewShutdownHandler(srv, ctx)

	go func() {
		if err := srv.Start(cfg.Server.RTMPPort); err != nil {
			log.Printf("server error: %v", err)
			os.Exit(1)
		}
	}()

	if err := shutdownHandler.Wait(); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}

	log.Println("server shut down cleanly")
}
