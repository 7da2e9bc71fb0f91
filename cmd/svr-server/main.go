package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alxayo/svr/internal/logger"
	"github.com/alxayo/svr/internal/svr/broker"
	"github.com/alxayo/svr/internal/svr/sourceloader"
	"github.com/alxayo/svr/internal/svr/stats"

	_ "github.com/alxayo/svr/internal/svr/codec/jpegcodec"
	_ "github.com/alxayo/svr/internal/svr/codec/rawcodec"
	_ "github.com/alxayo/svr/internal/svr/codec/zrawcodec"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		// flag parse errors were already printed by the flag package;
		// validation errors from parseFlags are not printed
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	server := broker.New(broker.Config{
		ListenAddr:     cfg.listenAddr,
		WorkerPoolSize: cfg.workerPoolSize,
		OutboxCapacity: cfg.outboxCapacity,
	}, logger.Logger())

	var loader *sourceloader.Loader
	if cfg.sourceDir != "" {
		loader = sourceloader.New(cfg.sourceDir, server.Sources(), logger.Logger())
		if err := loader.Start(); err != nil {
			log.Error("failed to start source loader", "dir", cfg.sourceDir, "error", err)
			os.Exit(1)
		}
	}

	reporter, err := stats.New(server.Sources(), server, cfg.statsSchedule, logger.Logger())
	if err != nil {
		log.Error("invalid stats schedule", "schedule", cfg.statsSchedule, "error", err)
		os.Exit(1)
	}
	reporter.Start()

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	log.Info("server started", "addr", server.Addr().String(), "version", version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	reporter.Stop()
	if loader != nil {
		loader.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}
