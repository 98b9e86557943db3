// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Wavelink is a standalone Lavalink v4 audio node: bots drive guild
// players over REST/WebSocket and the node streams encrypted Opus to
// Discord voice servers.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rapidaai/wavelink/config"
	"github.com/rapidaai/wavelink/internal/audio/pcm"
	"github.com/rapidaai/wavelink/internal/monitoring"
	"github.com/rapidaai/wavelink/internal/routeplanner"
	"github.com/rapidaai/wavelink/internal/session"
	"github.com/rapidaai/wavelink/internal/sources"
	"github.com/rapidaai/wavelink/pkg/commons"
	"github.com/rapidaai/wavelink/router"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to read config: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := commons.NewLogger(commons.LoggerOptions{
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
	})
	defer func() { _ = logger.Sync() }()

	logger.Infof("%s %s starting", cfg.Name, cfg.Version)

	// Hot-path allocators come up before anything can tick.
	pcm.Init()

	var planner routeplanner.Planner = routeplanner.Disabled{}
	if blocks := cfg.RoutePlanner.IPBlocks; len(blocks) > 0 {
		balancing, err := routeplanner.NewBalancing(logger, blocks)
		if err != nil {
			logger.Errorf("route planner disabled: %v", err)
		} else {
			planner = balancing
			logger.Infof("route planner active with %d blocks", len(blocks))
		}
	}

	srcs := sources.NewManager(logger, cfg.Sources)
	registry := session.NewRegistry(logger, cfg, srcs, planner)
	stats := monitoring.NewCollector(registry, cfg.Server.StatsInterval)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	router.New(cfg, engine, logger, registry, srcs, planner, stats)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{Addr: addr, Handler: engine}

	go func() {
		logger.Infof("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server failed: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	for _, s := range registry.All() {
		registry.Remove(s.ID)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(ctx)
}
