package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/driftchat/driftchat/internal/config"
	"github.com/driftchat/driftchat/internal/logging"
	"github.com/driftchat/driftchat/internal/server"
	"github.com/driftchat/driftchat/internal/store"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to config file (json or yaml)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel, true)

	grace, err := cfg.ShutdownGrace()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	st, err := store.OpenSQLite(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("failed to open message store")
	}
	defer func() { _ = st.Close() }()

	hub := server.NewHub(log)
	go hub.Run()

	ws := server.NewWebSocketHandler(hub, st, server.HandlerOptions{
		AllowedOrigins: cfg.AllowedOrigins,
		MaxMessageSize: cfg.MaxMessageSize,
		HistoryLimit:   cfg.HistoryLimit,
	}, log)
	httpServer := server.CreateServer(cfg.Addr(), server.SetupRoutes(ws))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("started server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()

	_ = server.ShutdownServer(httpServer, grace, log)
	_ = hub.Shutdown(grace)
}
