package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/example/rider-agent/internal/agent"
	"github.com/example/rider-agent/internal/api"
	"github.com/example/rider-agent/internal/config"
	"github.com/example/rider-agent/internal/geo"
	"github.com/example/rider-agent/internal/logging"
	"github.com/example/rider-agent/internal/models"
	"github.com/example/rider-agent/internal/session"
	"github.com/example/rider-agent/internal/status"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	logger := logging.New(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := api.NewClient(cfg.APIBaseURL, cfg.APITimeout)

	store := session.NewStore(cfg.SessionFile)
	sess, err := store.Load()
	if errors.Is(err, session.ErrNoSession) {
		if cfg.RiderPhone == "" {
			logger.Error("no stored session and RIDER_PHONE not set")
			os.Exit(1)
		}
		sess, err = client.CheckLogin(ctx, cfg.RiderPhone)
		if err == nil {
			if serr := store.Save(sess); serr != nil {
				logger.Warn("could not persist session", "error", serr)
			}
		}
	}
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("rider session ready", "rider_id", sess.RiderID, "name", sess.Name)

	route, err := geo.ParseRoute(cfg.SimRoute)
	if err != nil {
		logger.Error("invalid SIM_ROUTE", "error", err)
		os.Exit(1)
	}
	if len(route) == 0 {
		route = []models.Coordinate{{Lat: 12.9716, Lng: 77.5946}}
	}
	sampler := geo.NewSimSampler(route, cfg.SampleInterval)

	a := agent.New(agent.Config{
		Session:        sess,
		Sessions:       store,
		API:            client,
		Sampler:        sampler,
		Logger:         logger,
		PollInterval:   cfg.PollInterval,
		ReportInterval: cfg.ReportInterval,
		MinMoveMeters:  cfg.MinMoveMeters,
		OfflineMaxAge:  cfg.OfflineFixMaxAge,
		PushURL:        cfg.PushURL,
	})
	a.Start(ctx)

	srv := &http.Server{Addr: cfg.StatusAddr, Handler: status.NewServer(a, logger)}
	go func() {
		logger.Info("status server listening", "addr", cfg.StatusAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("status server stopped", "error", err)
		}
	}()

	if cfg.AutoOnline {
		if err := a.GoOnline(ctx); err != nil {
			logger.Warn("auto go-online failed", "error", err)
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	a.Shutdown(shutdownCtx)
	_ = srv.Shutdown(shutdownCtx)
}
