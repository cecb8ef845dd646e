package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mtprotowatch/internal/checker"
	"mtprotowatch/internal/config"
	"mtprotowatch/internal/control"
	"mtprotowatch/internal/logging"
)

type Bootstrap struct {
	cfg        *config.RuntimeConfig
	service    *checker.Service
	httpServer *http.Server
	logger     *slog.Logger
}

func NewBootstrap(cfgPath string) (*Bootstrap, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	buffer := logging.NewRingBuffer(10000)
	logger, err := logging.Setup(cfg.LogFile, buffer)
	if err != nil {
		return nil, err
	}

	service, err := checker.NewService(cfg.Proxies, checker.Settings{
		Timeout:    cfg.Timeout,
		RefreshMin: cfg.RefreshMin,
		RefreshMax: cfg.RefreshMax,
		Egress:     cfg.Egress,
	})
	if err != nil {
		return nil, err
	}

	ctrl := control.NewServer(service, buffer)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WebPort),
		Handler:           ctrl.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Bootstrap{
		cfg:        cfg,
		service:    service,
		httpServer: httpServer,
		logger:     logger,
	}, nil
}

func (b *Bootstrap) Run(ctx context.Context) error {
	go b.service.Run(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = b.httpServer.Shutdown(shutdownCtx)
	}()

	min, max := b.service.Window()
	b.logger.Info("mtprotowatch listening",
		"addr", b.httpServer.Addr,
		"proxies", len(b.cfg.Proxies),
		"refresh_min_s", min,
		"refresh_max_s", max)

	err := b.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
