package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"access-service/internal/config"
	"access-service/internal/notifier"
	"access-service/internal/repository"
	"access-service/internal/security"
	"access-service/internal/session"
)

func RunServices(ctx context.Context, logger *zap.SugaredLogger, wg *sync.WaitGroup, cfg config.Config,
	repo repository.Repository, notif notifier.Notifier) {

	tracker := security.NewTracker(repo, cfg.Security.MaxLoginAttempts, cfg.Security.LockDuration, nil)
	sessions := session.NewManager(repo, cfg.JWT.Secret, cfg.JWT.Expiry)
	h := newHandler(logger, repo, notif, tracker, sessions)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: h.routes(),
	}

	logger.Infow("listening for HTTP requests", "port", cfg.HTTPPort)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalw("failed to serve", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Errorw("failed to shut down http server", "error", err)
		}
	}()
}
