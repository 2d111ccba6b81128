// Package api exposes the machine lifecycle over an RPC-style HTTP API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jimyag/nqg/internal/nqg/service"
	"github.com/jimyag/nqg/pkg/ginx"
)

type API struct {
	engine *gin.Engine
	server *http.Server

	vm       *VM
	snapshot *Snapshot
}

func New(addr string, vmService *service.VMService, snapshotService *service.SnapshotService) (*API, error) {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	api := &API{
		engine:   engine,
		vm:       NewVM(vmService),
		snapshot: NewSnapshot(snapshotService),
	}

	group := engine.Group("/api")
	api.vm.RegisterRoutes(group)
	api.snapshot.RegisterRoutes(group)
	engine.GET("/health", ginx.Adapt2(func(*gin.Context) string { return "ok" }))

	api.server = &http.Server{
		Addr:    addr,
		Handler: engine,
	}
	return api, nil
}

func (a *API) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	}
}

func (a *API) Shutdown(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Name implements grace.Grace.
func (a *API) Name() string {
	return "NQG API"
}

// requestLogger tags every request with an id and puts a request-scoped
// logger into the request context for zerolog.Ctx to find.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		logger := log.With().
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		logger.Info().
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	}
}
