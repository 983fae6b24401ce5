package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/campusmatch/engine/internal/app"
	"github.com/campusmatch/engine/internal/auth"
	"github.com/campusmatch/engine/internal/metrics"
)

const shutdownTimeout = 10 * time.Second

// NewRouter builds the gin engine. public registrars handle their own auth
// (the socket endpoint); protected ones sit behind the bearer middleware.
func NewRouter(appCtx *app.AppContext, j *auth.JWT, public, protected []Registrar) *gin.Engine {
	if appCtx.Config.App.ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), metrics.GinMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		if err := appCtx.RedisCache.Ping(c.Request.Context()); err != nil {
			appCtx.Logger.Warn("health check: redis unreachable", "err", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	for _, reg := range public {
		reg.Register(&r.RouterGroup)
	}

	api := r.Group("/api", auth.Middleware(j))
	for _, reg := range protected {
		reg.Register(api)
	}
	return r
}

// ServeHTTP runs handler until ctx is done, then drains in-flight requests.
// onShutdown hooks run when shutdown starts; hijacked connections such as
// websockets are only closed through them.
func ServeHTTP(ctx context.Context, appCtx *app.AppContext, handler http.Handler, onShutdown ...func()) error {
	addr := fmt.Sprintf("%s:%s", appCtx.Config.HTTP.Host, appCtx.Config.HTTP.Port)
	return serveHTTP(ctx, appCtx, handler, addr, onShutdown...)
}

func serveHTTP(ctx context.Context, appCtx *app.AppContext, handler http.Handler, addr string, onShutdown ...func()) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	for _, f := range onShutdown {
		srv.RegisterOnShutdown(f)
	}

	errCh := make(chan error, 1)
	go func() {
		appCtx.Logger.Info("starting HTTP server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server on %s: %w", addr, err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	appCtx.Logger.Info("stopping HTTP server")
	return srv.Shutdown(shutdownCtx)
}
