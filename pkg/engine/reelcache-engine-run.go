package engine

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"reelcache/pkg/preload"
	"reelcache/pkg/utils/fs"
	"syscall"
	"time"

	"github.com/valyala/fasthttp"
)

const PID_FILE = "reelcache.pid"

func (engine *ReelcacheEngine) Run() {
	addr := fmt.Sprintf(":%d", engine.config.Server.Port)
	engine.logger.Info(fmt.Sprintf("Reelcache engine starting on %s, upstream %s...", addr, engine.config.Upstream.Target))

	engine.pid = os.Getpid()
	if err := engine.storePid(); err != nil {
		engine.logger.Warn("Continuing without a PID file; 'reelcache down' will not find this process")
	}

	server := &fasthttp.Server{
		Handler: engine.handleRequest,
		Name:    APP_NAME,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(addr); err != nil {
			engine.logger.Error(fmt.Sprintf("Fatal server error: %v", err))
			os.Exit(1)
		}
	}()

	engine.Start()

	<-stop
	engine.logger.Info("Shutting down server...")
	if err := server.Shutdown(); err != nil {
		engine.logger.Error(fmt.Sprintf("Server shutdown error: %v", err))
	}
	if cerr := engine.cleanup(); cerr != nil {
		engine.logger.Error(fmt.Sprintf("Cleanup error: %v", cerr))
	}
}

// Start installs the worker, warms the neighborhood of the first carousel
// item and starts autoplay when configured. A failed install leaves the
// proxy passing every request to the network.
func (engine *ReelcacheEngine) Start() {
	if err := engine.worker.Install(engine.ctx); err != nil {
		engine.logger.Error(fmt.Sprintf("Worker install failed, serving from the network only: %v", err))
	}

	engine.preloadAround(engine.cursor.Current())

	if engine.config.Carousel.AutoPlay {
		engine.cursor.ResumeAutoPlay()
	}
}

func (engine *ReelcacheEngine) handleRequest(ctx *fasthttp.RequestCtx) {
	path := string(ctx.Path())
	engine.logger.Debug(fmt.Sprintf("Incoming request - Method: %s, Path: %s", ctx.Method(), path))

	switch {
	case engine.metrics != nil && path == engine.config.Metrics.Path:
		engine.metrics.Handler()(ctx)
	case isControlPath(path):
		engine.controlHandler(ctx)
	default:
		engine.intercept(ctx)
	}
}

// intercept hands the request to the worker under the canonical origin so
// that cache keys match the seeded ones whatever Host the client used.
func (engine *ReelcacheEngine) intercept(ctx *fasthttp.RequestCtx) {
	req := &fasthttp.Request{}
	ctx.Request.CopyTo(req)
	req.URI().SetScheme(engine.originScheme)
	req.SetHost(engine.originHost)

	reqCtx, cancel := context.WithTimeout(engine.ctx, engine.config.Upstream.Timeout)
	defer cancel()

	resp, err := engine.worker.Handle(reqCtx, req)
	if err != nil {
		engine.logger.Error(fmt.Sprintf("Proxy error for %s %s: %v", ctx.Method(), ctx.Path(), err))
		ctx.Error("Proxy error: "+err.Error(), fasthttp.StatusBadGateway)
		return
	}
	resp.CopyTo(&ctx.Response)
}

func (engine *ReelcacheEngine) preloadAround(index int) {
	if engine.preloader == nil {
		return
	}
	engine.preloader.Update(preload.Options{
		Items:        engine.items,
		CurrentIndex: index,
		PreloadRange: engine.config.Preload.Range,
		Network:      engine.network,
	})
}

func (engine *ReelcacheEngine) storePid() error {
	engine.logger.Info("Storing program id information...")

	storageDir := engine.config.Storage.Path
	path := filepath.Join(storageDir, PID_FILE)

	if err := fs.EnsureDir(storageDir); err != nil {
		engine.logger.Error(fmt.Sprintf("Unable to create program storage path due to %v", err))
		return err
	}

	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d", engine.pid)), 0o644); err != nil {
		engine.logger.Error(fmt.Sprintf("Unable to store program id due to %v", err))
		return err
	}

	engine.logger.Info(fmt.Sprintf("Stored program id information at %s", path))
	return nil
}

func (engine *ReelcacheEngine) cleanup() error {
	var err error

	engine.cursor.Close()

	if engine.preloader != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if perr := engine.preloader.Stop(ctx); perr != nil {
			engine.logger.Warn(fmt.Sprintf("Preloads cancelled on shutdown: %v", perr))
		}
		cancel()
	}
	engine.cancel()

	if closeErr := engine.rateLimitManager.Close(); closeErr != nil {
		engine.logger.Error(fmt.Sprintf("Failed to close rate limit manager: %v", closeErr))
	}

	if closeErr := engine.store.Close(); closeErr != nil {
		engine.logger.Error(fmt.Sprintf("Failed to close the cache due to: %v", closeErr))
		err = closeErr
	}
	engine.logger.Info("Cache closed")

	if engine.pid != 0 {
		pidFile := filepath.Join(engine.config.Storage.Path, PID_FILE)
		if rmErr := os.Remove(pidFile); rmErr != nil {
			engine.logger.Error(fmt.Sprintf("Failed to remove PID file: %v", rmErr))
			err = rmErr
		} else {
			engine.logger.Info("PID file removed.")
		}
	}

	if closeErr := engine.logger.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
