package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ganot/taskdeck/internal/config"
	"github.com/ganot/taskdeck/internal/domain/search"
	domainsync "github.com/ganot/taskdeck/internal/domain/sync"
	"github.com/ganot/taskdeck/internal/mcp"
	"github.com/ganot/taskdeck/internal/scheduler"
	"github.com/ganot/taskdeck/internal/sqlite"
	"github.com/ganot/taskdeck/internal/transport"
	"github.com/ganot/taskdeck/internal/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	// Use stderr for logs in stdio mode to keep stdout clean for JSON-RPC.
	logWriter := io.Writer(os.Stdout)
	if cfg.MCP.Enabled && cfg.MCP.Mode == "stdio" {
		logWriter = os.Stderr
	}
	if logPath := os.Getenv("TASKDECK_LOG_PATH"); logPath != "" {
		fileWriter, file, err := newLogFileWriter(logPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "log file error: %v\n", err)
		} else {
			defer file.Close()
			logWriter = fileWriter
		}
	}
	logger := slog.New(slog.NewTextHandler(logWriter, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Log.Level),
	}))

	if err := ensureDBDir(cfg.DB.Path); err != nil {
		logger.Error("failed to prepare database path", "error", err)
		os.Exit(1)
	}

	db, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	blobs := sqlite.NewBlobRepository(db)
	cache := sqlite.NewCacheRepository(db)

	client := upstream.NewClient(upstream.Options{
		BaseURL:  cfg.Upstream.BaseURL,
		AppURL:   cfg.Upstream.AppURL,
		Token:    cfg.Upstream.Token,
		OrgID:    cfg.Upstream.OrgID,
		PageSize: cfg.Upstream.PageSize,
		MaxPages: cfg.Upstream.MaxPages,
	})

	syncSvc := domainsync.NewService(client, blobs, cache, domainsync.Settings{
		PersonID:        cfg.Upstream.PersonID,
		PrefixMinLength: cfg.Prefix.MinLength,
		PrefixLedger:    cfg.Prefix.Mode == config.PrefixModeLedger,
	}, logger)
	searchSvc := search.NewService(blobs, cache, cfg.Upstream.PersonID, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(scheduler.Options{
		Sync:       syncSvc,
		Interval:   cfg.Sync.Interval,
		SyncOnBoot: cfg.Sync.OnBoot,
		Logger:     logger,
	})
	go sched.Run(ctx)

	var mcpServer *sdkmcp.Server
	if cfg.MCP.Enabled {
		mcpServer = mcp.NewServer(mcp.Config{
			Search: searchSvc,
			Sync:   syncSvc,
			Logger: logger,
		})
	}

	if cfg.MCP.Enabled && cfg.MCP.Mode == "stdio" {
		runStdioMode(ctx, cancel, logger, mcpServer)
		return
	}
	runHTTPMode(cancel, logger, cfg, searchSvc, syncSvc, mcpServer)
}

func runStdioMode(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger, mcpServer *sdkmcp.Server) {
	logger.Info("starting stdio transport")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	// Run blocks until stdin closes or the context is cancelled.
	if err := mcpServer.Run(ctx, &sdkmcp.StdioTransport{}); err != nil {
		logger.Error("stdio server error", "error", err)
		os.Exit(1)
	}
}

func runHTTPMode(cancel context.CancelFunc, logger *slog.Logger, cfg config.Config, searchSvc *search.Service, syncSvc *domainsync.Service, mcpServer *sdkmcp.Server) {
	httpSrv := transport.NewServer(transport.Options{
		Search: searchSvc,
		Sync:   syncSvc,
		Logger: logger,
	})
	router := httpSrv.Router(cfg.Server.Token)

	if mcpServer != nil {
		mcpHandler := sdkmcp.NewStreamableHTTPHandler(
			func(r *http.Request) *sdkmcp.Server { return mcpServer },
			&sdkmcp.StreamableHTTPOptions{
				Stateless:      false,
				SessionTimeout: 30 * time.Minute,
			},
		)
		router.Mount("/mcp", mcpHandler)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		logger.Info("server listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
		}
	}()

	waitForShutdown(cancel, logger, server)
}

func ensureDBDir(path string) error {
	if path == ":memory:" || path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func waitForShutdown(cancel context.CancelFunc, logger *slog.Logger, server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

const (
	maxLogSizeBytes  = 6 * 1024 * 1024
	keepLogSizeBytes = 5 * 1024 * 1024
)

type logFileWriter struct {
	path string
	file *os.File
	mu   sync.Mutex
}

func newLogFileWriter(path string) (*logFileWriter, *os.File, error) {
	if err := ensureLogDir(path); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	writer := &logFileWriter{path: path, file: file}
	if err := writer.truncateIfNeeded(); err != nil {
		return nil, nil, err
	}
	return writer, file, nil
}

func ensureLogDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func (w *logFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(p)
	if err != nil {
		return n, err
	}
	if err := w.truncateIfNeeded(); err != nil {
		return n, err
	}
	return n, nil
}

func (w *logFileWriter) truncateIfNeeded() error {
	info, err := w.file.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size <= maxLogSizeBytes {
		return nil
	}
	if size <= keepLogSizeBytes {
		return nil
	}

	buf := make([]byte, keepLogSizeBytes)
	if _, err := w.file.Seek(size-keepLogSizeBytes, io.SeekStart); err != nil {
		return err
	}
	n, err := w.file.Read(buf)
	if err != nil && err != io.EOF {
		return err
	}
	buf = buf[:n]

	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	if _, err := w.file.Write(buf); err != nil {
		return err
	}
	_, err = w.file.Seek(0, io.SeekEnd)
	return err
}
