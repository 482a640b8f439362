// CLAUDE:SUMMARY CLI: load a page with its frames, then serve the find engine over HTTP and MCP.
// Command pagefind loads a page with all of its frames and serves
// find-on-page over HTTP, and optionally MCP on stdio.
//
// Usage:
//
//	pagefind -config pagefind.yaml
//	pagefind -file page.html -listen :8090
//	pagefind -url https://example.com -loader browser -mcp
//	pagefind -file page.html -find needle     # print the result list and exit
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/pagefind"
	"github.com/hazyhaar/pagefind/find"
)

const version = "0.1.0"

type flags struct {
	config   string
	logLevel string
	listen   string
	url      string
	file     string
	loader   string
	mcp      bool
	find     string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "path to pagefind.yaml")
	flag.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.StringVar(&f.listen, "listen", "", "HTTP listen address (overrides config)")
	flag.StringVar(&f.url, "url", "", "page URL to load")
	flag.StringVar(&f.file, "file", "", "local HTML file to load")
	flag.StringVar(&f.loader, "loader", "", "page loader: static, http, browser")
	flag.BoolVar(&f.mcp, "mcp", false, "serve MCP on stdin/stdout")
	flag.StringVar(&f.find, "find", "", "search the page once, print the result and exit")
	flag.Parse()

	var level slog.Level
	switch f.logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	// stdout belongs to MCP and the update stream.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, f); err != nil {
		logger.Error("pagefind: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, f flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	svc, err := pagefind.New(ctx, cfg, pagefind.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	defer svc.Close()

	if f.find != "" {
		return findOnce(ctx, svc, f.find)
	}

	errCh := make(chan error, 2)
	var srv *http.Server
	if cfg.HTTP.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.HTTP.Listen,
			Handler:           svc.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("pagefind: http listening", "addr", cfg.HTTP.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("http: %w", err)
			}
		}()
	}
	if f.mcp {
		mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "pagefind", Version: version}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			logger.Info("pagefind: mcp on stdio")
			errCh <- mcpSrv.Run(ctx, &mcp.StdioTransport{})
		}()
	}
	if srv == nil && !f.mcp {
		fmt.Fprintln(os.Stderr, "usage: pagefind [-config file] [-file page.html | -url url] (-listen addr | -mcp | -find term)")
		return errors.New("nothing to serve")
	}

	select {
	case <-ctx.Done():
	case err = <-errCh:
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := srv.Shutdown(shutdownCtx); serr != nil {
			logger.Error("pagefind: shutdown", "error", serr)
		}
	}
	logger.Info("pagefind: stopped")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func loadConfig(f flags) (*pagefind.Config, error) {
	cfg := &pagefind.Config{}
	if f.config != "" {
		var err error
		if cfg, err = pagefind.LoadConfigFile(f.config); err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
	}
	if f.url != "" {
		cfg.Page.URL, cfg.Page.File = f.url, ""
		if cfg.Page.Loader == "" || cfg.Page.Loader == "static" {
			cfg.Page.Loader = "http"
		}
	}
	if f.file != "" {
		cfg.Page.File, cfg.Page.URL = f.file, ""
		cfg.Page.Loader = "static"
	}
	if f.loader != "" {
		cfg.Page.Loader = f.loader
	}
	if f.listen != "" {
		cfg.HTTP.Listen = f.listen
	}
	if f.find != "" || f.mcp {
		// The update stream stays off stdout when stdout carries results.
		cfg.Sinks = []pagefind.SinkConfig{{Type: "none"}}
	}
	return cfg, nil
}

func findOnce(ctx context.Context, svc *pagefind.Service, term string) error {
	var last *find.Update
	updates, err := svc.Updates(ctx, find.DefaultInstance, 0, 0)
	if err != nil {
		return err
	}
	var after int64
	if n := len(updates); n > 0 {
		after = updates[n-1].Seq
	}
	err = svc.Command(ctx, find.Command{
		Action:        find.ActionStartFind,
		InstanceID:    find.DefaultInstance,
		SessionSecret: svc.Secret(),
		SearchTerm:    term,
	})
	if err != nil {
		return err
	}
	updates, err = svc.Updates(ctx, find.DefaultInstance, after, 0)
	if err != nil {
		return err
	}
	if n := len(updates); n > 0 {
		last = &updates[n-1].Update
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(last)
}
