// Command apiscout runs a single capture against a target URL and writes the
// resulting run directory (journal, bodies, summary.json, endpoints.jsonl)
// under --out. Flag parsing here is intentionally minimal: full CLI
// argument parsing and config file loading are outside the core's scope
// (spec.md §1) — this binary exists to exercise the orchestrator, not to be
// a polished CLI.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/domlens/apiscout/capture"
	"github.com/domlens/apiscout/capture/orchestrator"
	"github.com/domlens/apiscout/idgen"
	"github.com/domlens/apiscout/internal/browser"
)

func main() {
	logger := setupLogger()

	url := flag.String("url", "", "target URL to capture (required)")
	outDir := flag.String("out", "./captures", "directory to write run output under")
	monitorMs := flag.Int64("monitor-ms", 15_000, "capture window duration in milliseconds")
	timeoutMs := flag.Int64("timeout-ms", 60_000, "overall run deadline in milliseconds")
	headful := flag.Bool("headful", false, "run Chrome headful under Xvfb instead of headless")
	watch := flag.Bool("watch", false, "disable the global deadline and run until interrupted")
	flag.Parse()

	if *url == "" {
		logger.Error("apiscout: --url is required")
		os.Exit(1)
	}

	opts := capture.Options{
		URL:       *url,
		OutDir:    *outDir,
		MonitorMs: *monitorMs,
		TimeoutMs: *timeoutMs,
		Watch:     *watch,
	}
	if err := opts.Validate(); err != nil {
		logger.Error("apiscout: invalid configuration", "error", err)
		os.Exit(1)
	}

	stealth := browser.LevelHeadless
	if *headful {
		stealth = browser.LevelHeadful
	}

	mgr := browser.NewManager(browser.Config{Stealth: stealth, Logger: logger})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("apiscout: shutdown signal received")
		cancel()
	}()

	if _, err := mgr.Start(ctx); err != nil {
		logger.Error("apiscout: browser start failed", "error", err)
		os.Exit(1)
	}
	defer mgr.Close()

	session := browser.NewSession(mgr)

	orch, err := orchestrator.New(opts, orchestrator.Deps{
		Session:       session,
		Interstitials: orchestrator.NewInterstitialRegistry(logger),
		Logger:        logger.With("component", "orchestrator"),
	})
	if err != nil {
		logger.Error("apiscout: orchestrator init failed", "error", err)
		os.Exit(1)
	}

	result, err := orch.Run(ctx)
	if err != nil {
		logger.Error("apiscout: run failed", "error", err, "runDir", runDirOf(result))
		os.Exit(1)
	}

	logger.Info("apiscout: done", "runDir", result.RunDir)
}

func runDirOf(result *orchestrator.Result) string {
	if result == nil {
		return ""
	}
	return result.RunDir
}

func setupLogger() *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("service", "apiscout", "runId", idgen.NanoID(8)())
}
