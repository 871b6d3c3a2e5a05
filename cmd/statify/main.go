// Command statify tracks map-search visibility of configured establishments:
// it logs into a fresh account, locates each establishment in the search
// results for its queries, performs the configured terminal interaction, and
// accumulates frequency/position records into a monthly report.
//
// Usage:
//
//	statify -config statify.yaml            # full automated run
//	statify -config statify.yaml -dev       # test account + manual sms code
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Andromeda-12/statify/internal/acquire"
	"github.com/Andromeda-12/statify/internal/browser"
	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/creds"
	"github.com/Andromeda-12/statify/internal/notify"
	"github.com/Andromeda-12/statify/internal/pick"
	"github.com/Andromeda-12/statify/internal/ranking"
	"github.com/Andromeda-12/statify/internal/report"
	"github.com/Andromeda-12/statify/internal/statusd"
	"github.com/Andromeda-12/statify/internal/yandex"
)

func main() {
	configPath := flag.String("config", "statify.yaml", "path to configuration file")
	dev := flag.Bool("dev", false, "development mode: test account, manual sms code entry")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	base := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	notifier := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID)
	logger := slog.New(notify.NewCriticalHandler(base, notifier))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, notifier, *dev); err != nil {
		logger.Error("statify: fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.Config, notifier *notify.Telegram, dev bool) error {
	logger.Info("statify: starting",
		"establishments", len(cfg.Establishments), "dev", dev)

	store, err := ranking.OpenStore(cfg.Ranking.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	agg := ranking.NewAggregator(logger)
	progress := acquire.NewProgress(cfg.Establishments, cfg.MaxRepeats())

	if cfg.Status.Addr != "" {
		status := statusd.New(cfg.Status.Addr, progress, logger)
		status.Start()
		defer status.Stop(context.Background())
	}

	mgr := browser.NewManager(browser.Config{
		RemoteURL:     cfg.Browser.Remote,
		Headless:      cfg.Browser.Headless,
		ConditionWait: cfg.Browser.ConditionWait,
		Logger:        logger,
	})
	defer mgr.Close()

	var provider creds.Provider
	if dev {
		provider = &creds.Dev{
			Login:    cfg.Account.DevLogin,
			Password: cfg.Account.DevPassword,
			In:       os.Stdin,
			Out:      os.Stdout,
			Logger:   logger,
		}
	} else {
		provider = creds.NewSMS365(cfg.SMS.APIKey, cfg.Account.Password,
			creds.WithSMSBaseURL(cfg.SMS.BaseURL),
			creds.WithSMSWaits(cfg.SMS.NumberWait, cfg.SMS.CodeWait, cfg.SMS.CodeDeadline),
			creds.WithSMSLogger(logger))
	}
	auth := yandex.NewAuthenticator(mgr, provider, cfg.Account, dev,
		yandex.WithAuthLogger(logger))

	// The report is flushed even when the run aborts part-way; what was
	// acquired so far must still reach the store and the operator.
	defer finalize(logger, cfg, store, agg, progress, notifier)

	runErr := runRepetitions(ctx, logger, cfg, auth, agg, progress)
	if runErr != nil {
		logger.Error("statify: run interrupted", "error", runErr)
	}
	return runErr
}

func runRepetitions(ctx context.Context, logger *slog.Logger, cfg *config.Config, auth *yandex.Authenticator, agg *ranking.Aggregator, progress *acquire.Progress) error {
	maxRepeats := cfg.MaxRepeats()
	picker := pick.Random{}

	for rep := 0; rep < maxRepeats; rep++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		logger.Info("statify: repetition starting", "repetition", rep+1, "of", maxRepeats)

		session, err := auth.Login(ctx)
		if err != nil {
			return fmt.Errorf("statify: login: %w", err)
		}

		driver := yandex.NewDriver(session, picker,
			yandex.WithDriverLogger(logger))
		machine := acquire.NewMachine(driver, picker, cfg.Attempts,
			acquire.WithLogger(logger),
			acquire.WithReloadPause(cfg.Browser.ReloadPause))
		orch := acquire.NewOrchestrator(machine, agg, cfg.Attempts.Process, progress,
			acquire.WithOrchestratorLogger(logger))

		if err := orch.RunRepetition(ctx, cfg.Establishments, rep); err != nil {
			return err
		}

		if rep < maxRepeats-1 && cfg.RepetitionPause > 0 {
			logger.Info("statify: pausing before next repetition",
				"pause", cfg.RepetitionPause)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cfg.RepetitionPause):
			}
		}
	}
	return nil
}

// finalize persists the aggregated outcomes, regenerates the monthly report
// and delivers it. Runs on both clean completion and aborts, so it uses its
// own context.
func finalize(logger *slog.Logger, cfg *config.Config, store *ranking.Store, agg *ranking.Aggregator, progress *acquire.Progress, notifier *notify.Telegram) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	now := time.Now()

	if err := store.MergeAll(ctx, agg.Records()); err != nil {
		logger.Error("statify: persisting records failed", "error", err)
	}

	recs, err := store.RecordsForMonth(ctx, now.Year(), int(now.Month()))
	if err != nil {
		logger.Error("statify: loading month records failed", "error", err)
		return
	}

	writer := report.NewWriter(cfg.Report.Dir, logger)
	path, err := writer.Write(cfg.Establishments, recs, now)
	if err != nil {
		logger.Error("statify: report generation failed", "error", err)
		return
	}

	snap := progress.Snapshot()
	text := "Отчет за " + now.Format(ranking.DateFormat)
	for _, est := range snap.Establishments {
		text += fmt.Sprintf("\n%s: %d/%d", est.Name, est.Success, est.Required)
	}
	notifier.TrySendMessage(ctx, text)
	notifier.TrySendFile(ctx, path)
}
