// Command tutorwatch follows the presence of a tutor's learners from the
// terminal, the same way the dashboard badge does.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/tutorlink/tutorlink/internal/logging"
	"github.com/tutorlink/tutorlink/internal/presence"
)

func main() {
	var (
		baseURL  string
		token    string
		interval time.Duration
		grace    time.Duration
		debug    bool
	)
	flag.StringVar(&baseURL, "base-url", "http://127.0.0.1:8080", "tutorlink base URL")
	flag.StringVar(&token, "token", os.Getenv("TUTORLINK_TOKEN"), "tutor bearer token")
	flag.DurationVar(&interval, "interval", 5*time.Second, "room status poll interval")
	flag.DurationVar(&grace, "grace", 0, "webhook grace window (default 2x interval)")
	flag.BoolVar(&debug, "debug", false, "verbose logging")
	flag.Parse()

	log := logging.NewConsole(debug, "watch", false)
	if token == "" {
		log.Fatal().Msg("a tutor token is required (--token or TUTORLINK_TOKEN)")
	}
	if grace <= 0 {
		grace = 2 * interval
	}

	reconciler := presence.NewReconciler(grace)
	reconciler.OnChange(func(rec presence.Record) {
		fmt.Printf("%s  %-20s %-8s via %s\n", rec.UpdatedAt.Format(time.TimeOnly), rec.Key, rec.State, rec.Source)
	})
	watcher := presence.NewWatcher(baseURL, token, reconciler, interval, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("watcher stopped")
		os.Exit(1)
	}
}
