package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/podwatch-dev/podwatch/internal/config"
	"github.com/podwatch-dev/podwatch/watcher"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running watcher: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Watcher stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic: %v\n", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	c := config.New()
	configureLogging(c)
	displayAppname(c.GetAppName() + " watcher")

	// The context outlives individual rounds: the Spotify client reuses it
	// for token refreshes between polls.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	poller, cleanup, err := buildPoller(ctx, c)
	if err != nil {
		return err
	}
	defer cleanup()

	// First round runs immediately so a restart does not sit out a full
	// interval before catching up.
	poller.Poll(ctx)

	schedule := cron.New()
	if err := schedule.AddFunc("@every "+c.GetPollInterval().String(), func() { poller.Poll(ctx) }); err != nil {
		return fmt.Errorf("schedule poll: %w", err)
	}
	schedule.Start()
	log.Printf("Polling every %s\n", c.GetPollInterval())

	waitForStopSignal()
	cancel()
	schedule.Stop()
	return nil
}

// buildPoller wires the feed fetcher, the lookup and inference clients, and
// the publishing client behind a Poller.
func buildPoller(ctx context.Context, c config.Config) (*watcher.Poller, func(), error) {
	feeds, err := watcher.LoadFeeds(c.GetFeedsFile())
	if err != nil {
		return nil, nil, err
	}

	cleanup := func() {}
	var stores watcher.Stores

	if dbURL := c.GetDatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}
		store := watcher.NewPostgresStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure watcher schema: %w", err)
		}
		stores = watcher.Stores{State: store, Seen: store}
		cleanup = pool.Close
	} else {
		log.Printf("DATABASE_URL not set, using in-memory state (baselines reset on restart)\n")
		store := watcher.NewInMemoryStore()
		stores = watcher.Stores{State: store, Seen: store}
	}

	classifier, err := watcher.NewClassifier(ctx, c.GetGeminiAPIKey(), c.GetGeminiModel(), feeds.Topic)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	poller, err := watcher.NewPoller(
		feeds,
		stores,
		watcher.NewRSSFetcher(),
		watcher.NewSpotifyClient(ctx, c.GetSpotifyClientID(), c.GetSpotifyClientSecret()),
		watcher.NewTranscriber(c.GetTranscribeAPIKey(), c.GetTranscribeBaseURL(), c.GetTranscribeModel()),
		classifier,
		watcher.NewServiceClient(c.GetWebBaseURL(), c.GetInternalAPIToken()),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return poller, cleanup, nil
}

func configureLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
