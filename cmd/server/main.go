package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/podwatch-dev/podwatch/auth"
	"github.com/podwatch-dev/podwatch/credential"
	"github.com/podwatch-dev/podwatch/handshake"
	"github.com/podwatch-dev/podwatch/internal/config"
	"github.com/podwatch-dev/podwatch/internal/cryptobox"
	"github.com/podwatch-dev/podwatch/locker"
	"github.com/podwatch-dev/podwatch/provider"
	"github.com/podwatch-dev/podwatch/publisher"
	"github.com/podwatch-dev/podwatch/server"
	"github.com/podwatch-dev/podwatch/signingkey"
)

func main() {
	for {
		if err := run(); err != nil {
			log.Fatalf("Error running server: %s\n", err)
			time.Sleep(1 * time.Second)
		} else {
			break
		}
	}
	log.Printf("Server stopped\n")
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
	displayAppname(c.GetAppName())

	handler, cleanup, err := buildServer(c)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{Addr: c.GetPort(), Handler: handler}
	go listenAndServe(httpServer)
	waitForStopSignal()
	returnError = shutdown(httpServer)
	return returnError
}

// buildServer wires the stores, the provider client, and the authorization
// service behind the HTTP handler. Any missing required configuration
// surfaces here and stops startup.
func buildServer(c config.Config) (http.Handler, func(), error) {
	ctx := context.Background()

	clientKey, err := signingkey.Load(c.GetOAuthSigningKey())
	if err != nil {
		return nil, nil, fmt.Errorf("OAUTH_SIGNING_KEY: %w", err)
	}

	var box *cryptobox.Box
	if encoded := c.GetSessionCipherKey(); encoded != "" {
		box, err = cryptobox.NewFromString(encoded)
		if err != nil {
			return nil, nil, fmt.Errorf("SESSION_CIPHER_KEY: %w", err)
		}
	}

	cleanup := func() {}
	var handshakes handshake.Repo
	var credentials credential.Repo
	var refreshers locker.Locker

	if dbURL := c.GetDatabaseURL(); dbURL != "" {
		pool, err := pgxpool.New(ctx, dbURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ping database: %w", err)
		}

		credentialRepo := credential.NewPostgresRepo(pool, box)
		if err := credentialRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure session schema: %w", err)
		}
		handshakeRepo := handshake.NewPostgresRepo(pool, box, c.GetHandshakeTTL())
		if err := handshakeRepo.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensure handshake schema: %w", err)
		}

		credentials = credentialRepo
		handshakes = handshakeRepo
		refreshers = locker.NewPostgresLocker(pool, c.GetRefreshLockWait())
		cleanup = pool.Close
	} else {
		log.Printf("DATABASE_URL not set, using in-memory stores (single instance, non-durable)\n")
		credentials = credential.NewInMemoryRepo()
		handshakes = handshake.NewInMemoryRepo(c.GetHandshakeTTL())
		refreshers = locker.NewInMemory(c.GetRefreshLockWait())
	}

	// Redis gives handshake records native expiry.
	if redisURL := c.GetRedisURL(); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		handshakes = handshake.NewRedisRepo(redisClient, box, c.GetHandshakeTTL())

		prev := cleanup
		cleanup = func() {
			_ = redisClient.Close()
			prev()
		}
	}

	publicURL := c.GetPublicURL()
	oauthClient, err := provider.New(
		publicURL+server.RouteClientMetadata,
		publicURL+server.RouteAuthCallback,
		clientKey,
		provider.WithMetadataTTL(c.GetMetadataCacheTTL()),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	authService, err := auth.NewAuthorizationService(
		auth.Repos{Handshakes: handshakes, Credentials: credentials},
		provider.NewResolver(c.GetPLCDirectoryURL()),
		oauthClient,
		refreshers,
		c.GetOAuthScope(),
		auth.WithExpirySkew(c.GetTokenExpirySkew()),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	srv, err := server.New(c, authService, publisher.New(), clientKey)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return srv, cleanup, nil
}

func configureLogging(c config.Config) {
	if c.GetEnv() == "DEV" {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func listenAndServe(server *http.Server) {
	log.Printf("Server listening on %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server.ListenAndServe %s\n", err)
	}
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
