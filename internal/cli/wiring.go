package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nhle/carfeed/internal/apiclient"
	"github.com/nhle/carfeed/internal/credential"
	"github.com/nhle/carfeed/internal/model"
	"github.com/nhle/carfeed/internal/push"
	"github.com/nhle/carfeed/internal/store"
)

// Store and transport modes accepted in the config file.
const (
	storeModeSQLite = "sqlite"
	storeModeRemote = "remote"

	transportHub   = "hub"
	transportRedis = "redis"
)

// closer releases a resource opened by the wiring helpers.
type closer func() error

func noopCloser() error { return nil }

// newAPIClient creates the marketplace API client for token.
func newAPIClient(cfg *model.AppConfig, token string) *apiclient.Client {
	return apiclient.New(cfg.API.BaseURL, token,
		apiclient.WithTimeout(time.Duration(cfg.API.TimeoutSec)*time.Second),
	)
}

// openStore opens the notification store selected by cfg.Store.Mode.
// Remote mode wraps the API store with a local fallback.
func openStore(cfg *model.AppConfig, client *apiclient.Client, logger *slog.Logger) (store.Store, closer, error) {
	switch cfg.Store.Mode {
	case storeModeSQLite, "":
		if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating data directory: %w", err)
		}
		st, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return st, st.Close, nil
	case storeModeRemote:
		if client == nil {
			return nil, nil, errors.New("remote store requires an API client")
		}
		return store.NewFallbackStore(store.NewRemoteStore(client), logger), noopCloser, nil
	default:
		return nil, nil, fmt.Errorf("unknown store mode %q", cfg.Store.Mode)
	}
}

// pushEndpoints holds the transport a listener subscribes on and the
// publisher producers send through. For the hub both are the same value.
type pushEndpoints struct {
	transport push.Transport
	publisher push.Publisher
	close     closer
}

// openPush builds the push transport selected by cfg.Push.Transport. When a
// JWT secret is configured, joins are verified against it.
func openPush(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) (pushEndpoints, error) {
	var auth push.Authenticator
	if cfg.Auth.JWTSecret != "" {
		auth = push.JWTAuthenticator(cfg.Auth.JWTSecret)
	}

	switch cfg.Push.Transport {
	case transportHub, "":
		hub := push.NewHub(push.WithHubAuthenticator(auth))
		return pushEndpoints{transport: hub, publisher: hub, close: noopCloser}, nil
	case transportRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Push.RedisAddr,
			Password: cfg.Push.RedisPassword,
			DB:       cfg.Push.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			// The listener retries with backoff; delivery is poll-only
			// until Redis is reachable.
			logger.Warn("redis unreachable", "addr", cfg.Push.RedisAddr, "error", err)
		}
		rt := push.NewRedisTransport(client,
			push.WithChannelPrefix(cfg.Push.ChannelPrefix),
			push.WithRedisAuthenticator(auth),
			push.WithRedisLogger(logger),
		)
		return pushEndpoints{transport: rt, publisher: rt, close: client.Close}, nil
	default:
		return pushEndpoints{}, fmt.Errorf("unknown push transport %q", cfg.Push.Transport)
	}
}

// resolveToken returns the bearer token for userID, preferring the flag
// value, then CARFEED_TOKEN, then the keyring.
func resolveToken(flagValue, userID string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if env := os.Getenv("CARFEED_TOKEN"); env != "" {
		return env, nil
	}
	creds, err := credential.Open()
	if err != nil {
		return "", fmt.Errorf("opening keyring: %w", err)
	}
	token, err := creds.Token(userID)
	if err != nil {
		if errors.Is(err, credential.ErrNoToken) {
			return "", fmt.Errorf("no token stored for %s, run 'carfeed login'", userID)
		}
		return "", err
	}
	return token, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
