// Command payhook runs the payment webhook reconciliation service: it
// receives provider webhooks, confirms paid orders exactly once, and drives
// rewards, streaks, external sync, and notifications.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/amalafoods/payhook/internal/api"
	"github.com/amalafoods/payhook/internal/cache"
	"github.com/amalafoods/payhook/internal/config"
	"github.com/amalafoods/payhook/internal/gateway"
	"github.com/amalafoods/payhook/internal/httpkit"
	"github.com/amalafoods/payhook/internal/metrics"
	"github.com/amalafoods/payhook/internal/notify"
	"github.com/amalafoods/payhook/internal/pipeline"
	"github.com/amalafoods/payhook/internal/store"
	"github.com/amalafoods/payhook/internal/syncer"
)

const replayTTL = 48 * time.Hour

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	admin := db
	if cfg.AdminDatabaseURL != "" {
		admin, err = store.Open(ctx, cfg.AdminDatabaseURL)
		if err != nil {
			logger.Error("admin database unavailable", "error", err)
			os.Exit(1)
		}
		defer admin.Close()
	}

	st := store.New(db, admin, logger)
	if err := st.CreateTables(ctx); err != nil {
		logger.Error("schema bootstrap failed", "error", err)
		os.Exit(1)
	}

	var replay *cache.ReplayCache
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unavailable, replay cache disabled", "error", err)
		} else {
			replay = cache.New(rdb, replayTTL, logger)
			defer rdb.Close()
		}
	}

	var publisher syncer.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("payhook"))
		if err != nil {
			logger.Warn("nats unavailable, event publishing disabled", "error", err)
		} else {
			publisher = nc
			defer nc.Drain()
		}
	}

	var email notify.EmailSender
	if cfg.EmailAPIKey != "" {
		email = notify.NewEmailClient(cfg.EmailBaseURL, cfg.EmailAPIKey, cfg.EmailFrom, cfg.ExternalTimeout)
	}
	var sms notify.SMSSender
	if cfg.SMSConfigured() {
		sms = notify.NewSMSClient(cfg.SMSBaseURL, cfg.SMSAccountSID, cfg.SMSAuthToken, cfg.SMSFrom, cfg.ExternalTimeout)
	}
	dispatcher := notify.NewDispatcher(email, sms, cfg.AdminEmail, logger)

	sync := syncer.New(cfg.CRMBaseURL, cfg.CRMAPIKey, cfg.ExternalTimeout, publisher, logger)

	adapters := []gateway.Adapter{
		gateway.NewPaystack(cfg.PaystackSecret),
		gateway.NewFlutterwave(cfg.FlutterwaveSecret),
		gateway.NewMonnify(cfg.MonnifySecret),
	}
	logger.Info("signature verification",
		"paystack", config.SignatureMode(cfg.PaystackSecret),
		"flutterwave", config.SignatureMode(cfg.FlutterwaveSecret),
		"monnify", config.SignatureMode(cfg.MonnifySecret),
	)
	logger.Info("integrations",
		"replay_cache", replay != nil,
		"event_stream", publisher != nil,
		"email", email != nil,
		"sms", sms != nil,
		"crm", cfg.CRMBaseURL != "",
		"admin_api", cfg.AdminJWTSecret != "",
		"scoped_reads", cfg.AdminDatabaseURL != "",
	)

	metrics.Register()

	p := pipeline.New(st, replayOrNil(replay), dispatcher, sync, cfg.Policy, logger)

	srv := httpkit.New(cfg.Port, logger)
	api.New(p, st, adapters, cfg.AdminJWTSecret, logger).Mount(srv.Router)

	if err := srv.Serve(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// replayOrNil keeps a nil *cache.ReplayCache from becoming a non-nil
// pipeline.Replay interface value.
func replayOrNil(c *cache.ReplayCache) pipeline.Replay {
	if c == nil {
		return nil
	}
	return c
}
