package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mfromawe/hyperhash/internal/generator"
	"github.com/mfromawe/hyperhash/internal/httpapi"
	"github.com/mfromawe/hyperhash/internal/mailer"
	"github.com/mfromawe/hyperhash/internal/storage"
	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/config"
	"github.com/mfromawe/hyperhash/pkg/email"
	"github.com/mfromawe/hyperhash/pkg/httpserver"
	"github.com/mfromawe/hyperhash/pkg/logger"
	"github.com/mfromawe/hyperhash/pkg/pg"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/ratelimit"
	"github.com/mfromawe/hyperhash/pkg/redis"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/token"
	"github.com/mfromawe/hyperhash/pkg/usage"
)

type appConfig struct {
	// PlansPath points at a YAML plan catalog. Empty means the compiled-in
	// catalog.
	PlansPath string `env:"PLANS_PATH"`
}

func main() {
	log := logger.NewFromConfig(config.MustLoad[logger.Config](), "hyperhash")

	if err := run(context.Background(), log); err != nil {
		log.Error("server exited", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger) error {
	pool, err := pg.Connect(ctx, config.MustLoad[pg.Config]())
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := storage.Migrate(ctx, pool, log); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	tokens, err := token.NewFromConfig(config.MustLoad[token.Config]())
	if err != nil {
		return fmt.Errorf("init token service: %w", err)
	}

	appCfg := config.MustLoad[appConfig]()
	var planSrc plan.Source = plan.DefaultSource()
	if appCfg.PlansPath != "" {
		planSrc = plan.NewYAMLSource(appCfg.PlansPath)
	}
	plans, err := plan.NewRegistry(ctx, planSrc)
	if err != nil {
		return fmt.Errorf("load plan catalog: %w", err)
	}

	users := storage.NewUserStore(pool)
	subs := storage.NewSubscriptionStore(pool)
	directory := storage.NewDirectory(pool)

	emailCfg := config.MustLoad[email.Config]()
	var sender email.Sender
	if emailCfg.Enabled() {
		sender, err = email.NewPostmarkSender(emailCfg)
		if err != nil {
			return fmt.Errorf("init postmark: %w", err)
		}
	} else {
		log.Info("postmark credentials missing, outgoing email is logged only")
		sender = email.NewNoopSender(log)
	}
	mail := mailer.New(sender, users, config.MustLoad[mailer.Config]())

	recon := subscription.NewReconciler(subs, plans, log, subscription.WithNotifier(mail))
	usageSvc := usage.NewService(storage.NewUsageStore(pool), subs, plans, log)

	adapters := buildAdapters(directory, log)

	checks := []func(context.Context) error{pg.Healthcheck(pool)}

	var limStore ratelimit.Store
	redisCfg := config.MustLoad[redis.Config]()
	if redisCfg.Enabled() {
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer client.Close()
		limStore = ratelimit.NewRedisStore(client, "ratelimit")
		checks = append(checks, redis.Healthcheck(client))
	} else {
		log.Info("redis not configured, rate limits are per instance")
		memStore := ratelimit.NewMemoryStore()
		defer memStore.Close()
		limStore = memStore
	}

	apiCfg := config.MustLoad[httpapi.Config]()
	anonLimiter, err := ratelimit.NewFixedWindow(limStore, apiCfg.AnonymousRateLimit, time.Minute)
	if err != nil {
		return fmt.Errorf("init anonymous rate limiter: %w", err)
	}
	genLimiter, err := ratelimit.NewFixedWindow(limStore, apiCfg.GenerateRateLimit, time.Minute)
	if err != nil {
		return fmt.Errorf("init generate rate limiter: %w", err)
	}

	api := httpapi.New(apiCfg, log, tokens, users, subs, plans,
		usageSvc, recon, adapters, mail, generator.New())
	handler := api.Router(httpserver.HealthCheckHandler(log, checks...), anonLimiter, genLimiter)

	return httpserver.New(config.MustLoad[httpserver.Config](), log).Run(ctx, handler)
}

// buildAdapters constructs a webhook adapter for every provider whose
// credentials are present in the environment. A provider left
// unconfigured simply has no webhook endpoint.
func buildAdapters(directory billing.Directory, log *slog.Logger) []billing.Adapter {
	var adapters []billing.Adapter

	if cfg, err := config.Load[billing.StripeConfig](); err == nil {
		a, err := billing.NewStripeAdapter(cfg, directory, log)
		if err != nil {
			log.Error("failed to init stripe adapter", logger.Error(err))
		} else {
			adapters = append(adapters, a)
		}
	} else {
		log.Info("stripe webhooks disabled", slog.String("reason", "STRIPE_WEBHOOK_SECRET not set"))
	}

	if cfg, err := config.Load[billing.PayPalConfig](); err == nil {
		a, err := billing.NewPayPalAdapter(cfg, directory, log)
		if err != nil {
			log.Error("failed to init paypal adapter", logger.Error(err))
		} else {
			adapters = append(adapters, a)
		}
	} else {
		log.Info("paypal webhooks disabled", slog.String("reason", "PAYPAL_* credentials not set"))
	}

	if cfg, err := config.Load[billing.PayTRConfig](); err == nil {
		a, err := billing.NewPayTRAdapter(cfg, log)
		if err != nil {
			log.Error("failed to init paytr adapter", logger.Error(err))
		} else {
			adapters = append(adapters, a)
		}
	} else {
		log.Info("paytr webhooks disabled", slog.String("reason", "PAYTR_* credentials not set"))
	}

	return adapters
}
