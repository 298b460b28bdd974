package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mbolis/signup/app"
	"github.com/mbolis/signup/config"
	"github.com/mbolis/signup/database"
	"github.com/mbolis/signup/log"
	"github.com/mbolis/signup/mail"
	"github.com/mbolis/signup/model"
	"github.com/mbolis/signup/ratelimit"
	"github.com/mbolis/signup/routes"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		log.Fatal("main.config: ", err)
	}
	log.Configure(cfg.Log.Level, cfg.Log.Format)
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	for _, name := range cfg.Form.Required {
		if !model.IsSubmissionField(name) {
			log.Warnf("main.config: form.required names unknown field %q", name)
		}
	}

	db, dbErr := database.Open(cfg.Database)
	switch err := dbErr; {
	case errors.Is(err, database.ErrNotConfigured):
		log.Warn("main.db.open: database configuration incomplete, requests will fail until it is fixed")
	case err != nil:
		log.WithFields(log.Fields{"driver": cfg.Database.Driver}).WithError(err).Error("main.db.open")
	default:
		defer db.Close()
	}

	limiter, closeLimiter, err := newLimiter(cfg)
	if err != nil {
		log.Fatal("main.ratelimit: ", err)
	}
	defer closeLimiter()

	sender := mail.New(cfg.Mail, cfg.Site)
	if !sender.Enabled() {
		log.Warn("main.mail: outbound email disabled")
	} else if cfg.Mail.AdminEmail == "" {
		log.Warn("main.mail: mail.admin_email not set, admin notifications are off")
	}
	outbox := &mail.Dispatcher{}

	app := app.App{
		DB:      db,
		DBError: dbErr,
		Mailer:  sender,
		Outbox:  outbox,
		Limiter: limiter,
		Config:  cfg,
	}

	handler := routes.Wire(app)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runServer(ctx, cfg, handler)
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("main.server: ", err)
	}

	log.Info("waiting for pending emails")
	waitCtx, cancel := context.WithTimeout(context.Background(), mail.DefaultTimeout+5*time.Second)
	defer cancel()
	if err := outbox.WaitContext(waitCtx); err != nil {
		log.WithError(err).Warn("main.mail: gave up on pending emails")
	}
}

// newLimiter picks the Redis limiter when redis.url is set, an in-process one otherwise.
func newLimiter(cfg config.Config) (ratelimit.Limiter, func(), error) {
	policy := ratelimit.Policy{Attempts: cfg.RateLimit.Attempts, Window: cfg.RateLimit.Window}

	if cfg.Redis.URL == "" {
		l := ratelimit.NewMemoryLimiter(policy)
		return l, l.Close, nil
	}

	opts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("main.ratelimit: redis not reachable yet, requests will be let through until it is")
	}

	l := ratelimit.NewRedisLimiter(client, "signup:unsubscribe", policy)
	return l, func() { client.Close() }, nil
}

func runServer(ctx context.Context, cfg config.Config, handler http.Handler) error {
	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("Listening on " + cfg.Url())
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
