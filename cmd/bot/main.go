package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"chgk-poll-bot/internal/config"
	"chgk-poll-bot/internal/ledger"
	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/polls"
	"chgk-poll-bot/internal/rating"
	"chgk-poll-bot/internal/server"
	"chgk-poll-bot/internal/store"
	"chgk-poll-bot/internal/store/backends"
	"chgk-poll-bot/internal/tasks"
	"chgk-poll-bot/internal/tgbot"
	"chgk-poll-bot/internal/watch"
)

type service struct {
	cfg     config.Config
	log     *logrus.Logger
	metrics *metrics.Metrics
	store   store.Store
	app     *tgbot.App
}

func setup(ctx context.Context) (*service, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	logger.SetLevel(level)

	m := metrics.New()

	st, err := backends.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logger.WithField("username", bot.Self.UserName).Info("authorized on telegram")

	defaultLoc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("default timezone: %w", err)
	}

	messenger := tgbot.NewMessenger(bot, logger, m)
	client := rating.NewHTTPClient(cfg.RatingAPIURL, cfg.RatingRPS, logger, m)
	chats := store.NewChats(st)

	app, err := tgbot.New(cfg, tgbot.Deps{
		Transport:   messenger,
		Tournaments: client,
		Ledger:      ledger.New(chats, client, logger),
		Chats:       chats,
		Configs:     store.NewConfigs(st),
		Polls:       polls.NewCoordinator(messenger, tasks.NewRegistry(st), cfg.RatingSiteURL, logger, m),
		Announcer:   watch.NewAnnouncer(client, messenger, cfg.RatingSiteURL, defaultLoc, logger),
		Metrics:     m,
		Log:         logger,
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &service{cfg: cfg, log: logger, metrics: m, store: st, app: app}, nil
}

func withService(fn func(ctx context.Context, rt *service, c *cli.Context) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rt, err := setup(ctx)
		if err != nil {
			return err
		}
		defer rt.store.Close()
		return fn(ctx, rt, c)
	}
}

func serve(ctx context.Context, rt *service, _ *cli.Context) error {
	httpSrv := server.New(rt.cfg, rt.app, rt.metrics, rt.log)

	errCh := make(chan error, 2)
	go func() {
		rt.log.WithField("addr", rt.cfg.HTTPAddr).Info("HTTP listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if rt.cfg.Mode == config.ModePolling {
		go func() {
			if err := rt.app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("bot stopped: %w", err)
			}
		}()
	} else if rt.cfg.BasePublicURL != "" {
		if err := rt.app.EnsureWebhook(ctx); err != nil {
			rt.log.WithError(err).Warn("webhook registration failed")
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	rt.log.Info("shutting down...")

	ctxTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctxTimeout)

	rt.log.Info("bye")
	return runErr
}

func sweep(ctx context.Context, rt *service, _ *cli.Context) error {
	return rt.app.Sweep(ctx)
}

func setWebhook(ctx context.Context, rt *service, _ *cli.Context) error {
	if err := rt.app.EnsureWebhook(ctx); err != nil {
		return err
	}
	fmt.Println(rt.cfg.WebhookURL())
	return nil
}

func listTourns(ctx context.Context, rt *service, c *cli.Context) error {
	reps, err := rt.app.Shortlist(ctx, c.Int64("chat"), c.String("date"), c.Bool("rated"))
	if err != nil {
		return err
	}
	for i, r := range reps {
		fmt.Printf("%d. %s\n", i+1, r.Display)
	}
	return nil
}

func main() {
	_ = godotenv.Load()

	cliApp := &cli.App{
		Name:  "chgk-poll-bot",
		Usage: "telegram bot that lists upcoming tournaments and runs polls on which one to play",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP gateway (and the long-poll loop in polling mode)",
				Action: withService(serve),
			},
			{
				Name:   "sweep",
				Usage:  "close due polls and announce new sync requests once",
				Action: withService(sweep),
			},
			{
				Name:   "setwebhook",
				Usage:  "register the public webhook URL with Telegram",
				Action: withService(setWebhook),
			},
			{
				Name:  "tourns",
				Usage: "print the tournaments a chat would be offered",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "date", Usage: "YYYYMMDD or a date with time", Required: true},
					&cli.Int64Flag{Name: "chat", Usage: "chat id whose timezone and venues apply"},
					&cli.BoolFlag{Name: "rated", Usage: "only rated tournaments"},
				},
				Action: withService(listTourns),
			},
		},
		DefaultCommand: "serve",
	}

	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("exit")
	}
}
