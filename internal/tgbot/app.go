package tgbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"chgk-poll-bot/internal/config"
	"chgk-poll-bot/internal/ledger"
	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/polls"
	"chgk-poll-bot/internal/rating"
	"chgk-poll-bot/internal/store"
	"chgk-poll-bot/internal/watch"
)

// Transport is the Telegram side of the bot.
type Transport interface {
	polls.Messenger
	SendText(ctx context.Context, chatID int64, threadID int, text string) error
	SendChunked(ctx context.Context, chatID int64, threadID int, lines []string) error
	EnsureWebhook(ctx context.Context, url string) error
	DeleteWebhook(ctx context.Context) error
	GetUpdates(ctx context.Context, offset, timeout int) ([]json.RawMessage, error)
}

// Tournaments lists candidate tournaments for a date.
type Tournaments interface {
	ListTournaments(ctx context.Context, w rating.Window) ([]models.Tournament, error)
}

type Deps struct {
	Transport   Transport
	Tournaments Tournaments
	Ledger      *ledger.Ledger
	Chats       *store.Chats
	Configs     *store.Configs
	Polls       *polls.Coordinator
	Announcer   *watch.Announcer
	Metrics     *metrics.Metrics
	Log         logrus.FieldLogger
}

type App struct {
	cfg        config.Config
	tg         Transport
	tourns     Tournaments
	ledger     *ledger.Ledger
	chats      *store.Chats
	configs    *store.Configs
	polls      *polls.Coordinator
	announcer  *watch.Announcer
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	defaultLoc *time.Location
	now        func() time.Time
}

func New(cfg config.Config, d Deps) (*App, error) {
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return nil, fmt.Errorf("default timezone: %w", err)
	}
	return &App{
		cfg:        cfg,
		tg:         d.Transport,
		tourns:     d.Tournaments,
		ledger:     d.Ledger,
		chats:      d.Chats,
		configs:    d.Configs,
		polls:      d.Polls,
		announcer:  d.Announcer,
		metrics:    d.Metrics,
		log:        d.Log.WithField("component", "bot"),
		defaultLoc: loc,
		now:        time.Now,
	}, nil
}

// Run long-polls Telegram and sweeps every cfg.SweepInterval until ctx is done.
func (a *App) Run(ctx context.Context) error {
	if err := a.tg.DeleteWebhook(ctx); err != nil {
		return err
	}

	go a.sweepLoop(ctx)

	offset := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		updates, err := a.tg.GetUpdates(ctx, offset, 30)
		if err != nil {
			a.log.WithError(err).Warn("polling updates failed")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}
		for _, raw := range updates {
			var head struct {
				UpdateID int `json:"update_id"`
			}
			if err := json.Unmarshal(raw, &head); err == nil && head.UpdateID >= offset {
				offset = head.UpdateID + 1
			}
			a.HandleUpdate(ctx, raw)
		}
	}
}

func (a *App) sweepLoop(ctx context.Context) {
	t := time.NewTicker(a.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := a.Sweep(ctx); err != nil {
				a.log.WithError(err).Warn("sweep failed")
			}
		}
	}
}

// Sweep closes due polls and announces new sync requests. In webhook mode it
// also re-registers the webhook if Telegram lost it.
func (a *App) Sweep(ctx context.Context) error {
	start := time.Now()
	defer func() { a.metrics.ObserveSweep(time.Since(start)) }()

	if a.cfg.Mode == config.ModeWebhook && a.cfg.BasePublicURL != "" {
		if err := a.EnsureWebhook(ctx); err != nil {
			a.log.WithError(err).Warn("webhook check failed")
		}
	}

	configs, err := a.configs.All(ctx)
	if err != nil {
		return fmt.Errorf("load configs: %w", err)
	}
	threadOf := func(chatID int64) int {
		return configs[strconv.FormatInt(chatID, 10)].ThreadID
	}
	closed, err := a.polls.CloseDue(ctx, a.now(), threadOf)
	if err != nil {
		return err
	}
	if closed > 0 {
		a.log.WithField("closed", closed).Info("scheduled polls closed")
	}
	return a.announcer.Run(ctx, configs)
}

func (a *App) EnsureWebhook(ctx context.Context) error {
	return a.tg.EnsureWebhook(ctx, a.cfg.WebhookURL())
}

// forumFields carries what the Bot API library does not decode.
type forumFields struct {
	Message *struct {
		MessageThreadID int `json:"message_thread_id"`
		Chat            struct {
			IsForum bool `json:"is_forum"`
		} `json:"chat"`
	} `json:"message"`
}

// HandleUpdate processes one raw update. Failures and panics are logged and
// never propagate.
func (a *App) HandleUpdate(ctx context.Context, body []byte) {
	defer func() {
		if r := recover(); r != nil {
			a.log.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("update handling panicked")
		}
	}()

	var upd tgbotapi.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		a.log.WithError(err).Warn("malformed update")
		return
	}
	var forum forumFields
	_ = json.Unmarshal(body, &forum)

	if upd.Poll != nil {
		entry := a.log.WithFields(logrus.Fields{
			"poll_id":     upd.Poll.ID,
			"total_votes": upd.Poll.TotalVoterCount,
		})
		for _, o := range upd.Poll.Options {
			entry = entry.WithField("option:"+o.Text, o.VoterCount)
		}
		entry.Info("poll updated")
	}
	if upd.PollAnswer != nil {
		a.log.WithFields(logrus.Fields{
			"poll_id": upd.PollAnswer.PollID,
			"user_id": upd.PollAnswer.User.ID,
			"options": upd.PollAnswer.OptionIDs,
		}).Info("poll answered")
	}

	m := upd.Message
	if m == nil || m.Chat == nil || m.Text == "" {
		return
	}
	in := incoming{
		ChatID: m.Chat.ID,
		Text:   m.Text,
	}
	if m.ReplyToMessage != nil {
		in.ReplyTo = m.ReplyToMessage.MessageID
	}
	if forum.Message != nil {
		in.IsForum = forum.Message.Chat.IsForum
		in.MessageThreadID = forum.Message.MessageThreadID
	}
	if err := a.handleMessage(ctx, in); err != nil {
		a.log.WithError(err).WithField("chat_id", in.ChatID).Warn("command failed")
	}
}

func isNoPoll(err error) bool {
	return errors.Is(err, polls.ErrNoPoll)
}
