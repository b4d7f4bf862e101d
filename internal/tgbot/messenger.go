package tgbot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/polls"
	"chgk-poll-bot/internal/util"
)

// MaxMessageLen keeps messages under Telegram's 4096 character limit.
const MaxMessageLen = 4000

// Telegram allows about 30 messages per second across chats.
const sendRate = 25

// Messenger calls the Bot API directly so that forum thread ids can be passed
// along with every method.
type Messenger struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

func NewMessenger(bot *tgbotapi.BotAPI, log logrus.FieldLogger, m *metrics.Metrics) *Messenger {
	return &Messenger{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(sendRate), sendRate),
		log:     log.WithField("component", "telegram"),
		metrics: m,
	}
}

func (m *Messenger) call(ctx context.Context, endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	resp, err := m.bot.MakeRequest(endpoint, params)
	if err != nil {
		m.metrics.UpstreamError("telegram", endpoint)
		m.log.WithError(err).WithFields(logrus.Fields{
			"method":  endpoint,
			"chat_id": params["chat_id"],
		}).Warn("telegram call failed")
		return resp, fmt.Errorf("%s: %w", endpoint, err)
	}
	return resp, nil
}

func baseParams(chatID int64, threadID int) tgbotapi.Params {
	p := tgbotapi.Params{}
	p.AddNonZero64("chat_id", chatID)
	p.AddNonZero("message_thread_id", threadID)
	return p
}

func (m *Messenger) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	return m.sendMessage(ctx, chatID, threadID, text, "")
}

func (m *Messenger) SendHTML(ctx context.Context, chatID int64, threadID int, text string) error {
	return m.sendMessage(ctx, chatID, threadID, text, tgbotapi.ModeHTML)
}

// SendChunked sends HTML lines split into as few messages as fit the limit.
func (m *Messenger) SendChunked(ctx context.Context, chatID int64, threadID int, lines []string) error {
	for _, chunk := range util.ChunkLines(lines, MaxMessageLen) {
		if err := m.SendHTML(ctx, chatID, threadID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (m *Messenger) sendMessage(ctx context.Context, chatID int64, threadID int, text, parseMode string) error {
	p := baseParams(chatID, threadID)
	p.AddNonEmpty("text", text)
	p.AddNonEmpty("parse_mode", parseMode)
	p.AddBool("disable_web_page_preview", true)
	_, err := m.call(ctx, "sendMessage", p)
	return err
}

func (m *Messenger) SendPoll(ctx context.Context, chatID int64, threadID int, poll polls.Poll) (int, error) {
	p := baseParams(chatID, threadID)
	p.AddNonEmpty("question", poll.Question)
	if err := p.AddInterface("options", poll.Options); err != nil {
		return 0, err
	}
	// AddBool skips false values and Telegram polls default to anonymous.
	p["is_anonymous"] = strconv.FormatBool(poll.Anonymous)
	p.AddBool("allows_multiple_answers", poll.MultipleAnswers)
	p.AddBool("protect_content", true)

	resp, err := m.call(ctx, "sendPoll", p)
	if err != nil {
		return 0, err
	}
	var msg tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &msg); err != nil {
		return 0, fmt.Errorf("sendPoll: decode result: %w", err)
	}
	return msg.MessageID, nil
}

func (m *Messenger) StopPoll(ctx context.Context, chatID int64, _ int, messageID int) ([]models.PollOption, error) {
	p := baseParams(chatID, 0)
	p.AddNonZero("message_id", messageID)
	resp, err := m.call(ctx, "stopPoll", p)
	if err != nil {
		return nil, err
	}
	var poll tgbotapi.Poll
	if err := json.Unmarshal(resp.Result, &poll); err != nil {
		return nil, fmt.Errorf("stopPoll: decode result: %w", err)
	}
	out := make([]models.PollOption, 0, len(poll.Options))
	for _, o := range poll.Options {
		out = append(out, models.PollOption{Text: o.Text, VoterCount: o.VoterCount})
	}
	return out, nil
}

func (m *Messenger) Pin(ctx context.Context, chatID int64, threadID, messageID int) error {
	p := baseParams(chatID, threadID)
	p.AddNonZero("message_id", messageID)
	_, err := m.call(ctx, "pinChatMessage", p)
	return err
}

func (m *Messenger) Unpin(ctx context.Context, chatID int64, threadID, messageID int) error {
	p := baseParams(chatID, threadID)
	p.AddNonZero("message_id", messageID)
	_, err := m.call(ctx, "unpinChatMessage", p)
	return err
}

// EnsureWebhook points the bot at url unless it already is, dropping updates
// queued meanwhile.
func (m *Messenger) EnsureWebhook(_ context.Context, url string) error {
	info, err := m.bot.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("getWebhookInfo: %w", err)
	}
	if info.URL == url {
		return nil
	}
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("webhook url: %w", err)
	}
	wh.DropPendingUpdates = true
	if _, err := m.bot.Request(wh); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	m.log.WithField("url", url).Info("webhook set")
	return nil
}

// DeleteWebhook switches the bot to long polling.
func (m *Messenger) DeleteWebhook(_ context.Context) error {
	if _, err := m.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		return fmt.Errorf("deleteWebhook: %w", err)
	}
	return nil
}

// GetUpdates long-polls for raw updates starting at offset.
func (m *Messenger) GetUpdates(_ context.Context, offset, timeout int) ([]json.RawMessage, error) {
	p := tgbotapi.Params{}
	p.AddNonZero("offset", offset)
	p.AddNonZero("timeout", timeout)
	if err := p.AddInterface("allowed_updates", []string{"message", "poll", "poll_answer"}); err != nil {
		return nil, err
	}
	resp, err := m.bot.MakeRequest("getUpdates", p)
	if err != nil {
		m.metrics.UpstreamError("telegram", "getUpdates")
		return nil, fmt.Errorf("getUpdates: %w", err)
	}
	var updates []json.RawMessage
	if err := json.Unmarshal(resp.Result, &updates); err != nil {
		return nil, fmt.Errorf("getUpdates: decode result: %w", err)
	}
	return updates, nil
}
