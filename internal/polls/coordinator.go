// Package polls runs the lifecycle of tournament polls: creation, scheduled
// and manual closing, and announcing the winner.
package polls

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"chgk-poll-bot/internal/metrics"
	"chgk-poll-bot/internal/models"
)

const (
	MaxChoices      = 8
	DefaultQuestion = "Выбираем"
	maxQuestionLen  = 300
)

// FixedOptions are appended to every tournament poll and never tallied.
var FixedOptions = []string{"буду играть любой", "не буду играть"}

const feedbackQuestion = "Сыгранный пакет показался вам..."

var feedbackOptions = []string{
	"Простым",
	"Средним по сложности",
	"Сложным",
	"Скучным",
	"Нормальным по интересности",
	"Интересным",
	"Слабым по редактуре",
	"Средним по редактуре",
	"Крутым по редактуре",
	"Нет мнения/посмотреть ответы",
}

// ErrNoPoll is returned by Stop and Cancel when no poll can be identified.
var ErrNoPoll = errors.New("no poll to close")

// Poll describes a poll to send.
type Poll struct {
	Question        string
	Options         []string
	Anonymous       bool
	MultipleAnswers bool
}

// Messenger is the chat transport. threadID 0 means the chat's main thread.
type Messenger interface {
	SendPoll(ctx context.Context, chatID int64, threadID int, p Poll) (int, error)
	StopPoll(ctx context.Context, chatID int64, threadID, messageID int) ([]models.PollOption, error)
	Pin(ctx context.Context, chatID int64, threadID, messageID int) error
	Unpin(ctx context.Context, chatID int64, threadID, messageID int) error
	SendHTML(ctx context.Context, chatID int64, threadID int, text string) error
}

// Tasks is the task registry as seen by the coordinator.
type Tasks interface {
	Add(ctx context.Context, task models.PollTask) error
	PopDue(ctx context.Context, now time.Time) ([]models.PollTask, error)
	PopReplied(ctx context.Context, chatID int64, messageID int) (*models.PollTask, error)
}

type Coordinator struct {
	msg     Messenger
	tasks   Tasks
	siteURL string
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewCoordinator(msg Messenger, tasks Tasks, siteURL string, log logrus.FieldLogger, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		msg:     msg,
		tasks:   tasks,
		siteURL: siteURL,
		log:     log.WithField("component", "polls"),
		metrics: m,
		rnd:     rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// CreateRequest is a poll over entries of the chat's last shown list.
type CreateRequest struct {
	ChatID   int64
	ThreadID int
	Question string
	Chosen   []models.ShownTournament
	// CloseAt is the scheduled close; zero leaves the poll open until closed by hand.
	CloseAt time.Time
}

// Create sends and pins the poll and, when a close time is given, registers
// the task that will close it.
func (c *Coordinator) Create(ctx context.Context, req CreateRequest) (int, error) {
	chosen := dedup(req.Chosen)
	if len(chosen) > MaxChoices {
		chosen = chosen[:MaxChoices]
	}
	options := make([]string, 0, len(chosen)+len(FixedOptions))
	ids := make([]int64, 0, len(chosen))
	for _, t := range chosen {
		options = append(options, t.Name)
		ids = append(ids, t.ID)
	}
	options = append(options, FixedOptions...)

	question := req.Question
	if question == "" {
		question = DefaultQuestion
	}
	if r := []rune(question); len(r) > maxQuestionLen {
		question = string(r[:maxQuestionLen])
	}

	log := c.log.WithField("chat_id", req.ChatID)
	messageID, err := c.msg.SendPoll(ctx, req.ChatID, req.ThreadID, Poll{
		Question:        question,
		Options:         options,
		MultipleAnswers: true,
	})
	if err != nil {
		return 0, fmt.Errorf("send poll: %w", err)
	}
	if err := c.msg.Pin(ctx, req.ChatID, req.ThreadID, messageID); err != nil {
		log.WithError(err).WithField("message_id", messageID).Warn("pin poll failed")
	}

	if req.CloseAt.IsZero() {
		return messageID, nil
	}
	task := models.PollTask{
		ChatID:        req.ChatID,
		MessageID:     messageID,
		CloseAt:       req.CloseAt.Unix(),
		TournamentIDs: ids,
	}
	if err := c.tasks.Add(ctx, task); err != nil {
		return messageID, err
	}
	log.WithFields(logrus.Fields{
		"message_id": messageID,
		"close_at":   req.CloseAt,
	}).Info("poll scheduled to close")
	return messageID, nil
}

// Feedback sends the anonymous package feedback poll.
func (c *Coordinator) Feedback(ctx context.Context, chatID int64, threadID int) error {
	_, err := c.msg.SendPoll(ctx, chatID, threadID, Poll{
		Question:        feedbackQuestion,
		Options:         feedbackOptions,
		Anonymous:       true,
		MultipleAnswers: true,
	})
	if err != nil {
		return fmt.Errorf("send feedback poll: %w", err)
	}
	return nil
}

// CloseDue finalizes every task due at now, announcing results. threadOf maps
// a chat to its configured thread. A task is removed before its poll is
// stopped, so a failed stop is not retried.
func (c *Coordinator) CloseDue(ctx context.Context, now time.Time, threadOf func(chatID int64) int) (int, error) {
	due, err := c.tasks.PopDue(ctx, now)
	if err != nil {
		return 0, err
	}
	for _, t := range due {
		if err := c.Finalize(ctx, t.ChatID, threadOf(t.ChatID), t.MessageID, t.TournamentIDs, true); err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"chat_id":    t.ChatID,
				"message_id": t.MessageID,
			}).Warn("scheduled poll close failed")
		}
	}
	return len(due), nil
}

// Stop closes the poll replied to (or the chat's only scheduled poll when
// replyTo is 0) and announces the result.
func (c *Coordinator) Stop(ctx context.Context, chatID int64, threadID, replyTo int) error {
	return c.closeByUser(ctx, chatID, threadID, replyTo, true)
}

// Cancel closes the poll like Stop without announcing anything.
func (c *Coordinator) Cancel(ctx context.Context, chatID int64, threadID, replyTo int) error {
	return c.closeByUser(ctx, chatID, threadID, replyTo, false)
}

func (c *Coordinator) closeByUser(ctx context.Context, chatID int64, threadID, replyTo int, withResults bool) error {
	// A sole task of another poll stays scheduled.
	task, err := c.tasks.PopReplied(ctx, chatID, replyTo)
	if err != nil {
		return err
	}
	messageID := replyTo
	var ids []int64
	if task != nil {
		messageID = task.MessageID
		ids = task.TournamentIDs
	}
	if messageID == 0 {
		return ErrNoPoll
	}
	return c.Finalize(ctx, chatID, threadID, messageID, ids, withResults)
}

// Finalize unpins and stops the poll, then announces the tally when
// withResults is set. A failed stop skips the tally.
func (c *Coordinator) Finalize(ctx context.Context, chatID int64, threadID, messageID int, ids []int64, withResults bool) error {
	log := c.log.WithFields(logrus.Fields{"chat_id": chatID, "message_id": messageID})

	if err := c.msg.Unpin(ctx, chatID, threadID, messageID); err != nil {
		log.WithError(err).Warn("unpin poll failed")
	}
	options, err := c.msg.StopPoll(ctx, chatID, threadID, messageID)
	if err != nil {
		c.metrics.PollFinalized("stop_failed")
		return fmt.Errorf("stop poll %d: %w", messageID, err)
	}
	if !withResults {
		c.metrics.PollFinalized("cancelled")
		return nil
	}

	res := c.Tally(options, ids)
	text := res.Announcement(c.siteURL)
	if text == "" {
		c.metrics.PollFinalized("empty")
		return nil
	}
	if res.RandomPick != nil {
		c.metrics.PollFinalized("tie")
	} else {
		c.metrics.PollFinalized("winner")
	}
	if err := c.msg.SendHTML(ctx, chatID, threadID, text); err != nil {
		return fmt.Errorf("announce poll %d: %w", messageID, err)
	}
	return nil
}

// dedup drops repeated entries: by id when known, by name otherwise.
func dedup(ts []models.ShownTournament) []models.ShownTournament {
	seenID := map[int64]bool{}
	seenName := map[string]bool{}
	out := make([]models.ShownTournament, 0, len(ts))
	for _, t := range ts {
		if t.ID != 0 {
			if seenID[t.ID] {
				continue
			}
			seenID[t.ID] = true
		} else {
			if seenName[t.Name] {
				continue
			}
			seenName[t.Name] = true
		}
		out = append(out, t)
	}
	return out
}
