package tgbot

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/polls"
	"chgk-poll-bot/internal/rating"
)

type outMessage struct {
	ChatID   int64
	ThreadID int
	Text     string
	Kind     string
}

type fakeTransport struct {
	mu       sync.Mutex
	messages []outMessage
	polls    []polls.Poll
	stopped  []int
	webhooks []string
	nextID   int

	StopPollFunc func(ctx context.Context, chatID int64, threadID, messageID int) ([]models.PollOption, error)
}

func (f *fakeTransport) record(chatID int64, threadID int, text, kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, outMessage{ChatID: chatID, ThreadID: threadID, Text: text, Kind: kind})
}

func (f *fakeTransport) SendText(_ context.Context, chatID int64, threadID int, text string) error {
	f.record(chatID, threadID, text, "text")
	return nil
}

func (f *fakeTransport) SendHTML(_ context.Context, chatID int64, threadID int, text string) error {
	f.record(chatID, threadID, text, "html")
	return nil
}

func (f *fakeTransport) SendChunked(_ context.Context, chatID int64, threadID int, lines []string) error {
	for _, l := range lines {
		f.record(chatID, threadID, l, "line")
	}
	return nil
}

func (f *fakeTransport) SendPoll(_ context.Context, _ int64, _ int, p polls.Poll) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls = append(f.polls, p)
	f.nextID++
	return 500 + f.nextID, nil
}

func (f *fakeTransport) StopPoll(ctx context.Context, chatID int64, threadID, messageID int) ([]models.PollOption, error) {
	f.mu.Lock()
	f.stopped = append(f.stopped, messageID)
	f.mu.Unlock()
	if f.StopPollFunc != nil {
		return f.StopPollFunc(ctx, chatID, threadID, messageID)
	}
	return nil, nil
}

func (f *fakeTransport) Pin(context.Context, int64, int, int) error   { return nil }
func (f *fakeTransport) Unpin(context.Context, int64, int, int) error { return nil }

func (f *fakeTransport) EnsureWebhook(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.webhooks = append(f.webhooks, url)
	return nil
}

func (f *fakeTransport) DeleteWebhook(context.Context) error { return nil }

func (f *fakeTransport) GetUpdates(context.Context, int, int) ([]json.RawMessage, error) {
	return nil, nil
}

func (f *fakeTransport) sent() []outMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]outMessage(nil), f.messages...)
}

// fakeRating serves every directory interface the bot uses.
type fakeRating struct {
	ListTournamentsFunc     func(ctx context.Context, w rating.Window) ([]models.Tournament, error)
	ListSyncRequestIDsFunc  func(ctx context.Context, venueID string, after time.Time) ([]string, error)
	ResolveSyncRequestFunc  func(ctx context.Context, id string) (int64, time.Time, error)
	GetTournamentFunc       func(ctx context.Context, id int64) (*rating.Detail, error)
	ListNewSyncRequestsFunc func(ctx context.Context, venueID string, issuedAfter time.Time) ([]models.SyncRequest, error)
}

func (f *fakeRating) ListTournaments(ctx context.Context, w rating.Window) ([]models.Tournament, error) {
	if f.ListTournamentsFunc == nil {
		return nil, nil
	}
	return f.ListTournamentsFunc(ctx, w)
}

func (f *fakeRating) ListSyncRequestIDs(ctx context.Context, venueID string, after time.Time) ([]string, error) {
	if f.ListSyncRequestIDsFunc == nil {
		return nil, nil
	}
	return f.ListSyncRequestIDsFunc(ctx, venueID, after)
}

func (f *fakeRating) ResolveSyncRequest(ctx context.Context, id string) (int64, time.Time, error) {
	return f.ResolveSyncRequestFunc(ctx, id)
}

func (f *fakeRating) GetTournament(ctx context.Context, id int64) (*rating.Detail, error) {
	if f.GetTournamentFunc == nil {
		return &rating.Detail{}, nil
	}
	return f.GetTournamentFunc(ctx, id)
}

func (f *fakeRating) ListNewSyncRequests(ctx context.Context, venueID string, issuedAfter time.Time) ([]models.SyncRequest, error) {
	if f.ListNewSyncRequestsFunc == nil {
		return nil, nil
	}
	return f.ListNewSyncRequestsFunc(ctx, venueID, issuedAfter)
}
