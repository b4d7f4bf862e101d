package polls

import (
	"context"
	"sync"

	"chgk-poll-bot/internal/models"
)

type sentPoll struct {
	ChatID   int64
	ThreadID int
	Poll     Poll
}

type sentText struct {
	ChatID   int64
	ThreadID int
	Text     string
}

// fakeMessenger records calls; the Func fields override the default behaviour.
type fakeMessenger struct {
	mu       sync.Mutex
	polls    []sentPoll
	texts    []sentText
	pinned   []int
	unpinned []int
	stopped  []int

	SendPollFunc func(ctx context.Context, chatID int64, threadID int, p Poll) (int, error)
	StopPollFunc func(ctx context.Context, chatID int64, threadID, messageID int) ([]models.PollOption, error)
	PinFunc      func(ctx context.Context, chatID int64, threadID, messageID int) error
}

func (f *fakeMessenger) SendPoll(ctx context.Context, chatID int64, threadID int, p Poll) (int, error) {
	f.mu.Lock()
	f.polls = append(f.polls, sentPoll{ChatID: chatID, ThreadID: threadID, Poll: p})
	n := len(f.polls)
	f.mu.Unlock()
	if f.SendPollFunc != nil {
		return f.SendPollFunc(ctx, chatID, threadID, p)
	}
	return 1000 + n, nil
}

func (f *fakeMessenger) StopPoll(ctx context.Context, chatID int64, threadID, messageID int) ([]models.PollOption, error) {
	f.mu.Lock()
	f.stopped = append(f.stopped, messageID)
	f.mu.Unlock()
	if f.StopPollFunc != nil {
		return f.StopPollFunc(ctx, chatID, threadID, messageID)
	}
	return nil, nil
}

func (f *fakeMessenger) Pin(ctx context.Context, chatID int64, threadID, messageID int) error {
	f.mu.Lock()
	f.pinned = append(f.pinned, messageID)
	f.mu.Unlock()
	if f.PinFunc != nil {
		return f.PinFunc(ctx, chatID, threadID, messageID)
	}
	return nil
}

func (f *fakeMessenger) Unpin(_ context.Context, _ int64, _, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unpinned = append(f.unpinned, messageID)
	return nil
}

func (f *fakeMessenger) SendHTML(_ context.Context, chatID int64, threadID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, sentText{ChatID: chatID, ThreadID: threadID, Text: text})
	return nil
}
