// Package watch announces new sync requests filed at the venues chats follow.
package watch

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/rating"
	"chgk-poll-bot/internal/tourns"
)

const (
	DefaultWindow = 15 * time.Minute
	maxParallel   = 4
)

type Directory interface {
	ListNewSyncRequests(ctx context.Context, venueID string, issuedAfter time.Time) ([]models.SyncRequest, error)
	GetTournament(ctx context.Context, id int64) (*rating.Detail, error)
}

type Sender interface {
	SendHTML(ctx context.Context, chatID int64, threadID int, text string) error
}

type Announcer struct {
	dir        Directory
	send       Sender
	siteURL    string
	defaultLoc *time.Location
	window     time.Duration
	now        func() time.Time
	log        logrus.FieldLogger

	mu        sync.Mutex
	announced map[string]time.Time // chat/request -> when announced
}

func NewAnnouncer(dir Directory, send Sender, siteURL string, defaultLoc *time.Location, log logrus.FieldLogger) *Announcer {
	return &Announcer{
		dir:        dir,
		send:       send,
		siteURL:    siteURL,
		defaultLoc: defaultLoc,
		window:     DefaultWindow,
		now:        time.Now,
		log:        log.WithField("component", "announcer"),
		announced:  map[string]time.Time{},
	}
}

// Run announces, for every configured chat, the sync requests issued at its
// venues during the last window. A request is announced to a chat at most once
// per process. Failures are logged per chat.
func (a *Announcer) Run(ctx context.Context, configs map[string]models.ChatConfig) error {
	now := a.now()
	a.forget(now)

	var g errgroup.Group
	g.SetLimit(maxParallel)
	for key, cfg := range configs {
		if len(cfg.Venues) == 0 {
			continue
		}
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			a.log.WithField("chat", key).Warn("config with malformed chat id")
			continue
		}
		g.Go(func() error {
			a.announceChat(ctx, chatID, cfg, now)
			return nil
		})
	}
	return g.Wait()
}

func (a *Announcer) announceChat(ctx context.Context, chatID int64, cfg models.ChatConfig, now time.Time) {
	loc := cfg.Location(a.defaultLoc)
	log := a.log.WithField("chat_id", chatID)

	for _, venue := range cfg.Venues {
		reqs, err := a.dir.ListNewSyncRequests(ctx, venue, now.Add(-a.window))
		if err != nil {
			log.WithError(err).WithField("venue_id", venue).Warn("new sync requests listing incomplete")
		}
		for _, req := range reqs {
			key := fmt.Sprintf("%d/%s", chatID, req.ID)
			if a.seen(key) {
				continue
			}
			detail, err := a.dir.GetTournament(ctx, req.TournamentID)
			if err != nil || detail.Name == "" {
				log.WithError(err).WithField("tournament_id", req.TournamentID).Warn("sync request without tournament name")
				continue
			}
			text := Announcement(req, detail.Name, a.siteURL, loc)
			if err := a.send.SendHTML(ctx, chatID, cfg.ThreadID, text); err != nil {
				log.WithError(err).WithField("sync_request", req.ID).Warn("announcement not sent")
				continue
			}
			a.remember(key, now)
		}
	}
}

// Keys are per chat, and each chat runs on a single goroutine.
func (a *Announcer) seen(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.announced[key]
	return ok
}

func (a *Announcer) remember(key string, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.announced[key] = now
}

func (a *Announcer) forget(now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for k, at := range a.announced {
		if now.Sub(at) > 2*a.window {
			delete(a.announced, k)
		}
	}
}

// Announcement renders the chat message for a new sync request.
func Announcement(req models.SyncRequest, tournamentName, siteURL string, loc *time.Location) string {
	rep, repFeminine := PersonForm(req.Representative)
	repTitle := "Представитель"
	if repFeminine {
		repTitle = "Представительница"
	}
	nar, narFeminine := PersonForm(req.Narrator)
	narTitle := "Ведущий"
	if narFeminine {
		narTitle = "Ведущая"
	}
	return fmt.Sprintf(`Подана заявка на <a href="%s">"%s"</a>. %s: %s. %s: %s. Начало: %s`,
		tourns.TournamentURL(siteURL, req.TournamentID),
		html.EscapeString(tournamentName),
		repTitle, html.EscapeString(rep),
		narTitle, html.EscapeString(nar),
		req.StartsAt.In(loc).Format("02.01 15:04"),
	)
}
