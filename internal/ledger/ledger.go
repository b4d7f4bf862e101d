// Package ledger keeps each chat's record of tournaments already played at its
// venues, refreshed incrementally from the rating directory.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/rating"
	"chgk-poll-bot/internal/store"
	"chgk-poll-bot/internal/tourns"
)

const (
	retentionMonths = 10
	shortLookback   = 1
	fullLookback    = 4
)

// Directory is the part of the rating client the ledger reads.
type Directory interface {
	ListSyncRequestIDs(ctx context.Context, venueID string, after time.Time) ([]string, error)
	ResolveSyncRequest(ctx context.Context, id string) (int64, time.Time, error)
	GetTournament(ctx context.Context, id int64) (*rating.Detail, error)
}

type Ledger struct {
	chats *store.Chats
	dir   Directory
	now   func() time.Time
	log   logrus.FieldLogger
}

func New(chats *store.Chats, dir Directory, log logrus.FieldLogger) *Ledger {
	return &Ledger{chats: chats, dir: dir, now: time.Now, log: log.WithField("component", "ledger")}
}

// Refresh prunes the chat's ledger, appends sync requests accepted at venueID
// since the last refresh and returns the stored ledger keyed by tournament id.
// Directory failures are logged and leave whatever was gathered; only store
// failures are returned.
func (l *Ledger) Refresh(ctx context.Context, venueID string, chatID int64, loc *time.Location) (tourns.View, error) {
	if loc == nil {
		loc = time.UTC
	}
	log := l.log.WithFields(logrus.Fields{"chat_id": chatID, "venue_id": venueID})

	data, err := l.chats.Get(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load ledger for chat %d: %w", chatID, err)
	}
	now := l.now().In(loc)
	cutoff := tourns.AddMonths(day(now), -retentionMonths)
	kept := prune(data.PlayedTourns, cutoff)

	months := fullLookback
	if len(kept) > 0 {
		months = shortLookback
	}
	ids, err := l.dir.ListSyncRequestIDs(ctx, venueID, tourns.AddMonths(now, -months))
	if err != nil {
		log.WithError(err).Warn("sync request listing incomplete")
	}

	known := make(map[string]bool, len(kept))
	for _, rec := range kept {
		known[rec.SyncRequestID] = true
	}
	var added []models.PlayedRecord
	for _, id := range ids {
		if known[id] {
			continue
		}
		known[id] = true
		rec, ok := l.resolve(ctx, id, loc, log)
		if ok {
			added = append(added, rec)
		}
	}

	stored, err := l.chats.UpdatePlayed(ctx, chatID, func(cur []models.PlayedRecord) []models.PlayedRecord {
		return merge(prune(cur, cutoff), added)
	})
	if err != nil {
		return nil, fmt.Errorf("save ledger for chat %d: %w", chatID, err)
	}
	if len(added) > 0 {
		log.WithField("added", len(added)).Info("ledger refreshed")
	}
	return viewOf(stored), nil
}

// RefreshVenues refreshes the chat's ledger for each venue in order and returns
// the combined view. A chat without venues has nothing played.
func (l *Ledger) RefreshVenues(ctx context.Context, chatID int64, venues []string, loc *time.Location) (tourns.View, error) {
	view := tourns.View{}
	for _, venue := range venues {
		v, err := l.Refresh(ctx, venue, chatID, loc)
		if err != nil {
			return view, err
		}
		view = v
	}
	return view, nil
}

func (l *Ledger) resolve(ctx context.Context, syncID string, loc *time.Location, log logrus.FieldLogger) (models.PlayedRecord, bool) {
	tournID, issued, err := l.dir.ResolveSyncRequest(ctx, syncID)
	if err != nil {
		log.WithError(err).WithField("sync_request", syncID).Warn("sync request skipped")
		return models.PlayedRecord{}, false
	}
	rec := models.PlayedRecord{
		SyncRequestID: syncID,
		TournamentID:  tournID,
		Date:          day(issued.In(loc)),
	}
	detail, err := l.dir.GetTournament(ctx, tournID)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"sync_request":  syncID,
			"tournament_id": tournID,
		}).Warn("tournament details missing, recording id only")
		return rec, true
	}
	rec.NormName = tourns.Normalize(detail.Name)
	rec.Editors = tourns.FormatEditors(detail.Editors)
	return rec, true
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func prune(recs []models.PlayedRecord, cutoff time.Time) []models.PlayedRecord {
	out := make([]models.PlayedRecord, 0, len(recs))
	for _, rec := range recs {
		if day(rec.Date).After(cutoff) {
			out = append(out, rec)
		}
	}
	return out
}

// merge appends records whose sync request id is not stored yet.
func merge(cur, added []models.PlayedRecord) []models.PlayedRecord {
	seen := make(map[string]bool, len(cur))
	for _, rec := range cur {
		seen[rec.SyncRequestID] = true
	}
	for _, rec := range added {
		if seen[rec.SyncRequestID] {
			continue
		}
		seen[rec.SyncRequestID] = true
		cur = append(cur, rec)
	}
	return cur
}

func viewOf(recs []models.PlayedRecord) tourns.View {
	v := make(tourns.View, len(recs))
	for _, rec := range recs {
		v[rec.TournamentID] = rec
	}
	return v
}
