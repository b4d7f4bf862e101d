package tourns

import (
	"sort"
	"time"

	"chgk-poll-bot/internal/models"
)

// MinDifficulty is the lowest forecast difficulty still worth listing.
const MinDifficulty = 3

// View is a chat's played ledger keyed by tournament id.
type View map[int64]models.PlayedRecord

type Options struct {
	OnlyRated bool
	// Location turns a candidate's start into the calendar date used by the
	// sync/async duplicate window. Defaults to UTC.
	Location *time.Location
}

// Filter drops candidates that are too easy, unrated when only rated ones were
// requested, of the regular type, already played, or an async/online rerun of
// a package the chat played synchronously during the preceding month.
func Filter(candidates []models.Tournament, played View, opts Options) []models.Tournament {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	byName := map[string][]models.PlayedRecord{}
	for _, rec := range played {
		if rec.NormName == "" {
			continue
		}
		byName[rec.NormName] = append(byName[rec.NormName], rec)
	}

	out := make([]models.Tournament, 0, len(candidates))
	for _, t := range candidates {
		if t.Difficulty != 0 && t.Difficulty < MinDifficulty {
			continue
		}
		if opts.OnlyRated && !t.Rated {
			continue
		}
		if t.TypeName == "" || t.TypeName == models.TypeRegular {
			continue
		}
		if _, ok := played[t.ID]; ok {
			continue
		}
		if isSyncAgnostic(t.TypeName) && playedRecently(t, byName[Normalize(t.Title)], loc) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func isSyncAgnostic(typeName string) bool {
	return typeName == models.TypeAsync || typeName == models.TypeOnline
}

func playedRecently(t models.Tournament, records []models.PlayedRecord, loc *time.Location) bool {
	if len(records) == 0 {
		return false
	}
	windowStart := AddMonths(dateOf(t.StartsAt.In(loc)), -1)
	for _, rec := range records {
		if rec.Editors == t.Editors && dateOf(rec.Date).After(windowStart) {
			return true
		}
	}
	return false
}

// dateOf keeps only the calendar date of t, as seen in t's own location.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddMonths shifts t by n calendar months, clamping the day to the last day
// of the target month (March 31 minus one month is February 29, not March 2).
func AddMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

// Rank orders rated tournaments first, then by difficulty, keeping the
// upstream order among equals.
func Rank(ts []models.Tournament) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Rated != ts[j].Rated {
			return ts[i].Rated
		}
		return ts[i].Difficulty > ts[j].Difficulty
	})
}
