package polls

import (
	"fmt"
	"html"
	"strings"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/tourns"
)

// Winner is a tallied option with the tournament it stands for (0 if unknown).
type Winner struct {
	Text         string
	TournamentID int64
}

type Result struct {
	Winners []Winner
	// RandomPick is set only when several options share the top count.
	RandomPick *Winner
}

// Tally finds the options with the highest vote count, ignoring the fixed
// trailing options. ids map positionally onto the tallied options.
func (c *Coordinator) Tally(options []models.PollOption, ids []int64) Result {
	if len(options) <= len(FixedOptions) {
		return Result{}
	}
	tallied := options[:len(options)-len(FixedOptions)]

	best := -1
	var winners []Winner
	for i, opt := range tallied {
		w := Winner{Text: opt.Text}
		if i < len(ids) {
			w.TournamentID = ids[i]
		}
		switch {
		case opt.VoterCount > best:
			best = opt.VoterCount
			winners = []Winner{w}
		case opt.VoterCount == best:
			winners = append(winners, w)
		}
	}

	res := Result{Winners: winners}
	if len(winners) > 1 {
		c.mu.Lock()
		pick := winners[c.rnd.IntN(len(winners))]
		c.mu.Unlock()
		res.RandomPick = &pick
	}
	return res
}

// Announcement renders the result as an HTML chat message. It is empty when
// there is nothing to announce.
func (r Result) Announcement(siteURL string) string {
	switch {
	case len(r.Winners) == 0:
		return ""
	case len(r.Winners) == 1:
		return "Победитель: " + printable(r.Winners[0], siteURL)
	}
	names := make([]string, 0, len(r.Winners))
	for _, w := range r.Winners {
		names = append(names, html.EscapeString(w.Text))
	}
	return fmt.Sprintf("Победители: %s.\nСлучайный выбор: %s",
		strings.Join(names, ", "), printable(*r.RandomPick, siteURL))
}

func printable(w Winner, siteURL string) string {
	return tourns.Link(siteURL, w.TournamentID, w.Text)
}
