package tourns

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"chgk-poll-bot/internal/models"
)

const (
	// MaxStoredLen is the Telegram limit for a poll option.
	MaxStoredLen = 100
	// editorsTailLen bounds the editors list once the title itself has to be cut.
	editorsTailLen = 30
	ellipsis       = "..."
)

// Representation is how one listed tournament is shown in chat and how it is
// remembered for a later /poll.
type Representation struct {
	Display string
	Stored  models.ShownTournament
}

// Represent renders ranked tournaments. siteURL is the rating site root used
// for tournament links.
func Represent(ts []models.Tournament, siteURL string) []Representation {
	out := make([]Representation, 0, len(ts))
	for _, t := range ts {
		title := strings.TrimSpace(t.Title)
		meta := metaPrefix(t)
		display := fmt.Sprintf(`<a href="%s">%s</a> (%s%s)`,
			TournamentURL(siteURL, t.ID), html.EscapeString(title), meta, html.EscapeString(t.Editors))
		out = append(out, Representation{
			Display: display,
			Stored:  models.ShownTournament{ID: t.ID, Name: StoredName(title, meta, t.Editors)},
		})
	}
	return out
}

func TournamentURL(siteURL string, id int64) string {
	return fmt.Sprintf("%s/tournament/%d", siteURL, id)
}

// Link renders name as an HTML link to the tournament, or as escaped text
// when the id is unknown.
func Link(siteURL string, id int64, name string) string {
	text := html.EscapeString(name)
	if id == 0 {
		return text
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, TournamentURL(siteURL, id), text)
}

// metaPrefix renders "questions, R, difficulty, " with unknown parts skipped.
func metaPrefix(t models.Tournament) string {
	var b strings.Builder
	if t.QuestionCount > 0 {
		b.WriteString(strconv.Itoa(t.QuestionCount) + ", ")
	}
	if t.Rated {
		b.WriteString("R, ")
	}
	if t.Difficulty != 0 {
		b.WriteString(strconv.FormatFloat(t.Difficulty, 'f', -1, 64) + ", ")
	}
	return b.String()
}

// StoredName builds "title (meta editors)" in at most MaxStoredLen runes. The
// editors list is trimmed first, then the title at a word boundary.
func StoredName(title, meta, editors string) string {
	full := title + " (" + meta + editors + ")"
	if runes(full) <= MaxStoredLen {
		return full
	}

	room := MaxStoredLen - runes(title+" ("+meta+ellipsis+")")
	if room >= 0 {
		return title + " (" + meta + cutAtComma(editors, room) + ellipsis + ")"
	}

	tail := editors
	if runes(editors) > editorsTailLen {
		tail = cutAtComma(editors, editorsTailLen) + ellipsis
	}
	post := " (" + meta + tail + ")"
	titleRoom := MaxStoredLen - runes(post) - runes(ellipsis)
	short := cutAtSpace(title, titleRoom) + ellipsis + post
	if runes(short) > MaxStoredLen {
		short = truncate(short, MaxStoredLen)
	}
	return short
}

// cutAtComma returns the longest prefix of a ", "-separated list that ends on
// an item boundary and fits in n runes.
func cutAtComma(list string, n int) string {
	if runes(list) <= n {
		return list
	}
	prefix := truncate(list, n+1)
	if i := strings.LastIndex(prefix, ","); i >= 0 {
		return list[:i]
	}
	return ""
}

// cutAtSpace returns the longest word-aligned prefix of s fitting in n runes,
// or a hard cut when s has no space early enough.
func cutAtSpace(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if runes(s) <= n {
		return s
	}
	prefix := truncate(s, n+1)
	if i := strings.LastIndex(prefix, " "); i > 0 {
		return strings.TrimRight(prefix[:i], " ")
	}
	return truncate(s, n)
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func runes(s string) int {
	return utf8.RuneCountInString(s)
}
