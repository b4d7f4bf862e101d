package tourns

import (
	"regexp"
	"sort"
	"strings"

	"chgk-poll-bot/internal/models"
)

var (
	punctRe  = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
	spacesRe = regexp.MustCompile(`\s+`)
	localeRe = regexp.MustCompile(`(^|\s)ua(\s|$)`)
)

// Longer forms go first so that "асинхронный" is not eaten by "синхрон".
var syncQualifiers = []string{
	"асинхрон и",
	"синхрон и",
	"онлайн и",
	"офлайн и",
	"оффлайн и",
	"асинхронный и",
	"синхронный и",
	"асинхронный",
	"синхронный",
	"асинхрон",
	"синхрон",
	"онлайн",
	"офлайн",
	"оффлайн",
}

// Normalize turns a tournament title into a fuzzy comparison key in which the
// synchronous and asynchronous editions of one package coincide.
func Normalize(title string) string {
	s := strings.ToLower(title)
	s = strings.ReplaceAll(s, "а/о", "")
	s = strings.ReplaceAll(s, "ё", "е")
	s = punctRe.ReplaceAllString(s, "")
	s = collapse(s)

	// Removing a qualifier can splice a new one together, so strip to a fixpoint.
	for {
		next := s
		for _, q := range syncQualifiers {
			next = strings.ReplaceAll(next, q, "")
		}
		next = collapse(localeRe.ReplaceAllString(collapse(next), " "))
		if next == s {
			return s
		}
		s = next
	}
}

func collapse(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}

// FormatEditors renders editors as a sorted "F. Surname, ..." list.
func FormatEditors(editors []models.Person) string {
	names := make([]string, 0, len(editors))
	for _, e := range editors {
		initial := ""
		for _, r := range e.Name {
			initial = string(r)
			break
		}
		names = append(names, initial+". "+e.Surname)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
