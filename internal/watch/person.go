package watch

import (
	"strings"
	"unicode/utf8"

	"chgk-poll-bot/internal/models"
)

var (
	masculineA  = map[string]bool{"никита": true, "кузьма": true, "савва": true, "фома": true, "лука": true, "данила": true}
	masculineYa = map[string]bool{"илья": true, "емеля": true, "добрыня": true}
)

// PersonForm returns "Name Surname" and whether the person is a woman, judged
// by the patronymic or, without one, by the name and surname endings.
func PersonForm(p models.Person) (string, bool) {
	form := p.Name + " " + p.Surname

	if p.Patronymic != "" {
		lower := strings.ToLower(p.Patronymic)
		feminine := strings.HasSuffix(p.Patronymic, "на") ||
			strings.HasSuffix(lower, " гызы") ||
			strings.HasSuffix(lower, " кызы") ||
			strings.HasSuffix(lower, " кизи")
		return form, feminine
	}

	name := strings.ToLower(p.Name)
	switch {
	case strings.HasSuffix(p.Name, "а") && !masculineA[name]:
		return form, true
	case strings.HasSuffix(p.Name, "я") && !masculineYa[name]:
		return form, true
	case utf8.RuneCountInString(p.Surname) > 5 &&
		(strings.HasSuffix(p.Surname, "ова") || strings.HasSuffix(p.Surname, "ева")):
		return form, true
	}
	return form, false
}
