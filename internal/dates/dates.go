// Package dates turns the date arguments of chat commands into instants in
// the chat's timezone.
package dates

import (
	"regexp"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/ru"
)

// Result of parsing a command argument. Time is in the requested location;
// when WithTime is false only its calendar date is meaningful.
type Result struct {
	Time     time.Time
	WithTime bool
	// Parsed is false when nothing was recognised and Time is today's date.
	Parsed bool
}

// DayEndHour closes the daytime span a date without a time stands for.
const DayEndHour = 22

// Deadline is the instant a poll given this date should close: the moment
// itself, or DayEndHour of that day for a date without a time.
func (r Result) Deadline() time.Time {
	if r.WithTime {
		return r.Time
	}
	y, m, d := r.Time.Date()
	return time.Date(y, m, d, DayEndHour, 0, 0, 0, r.Time.Location())
}

var (
	compactDate = regexp.MustCompile(`^\d{8}$`)

	// Weekdays in genitive ("до пятницы") become nominative.
	genitive = strings.NewReplacer(
		"понедельника", "понедельник",
		"вторника", "вторник",
		"среды", "среда",
		"четверга", "четверг",
		"пятницы", "пятница",
		"субботы", "суббота",
		"воскресенья", "воскресенье",
	)
)

type layout struct {
	format   string
	withTime bool
	noYear   bool
	noDate   bool
}

var layouts = []layout{
	{format: "02.01.2006 15:04", withTime: true},
	{format: "2.1.2006 15:04", withTime: true},
	{format: "2006-01-02 15:04", withTime: true},
	{format: "02.01 15:04", withTime: true, noYear: true},
	{format: "2.1 15:04", withTime: true, noYear: true},
	{format: "15:04", withTime: true, noDate: true},
	{format: "02.01.2006"},
	{format: "2.1.2006"},
	{format: "2006-01-02"},
	{format: "02.01", noYear: true},
	{format: "2.1", noYear: true},
}

var parser = newParser()

func newParser() *when.Parser {
	w := when.New(nil)
	w.Add(ru.All...)
	w.Add(common.All...)
	return w
}

// Parse reads YYYYMMDD, dotted or ISO dates with an optional HH:MM, a bare
// HH:MM, or free Russian text ("завтра в 19:00", "в пятницу"). Incomplete
// inputs are resolved towards the future relative to now.
func Parse(input string, loc *time.Location, now time.Time) Result {
	if loc == nil {
		loc = time.UTC
	}
	now = now.In(loc)
	s := strings.Join(strings.Fields(strings.ToLower(input)), " ")

	if compactDate.MatchString(s) {
		if t, err := time.ParseInLocation("20060102", s, loc); err == nil {
			return Result{Time: t, Parsed: true}
		}
	}

	for _, l := range layouts {
		t, err := time.ParseInLocation(l.format, s, loc)
		if err != nil {
			continue
		}
		switch {
		case l.noDate:
			t = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
			if t.Before(now) {
				t = t.AddDate(0, 0, 1)
			}
		case l.noYear:
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, loc)
			if t.Before(startOfDay(now)) {
				t = t.AddDate(1, 0, 0)
			}
		}
		return Result{Time: t, WithTime: l.withTime, Parsed: true}
	}

	if r, err := parser.Parse(genitive.Replace(s), now); err == nil && r != nil {
		return Result{Time: r.Time.In(loc), WithTime: true, Parsed: true}
	}

	return Result{Time: startOfDay(now)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SplitDeadline splits a poll title at the first standalone "до" into the
// title and the closing-time text. ok is false when there is no deadline.
func SplitDeadline(title string) (head, deadline string, ok bool) {
	words := strings.Fields(title)
	for i, w := range words {
		if strings.ToLower(w) == "до" {
			return strings.Join(words[:i], " "), strings.Join(words[i+1:], " "), i+1 < len(words)
		}
	}
	return title, "", false
}
