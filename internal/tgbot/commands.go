package tgbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"chgk-poll-bot/internal/dates"
	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/polls"
	"chgk-poll-bot/internal/rating"
	"chgk-poll-bot/internal/tourns"
	"chgk-poll-bot/internal/util"
)

const helpText = "/setupchat <timezone> [venue_id1,venue_id2...] - настройка часового пояса чата и мониторинга заявок на списке площадок\n" +
	"/tourns <YYYYMMDD>|<дата и время турнира> - список турниров на дату (и время)\n" +
	"/rtourns <YYYYMMDD>|<дата и время турнира> - список рейтингуемых турниров на дату (и время)\n" +
	"/poll <tourn_1,tourn_2,...> [title] [до <время окончания>] - создание голосовалки из 2-8 перечисленных номеров турниров\n" +
	"/print <номер> - показать турнир из последнего списка\n" +
	"/stop - как reply на сообщение с опросом, завершает его и подводит итоги\n" +
	"/cancel - как reply на сообщение с опросом, завершает его без подведения итогов\n" +
	"/feedback - опрос впечатлений о сыгранном пакете\n" +
	"/help - эта подсказка"

type incoming struct {
	ChatID          int64
	Text            string
	ReplyTo         int
	IsForum         bool
	MessageThreadID int
}

// chatContext is a message together with the chat's stored configuration.
type chatContext struct {
	incoming
	Args       []string
	Config     models.ChatConfig
	Configured bool
	ThreadID   int
	Location   *time.Location
}

func (a *App) handleMessage(ctx context.Context, in incoming) error {
	words := util.SplitCommand(in.Text)
	if len(words) == 0 || !strings.HasPrefix(words[0], "/") {
		return nil
	}
	cmd := strings.ToLower(words[0])

	cfg, configured, err := a.configs.Get(ctx, in.ChatID)
	if err != nil {
		return err
	}
	c := chatContext{
		incoming:   in,
		Args:       words[1:],
		Config:     cfg,
		Configured: configured,
		Location:   cfg.Location(a.defaultLoc),
	}
	if in.IsForum {
		c.ThreadID = in.MessageThreadID
		if configured {
			c.ThreadID = cfg.ThreadID
		}
	}

	switch cmd {
	case "/tourns":
		err = a.listTournaments(ctx, c, false)
	case "/rtourns":
		err = a.listTournaments(ctx, c, true)
	case "/print":
		err = a.printTournament(ctx, c)
	case "/poll":
		err = a.createPoll(ctx, c)
	case "/stop":
		err = a.polls.Stop(ctx, c.ChatID, c.ThreadID, c.ReplyTo)
	case "/cancel":
		err = a.polls.Cancel(ctx, c.ChatID, c.ThreadID, c.ReplyTo)
	case "/feedback":
		err = a.polls.Feedback(ctx, c.ChatID, c.ThreadID)
	case "/setupchat":
		err = a.setupChat(ctx, c)
	case "/help":
		err = a.tg.SendText(ctx, c.ChatID, c.ThreadID, helpText)
	default:
		return nil
	}
	a.metrics.CommandHandled(cmd)
	if isNoPoll(err) {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Ответьте командой на сообщение с опросом.")
	}
	return err
}

func (a *App) listTournaments(ctx context.Context, c chatContext, onlyRated bool) error {
	if len(c.Args) == 0 {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Укажите дату: /tourns <YYYYMMDD>|<дата и время турнира>")
	}
	when := dates.Parse(strings.Join(c.Args, " "), c.Location, a.now())
	reps, err := a.shortlist(ctx, c.ChatID, c.Config, c.Location, when, onlyRated)
	if err != nil {
		return err
	}

	stored := make([]models.ShownTournament, 0, len(reps))
	lines := make([]string, 0, len(reps))
	for i, r := range reps {
		stored = append(stored, r.Stored)
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, r.Display))
	}
	if err := a.chats.SaveLastShown(ctx, c.ChatID, stored); err != nil {
		return err
	}

	if len(lines) == 0 {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Подходящих турниров не найдено.")
	}
	return a.tg.SendChunked(ctx, c.ChatID, c.ThreadID, lines)
}

// Shortlist parses input as a date in the chat's timezone and returns the
// tournaments the chat would be offered, without storing or sending anything.
func (a *App) Shortlist(ctx context.Context, chatID int64, input string, onlyRated bool) ([]tourns.Representation, error) {
	cfg, _, err := a.configs.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	loc := cfg.Location(a.defaultLoc)
	return a.shortlist(ctx, chatID, cfg, loc, dates.Parse(input, loc, a.now()), onlyRated)
}

func (a *App) shortlist(ctx context.Context, chatID int64, cfg models.ChatConfig, loc *time.Location, when dates.Result, onlyRated bool) ([]tourns.Representation, error) {
	log := a.log.WithFields(logrus.Fields{
		"chat_id":   chatID,
		"date":      when.Time,
		"with_time": when.WithTime,
	})

	played, err := a.ledger.RefreshVenues(ctx, chatID, cfg.Venues, loc)
	if err != nil {
		return nil, err
	}
	candidates, err := a.tourns.ListTournaments(ctx, rating.Window{Date: when.Time, WithTime: when.WithTime})
	if err != nil {
		log.WithError(err).Warn("tournament listing incomplete")
	}

	survivors := tourns.Filter(candidates, played, tourns.Options{OnlyRated: onlyRated, Location: loc})
	tourns.Rank(survivors)
	log.WithFields(logrus.Fields{
		"candidates": len(candidates),
		"shown":      len(survivors),
	}).Info("tournaments listed")
	return tourns.Represent(survivors, a.cfg.RatingSiteURL), nil
}

func (a *App) lastShown(ctx context.Context, chatID int64) ([]models.ShownTournament, error) {
	data, err := a.chats.Get(ctx, chatID)
	if err != nil {
		return nil, err
	}
	return data.LastShown, nil
}

func (a *App) printTournament(ctx context.Context, c chatContext) error {
	if len(c.Args) == 0 {
		return nil
	}
	shown, err := a.lastShown(ctx, c.ChatID)
	if err != nil {
		return err
	}
	idx := util.ParseIndexList(c.Args[0], len(shown))
	if len(idx) == 0 {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Нет турнира с таким номером в последнем списке.")
	}
	t := shown[idx[0]]
	return a.tg.SendHTML(ctx, c.ChatID, c.ThreadID, tourns.Link(a.cfg.RatingSiteURL, t.ID, t.Name))
}

func (a *App) createPoll(ctx context.Context, c chatContext) error {
	if len(c.Args) == 0 {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Укажите номера турниров: /poll 1,3,5 [название] [до <время>]")
	}
	shown, err := a.lastShown(ctx, c.ChatID)
	if err != nil {
		return err
	}
	idx := util.ParseIndexList(c.Args[0], len(shown))
	if len(idx) == 0 {
		return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Нет турниров с такими номерами в последнем списке.")
	}
	chosen := make([]models.ShownTournament, 0, len(idx))
	for _, i := range idx {
		chosen = append(chosen, shown[i])
	}

	req := polls.CreateRequest{
		ChatID:   c.ChatID,
		ThreadID: c.ThreadID,
		Chosen:   chosen,
	}
	if len(c.Args) > 1 {
		req.Question = strings.Join(c.Args[1:], " ")
		if _, deadline, ok := dates.SplitDeadline(req.Question); ok {
			if when := dates.Parse(deadline, c.Location, a.now()); when.Parsed {
				req.CloseAt = when.Deadline()
			}
		}
	}
	_, err = a.polls.Create(ctx, req)
	return err
}

func (a *App) setupChat(ctx context.Context, c chatContext) error {
	cfg := models.ChatConfig{Timezone: a.cfg.DefaultTimezone, Venues: []string{}}
	if len(c.Args) > 0 {
		if _, err := time.LoadLocation(c.Args[0]); err != nil {
			return a.tg.SendText(ctx, c.ChatID, c.ThreadID, "Неизвестный часовой пояс: "+c.Args[0])
		}
		cfg.Timezone = c.Args[0]
	}
	if len(c.Args) > 1 {
		for _, v := range strings.Split(c.Args[1], ",") {
			if v = strings.TrimSpace(v); v != "" {
				cfg.Venues = append(cfg.Venues, v)
			}
		}
	}
	if c.IsForum {
		cfg.ThreadID = c.MessageThreadID
	}
	if err := a.configs.Put(ctx, c.ChatID, cfg); err != nil {
		return err
	}
	a.log.WithFields(logrus.Fields{
		"chat_id":  c.ChatID,
		"timezone": cfg.Timezone,
		"venues":   cfg.Venues,
	}).Info("chat configured")

	text := "Часовой пояс: " + cfg.Timezone
	if len(cfg.Venues) > 0 {
		text += "\nПлощадки: " + strings.Join(cfg.Venues, ", ")
	}
	return a.tg.SendText(ctx, c.ChatID, cfg.ThreadID, text)
}
