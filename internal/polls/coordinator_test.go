package polls

import (
	"context"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/store"
	"chgk-poll-bot/internal/tasks"
)

const site = "https://rating.chgk.info"

func newCoordinator(t *testing.T, msg Messenger) (*Coordinator, *tasks.Registry) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	reg := tasks.NewRegistry(store.NewMemory())
	c := NewCoordinator(msg, reg, site, logger, nil)
	c.rnd = rand.New(rand.NewPCG(1, 2))
	return c, reg
}

func options(counts map[string]int, order ...string) []models.PollOption {
	out := make([]models.PollOption, 0, len(order)+len(FixedOptions))
	for _, name := range order {
		out = append(out, models.PollOption{Text: name, VoterCount: counts[name]})
	}
	for _, f := range FixedOptions {
		out = append(out, models.PollOption{Text: f, VoterCount: 100})
	}
	return out
}

func TestTally_SingleWinner(t *testing.T) {
	c, _ := newCoordinator(t, &fakeMessenger{})
	res := c.Tally(options(map[string]int{"A": 1, "B": 4, "C": 2}, "A", "B", "C"), []int64{1, 2, 3})

	require.Len(t, res.Winners, 1)
	assert.Equal(t, Winner{Text: "B", TournamentID: 2}, res.Winners[0])
	assert.Nil(t, res.RandomPick)
	assert.Equal(t, `Победитель: <a href="https://rating.chgk.info/tournament/2">B</a>`, res.Announcement(site))
}

func TestTally_TieAmongTop(t *testing.T) {
	c, _ := newCoordinator(t, &fakeMessenger{})
	opts := options(map[string]int{"A": 3, "B": 5, "C": 5}, "A", "B", "C")

	for i := 0; i < 20; i++ {
		res := c.Tally(opts, []int64{10, 20, 30})
		assert.Equal(t, []Winner{{Text: "B", TournamentID: 20}, {Text: "C", TournamentID: 30}}, res.Winners)
		require.NotNil(t, res.RandomPick)
		assert.Contains(t, res.Winners, *res.RandomPick)
	}
}

func TestTally_FixedOptionsNeverWin(t *testing.T) {
	c, _ := newCoordinator(t, &fakeMessenger{})
	res := c.Tally(options(map[string]int{"A": 0}, "A"), nil)
	assert.Equal(t, []Winner{{Text: "A"}}, res.Winners)
	assert.Equal(t, "Победитель: A", res.Announcement(site))

	assert.Empty(t, c.Tally(options(nil), nil).Winners)
	assert.Empty(t, c.Tally(nil, nil).Winners)
}

func TestAnnouncement_Tie(t *testing.T) {
	res := Result{
		Winners:    []Winner{{Text: "A & B"}, {Text: "C", TournamentID: 7}},
		RandomPick: &Winner{Text: "C", TournamentID: 7},
	}
	assert.Equal(t,
		"Победители: A &amp; B, C.\nСлучайный выбор: <a href=\"https://rating.chgk.info/tournament/7\">C</a>",
		res.Announcement(site))
	assert.Empty(t, Result{}.Announcement(site))
}

func TestCreate_WithCloseTimeRegistersTask(t *testing.T) {
	msg := &fakeMessenger{}
	c, reg := newCoordinator(t, msg)
	closeAt := time.Date(2024, 3, 1, 18, 0, 0, 0, time.UTC)

	id, err := c.Create(context.Background(), CreateRequest{
		ChatID:   5,
		ThreadID: 9,
		Question: "Пятница",
		Chosen: []models.ShownTournament{
			{ID: 1, Name: "Первый"},
			{ID: 2, Name: "Второй"},
			{ID: 1, Name: "Первый"},
			{Name: "Без ссылки"},
		},
		CloseAt: closeAt,
	})
	require.NoError(t, err)

	require.Len(t, msg.polls, 1)
	p := msg.polls[0]
	assert.Equal(t, 9, p.ThreadID)
	assert.Equal(t, "Пятница", p.Poll.Question)
	assert.Equal(t, []string{"Первый", "Второй", "Без ссылки", "буду играть любой", "не буду играть"}, p.Poll.Options)
	assert.False(t, p.Poll.Anonymous)
	assert.True(t, p.Poll.MultipleAnswers)
	assert.Equal(t, []int{id}, msg.pinned)

	all, err := reg.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, models.PollTask{
		ChatID:        5,
		MessageID:     id,
		CloseAt:       closeAt.Unix(),
		TournamentIDs: []int64{1, 2, 0},
	}, all[0])
}

func TestCreate_WithoutCloseTimeAndCap(t *testing.T) {
	msg := &fakeMessenger{}
	c, reg := newCoordinator(t, msg)

	chosen := make([]models.ShownTournament, 0, 10)
	for i := 1; i <= 10; i++ {
		chosen = append(chosen, models.ShownTournament{ID: int64(i), Name: string(rune('A' + i))})
	}
	_, err := c.Create(context.Background(), CreateRequest{ChatID: 5, Chosen: chosen})
	require.NoError(t, err)

	require.Len(t, msg.polls, 1)
	assert.Equal(t, DefaultQuestion, msg.polls[0].Poll.Question)
	assert.Len(t, msg.polls[0].Poll.Options, MaxChoices+len(FixedOptions))

	all, err := reg.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_SendFailure(t *testing.T) {
	msg := &fakeMessenger{
		SendPollFunc: func(context.Context, int64, int, Poll) (int, error) {
			return 0, errors.New("flood")
		},
	}
	c, reg := newCoordinator(t, msg)

	_, err := c.Create(context.Background(), CreateRequest{ChatID: 5, CloseAt: time.Now()})
	require.Error(t, err)
	assert.Empty(t, msg.pinned)
	all, _ := reg.All(context.Background())
	assert.Empty(t, all)
}

func TestCloseDue_AnnouncesAndRemoves(t *testing.T) {
	msg := &fakeMessenger{
		StopPollFunc: func(context.Context, int64, int, int) ([]models.PollOption, error) {
			return options(map[string]int{"A": 2, "B": 1}, "A", "B"), nil
		},
	}
	c, reg := newCoordinator(t, msg)
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: now.Unix() - 1, TournamentIDs: []int64{11, 12}}))
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 6, MessageID: 60, CloseAt: now.Unix() + 3600}))

	n, err := c.CloseDue(ctx, now, func(chatID int64) int {
		if chatID == 5 {
			return 77
		}
		return 0
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, []int{50}, msg.unpinned)
	assert.Equal(t, []int{50}, msg.stopped)
	require.Len(t, msg.texts, 1)
	assert.Equal(t, 77, msg.texts[0].ThreadID)
	assert.Equal(t, `Победитель: <a href="https://rating.chgk.info/tournament/11">A</a>`, msg.texts[0].Text)

	rest, err := reg.All(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 60, rest[0].MessageID)
}

func TestCloseDue_StopFailureSkipsTally(t *testing.T) {
	msg := &fakeMessenger{
		StopPollFunc: func(context.Context, int64, int, int) ([]models.PollOption, error) {
			return nil, errors.New("message to stop not found")
		},
	}
	c, reg := newCoordinator(t, msg)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: 1}))

	n, err := c.CloseDue(ctx, time.Now(), func(int64) int { return 0 })
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, msg.texts)

	rest, _ := reg.All(ctx)
	assert.Empty(t, rest, "a failed stop is not retried")
}

func TestStop_SoleTaskWithoutReply(t *testing.T) {
	msg := &fakeMessenger{
		StopPollFunc: func(context.Context, int64, int, int) ([]models.PollOption, error) {
			return options(map[string]int{"A": 1}, "A"), nil
		},
	}
	c, reg := newCoordinator(t, msg)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: 1 << 40, TournamentIDs: []int64{3}}))

	require.NoError(t, c.Stop(ctx, 5, 0, 0))
	assert.Equal(t, []int{50}, msg.stopped)
	require.Len(t, msg.texts, 1)
	assert.Contains(t, msg.texts[0].Text, "/tournament/3")
}

func TestStop_UnscheduledPollTalliesWithoutLinks(t *testing.T) {
	msg := &fakeMessenger{
		StopPollFunc: func(context.Context, int64, int, int) ([]models.PollOption, error) {
			return options(map[string]int{"A": 1}, "A"), nil
		},
	}
	c, _ := newCoordinator(t, msg)

	require.NoError(t, c.Stop(context.Background(), 5, 0, 42))
	assert.Equal(t, []int{42}, msg.stopped)
	require.Len(t, msg.texts, 1)
	assert.Equal(t, "Победитель: A", msg.texts[0].Text)
}

func TestStop_ReplyToOtherPollKeepsSoleTask(t *testing.T) {
	msg := &fakeMessenger{}
	c, reg := newCoordinator(t, msg)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: 1 << 40}))

	require.NoError(t, c.Cancel(ctx, 5, 0, 42))
	assert.Equal(t, []int{42}, msg.stopped)

	rest, err := reg.All(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 50, rest[0].MessageID)
}

// flakyStore fails every Update once its budget is spent.
type flakyStore struct {
	*store.Memory
	updates int
}

func (f *flakyStore) Update(ctx context.Context, key string, fn store.UpdateFunc) error {
	if f.updates == 0 {
		return errors.New("store unavailable")
	}
	f.updates--
	return f.Memory.Update(ctx, key, fn)
}

func TestStop_ReplyToOtherPollTouchesRegistryOnce(t *testing.T) {
	logger, _ := test.NewNullLogger()
	st := &flakyStore{Memory: store.NewMemory(), updates: 1}
	reg := tasks.NewRegistry(st)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: 1 << 40}))

	st.updates = 1
	msg := &fakeMessenger{}
	c := NewCoordinator(msg, reg, site, logger, nil)

	require.NoError(t, c.Cancel(ctx, 5, 0, 42))
	assert.Equal(t, []int{42}, msg.stopped)

	rest, err := reg.All(ctx)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, 50, rest[0].MessageID)
}

func TestCancel_NoAnnouncement(t *testing.T) {
	msg := &fakeMessenger{
		StopPollFunc: func(context.Context, int64, int, int) ([]models.PollOption, error) {
			return options(map[string]int{"A": 1}, "A"), nil
		},
	}
	c, reg := newCoordinator(t, msg)
	ctx := context.Background()
	require.NoError(t, reg.Add(ctx, models.PollTask{ChatID: 5, MessageID: 50, CloseAt: 1 << 40}))

	require.NoError(t, c.Cancel(ctx, 5, 0, 50))
	assert.Equal(t, []int{50}, msg.unpinned)
	assert.Empty(t, msg.texts)
	rest, _ := reg.All(ctx)
	assert.Empty(t, rest)
}

func TestStop_NothingToClose(t *testing.T) {
	c, _ := newCoordinator(t, &fakeMessenger{})
	assert.ErrorIs(t, c.Stop(context.Background(), 5, 0, 0), ErrNoPoll)
}

func TestFeedback(t *testing.T) {
	msg := &fakeMessenger{}
	c, _ := newCoordinator(t, msg)

	require.NoError(t, c.Feedback(context.Background(), 5, 3))
	require.Len(t, msg.polls, 1)
	p := msg.polls[0].Poll
	assert.True(t, p.Anonymous)
	assert.True(t, p.MultipleAnswers)
	assert.Len(t, p.Options, 10)
	assert.Equal(t, "Сыгранный пакет показался вам...", p.Question)
}
