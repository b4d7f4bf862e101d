package tourns

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chgk-poll-bot/internal/models"
)

func TestRepresent_DisplayAndStored(t *testing.T) {
	reps := Represent([]models.Tournament{
		{ID: 42, Title: " Кубок & Ко ", QuestionCount: 36, Rated: true, Difficulty: 3.5, Editors: "А. Иванов"},
		{ID: 43, Title: "Простой"},
	}, "https://rating.chgk.info")
	require.Len(t, reps, 2)

	assert.Equal(t, `<a href="https://rating.chgk.info/tournament/42">Кубок &amp; Ко</a> (36, R, 3.5, А. Иванов)`, reps[0].Display)
	assert.Equal(t, models.ShownTournament{ID: 42, Name: "Кубок & Ко (36, R, 3.5, А. Иванов)"}, reps[0].Stored)
	assert.Equal(t, "Простой ()", reps[1].Stored.Name)
}

func TestStoredName_FitsUntouched(t *testing.T) {
	assert.Equal(t, "Вопрос (36, R, А. Б)", StoredName("Вопрос", "36, R, ", "А. Б"))
}

func TestStoredName_TrimsEditorsFirst(t *testing.T) {
	editors := strings.Repeat("И. Иванов, ", 9) + "П. Петров"
	got := StoredName("Кубок Вопроса", "36, R, 4, ", editors)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxStoredLen)
	assert.True(t, strings.HasPrefix(got, "Кубок Вопроса (36, R, 4, И. Иванов"))
	assert.True(t, strings.HasSuffix(got, "Иванов...)"), got)
}

func TestStoredName_TrimsTitleAtWordBoundary(t *testing.T) {
	title := strings.Repeat("Длинное название ", 8) + "турнира"
	editors := "А. Антонов, Б. Борисов, В. Васильев, Г. Григорьев"
	got := StoredName(title, "36, R, 4, ", editors)

	assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxStoredLen)
	head, _, found := strings.Cut(got, "...")
	require.True(t, found)
	assert.True(t, strings.HasPrefix(title, head))
	assert.True(t, strings.HasSuffix(head, "название") || strings.HasSuffix(head, "Длинное"), head)
	assert.True(t, strings.HasSuffix(got, "(36, R, 4, А. Антонов, Б. Борисов...)"), got)
}

func TestStoredName_AlwaysWithinLimit(t *testing.T) {
	titles := []string{
		"",
		"Коротко",
		strings.Repeat("а", 150),
		strings.Repeat("слово ", 30),
		"Чемпионат по интеллектуальным играм среди команд высшей лиги",
	}
	editorLists := []string{
		"",
		"А. Б",
		strings.Repeat("Е", 140),
		strings.Repeat("Р. Редактор, ", 12) + "Я. Последний",
	}
	for _, title := range titles {
		for _, editors := range editorLists {
			got := StoredName(title, "120, R, 4.5, ", editors)
			assert.LessOrEqual(t, utf8.RuneCountInString(got), MaxStoredLen, "title=%q editors=%q", title, editors)
			assert.True(t, utf8.ValidString(got))
		}
	}
}

func TestCutAtComma(t *testing.T) {
	list := "A. Ivanov, B. Petrov, C. Sidorov"
	assert.Equal(t, list, cutAtComma(list, 100))
	assert.Equal(t, "A. Ivanov, B. Petrov", cutAtComma(list, 20))
	assert.Equal(t, "A. Ivanov", cutAtComma(list, 19))
	assert.Equal(t, "", cutAtComma(list, 5))
}

func TestCutAtSpace(t *testing.T) {
	assert.Equal(t, "один два", cutAtSpace("один два три", 10))
	assert.Equal(t, "один два", cutAtSpace("один два три", 8))
	assert.Equal(t, "один", cutAtSpace("один два три", 7))
	assert.Equal(t, "оди", cutAtSpace("одиндватри", 3))
	assert.Equal(t, "", cutAtSpace("один", 0))
}

func TestLink(t *testing.T) {
	assert.Equal(t, `<a href="https://r.example/tournament/5">A &amp; B</a>`, Link("https://r.example", 5, "A & B"))
	assert.Equal(t, "A &amp; B", Link("https://r.example", 0, "A & B"))
}
