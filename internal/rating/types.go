package rating

import (
	"encoding/json"
	"time"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/tourns"
)

// Window selects tournaments running at a moment (WithTime) or during a whole day.
type Window struct {
	Date     time.Time
	WithTime bool
}

// Detail is the subset of a single tournament the ledger needs.
type Detail struct {
	Name    string
	Editors []models.Person
}

type apiType struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type apiTournament struct {
	ID                 *int64          `json:"id"`
	Name               string          `json:"name"`
	DateStart          string          `json:"dateStart"`
	DateEnd            string          `json:"dateEnd"`
	Type               *apiType        `json:"type"`
	QuestionQty        json.RawMessage `json:"questionQty"`
	MaiiRating         bool            `json:"maiiRating"`
	DifficultyForecast *float64        `json:"difficultyForecast"`
	Editors            []models.Person `json:"editors"`
}

type apiSyncRequest struct {
	ID             json.Number     `json:"id"`
	TournamentID   *int64          `json:"tournamentId"`
	Status         string          `json:"status"`
	Representative *models.Person  `json:"representative"`
	Narrator       *models.Person  `json:"narrator"`
	Narrators      []models.Person `json:"narrators"`
	DateStart      string          `json:"dateStart"`
	IssuedAt       string          `json:"issuedAt"`
}

// questionCount sums the per-tour counts. The directory sends an object keyed
// by tour number; a plain array is accepted too.
func questionCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	total := 0
	var byTour map[string]int
	if err := json.Unmarshal(raw, &byTour); err == nil {
		for _, n := range byTour {
			total += n
		}
		return total
	}
	var list []int
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, n := range list {
			total += n
		}
	}
	return total
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func (t apiTournament) toModel() models.Tournament {
	out := models.Tournament{
		Title:         t.Name,
		QuestionCount: questionCount(t.QuestionQty),
		Rated:         t.MaiiRating,
		Editors:       tourns.FormatEditors(t.Editors),
		StartsAt:      parseTime(t.DateStart),
	}
	if t.ID != nil {
		out.ID = *t.ID
	}
	if t.Type != nil {
		out.TypeName = t.Type.Name
	}
	if t.DifficultyForecast != nil {
		out.Difficulty = *t.DifficultyForecast
	}
	return out
}
