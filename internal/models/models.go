package models

import "time"

// Tournament types as named by the rating directory.
const (
	TypeRegular = "Обычный"
	TypeSync    = "Синхрон"
	TypeAsync   = "Асинхрон"
	TypeOnline  = "Онлайн"
)

type Tournament struct {
	ID            int64
	Title         string
	QuestionCount int
	Rated         bool
	Difficulty    float64 // 0 when the directory has no forecast
	Editors       string  // sorted "F. Surname" list joined by ", "
	TypeName      string
	StartsAt      time.Time
}

// ShownTournament is the storage representation of a listed tournament.
// ID is zero for entries saved without a tournament reference.
type ShownTournament struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type PlayedRecord struct {
	SyncRequestID string    `json:"sync_req_id"`
	TournamentID  int64     `json:"tourn_id"`
	NormName      string    `json:"norm_name"`
	Editors       string    `json:"editors"`
	Date          time.Time `json:"date"`
}

// ChatData is the per-chat document.
type ChatData struct {
	LastShown    []ShownTournament `json:"lastShown"`
	PlayedTourns []PlayedRecord    `json:"playedTourns"`
}

type PollTask struct {
	ChatID        int64   `json:"chat_id"`
	MessageID     int     `json:"message_id"`
	CloseAt       int64   `json:"end_time"` // unix seconds
	TournamentIDs []int64 `json:"tourn_ids"`
}

type ChatConfig struct {
	Timezone string   `json:"timezone"`
	Venues   []string `json:"venues"`
	ThreadID int      `json:"thread_id,omitempty"`
}

// Person is a representative or narrator attached to a sync request.
type Person struct {
	Name       string `json:"name"`
	Surname    string `json:"surname"`
	Patronymic string `json:"patronymic"`
}

// SyncRequest is a venue's application to host a synchronous sitting.
type SyncRequest struct {
	ID             string
	TournamentID   int64
	Status         string
	Representative Person
	Narrator       Person
	StartsAt       time.Time
}

// PollOption is one tallied answer of a stopped poll.
type PollOption struct {
	Text       string
	VoterCount int
}

// Location resolves the chat timezone, falling back to def when unset or unknown.
func (c ChatConfig) Location(def *time.Location) *time.Location {
	if c.Timezone == "" {
		return def
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return def
	}
	return loc
}
