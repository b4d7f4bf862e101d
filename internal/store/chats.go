package store

import (
	"context"
	"strconv"

	"chgk-poll-bot/internal/models"
)

// Chats reads and writes per-chat documents.
type Chats struct {
	s Store
}

func NewChats(s Store) *Chats {
	return &Chats{s: s}
}

func chatKey(chatID int64) string {
	return strconv.FormatInt(chatID, 10)
}

func (c *Chats) Get(ctx context.Context, chatID int64) (models.ChatData, error) {
	var data models.ChatData
	_, err := GetJSON(ctx, c.s, chatKey(chatID), &data)
	return data, err
}

func (c *Chats) SaveLastShown(ctx context.Context, chatID int64, shown []models.ShownTournament) error {
	return UpdateJSON(ctx, c.s, chatKey(chatID), func(d *models.ChatData) error {
		d.LastShown = shown
		return nil
	})
}

// UpdatePlayed replaces the chat's played ledger with whatever fn returns,
// given the ledger as currently stored.
func (c *Chats) UpdatePlayed(ctx context.Context, chatID int64, fn func(cur []models.PlayedRecord) []models.PlayedRecord) ([]models.PlayedRecord, error) {
	var out []models.PlayedRecord
	err := UpdateJSON(ctx, c.s, chatKey(chatID), func(d *models.ChatData) error {
		d.PlayedTourns = fn(d.PlayedTourns)
		out = d.PlayedTourns
		return nil
	})
	return out, err
}
