package store

import (
	"context"
	"strconv"

	"chgk-poll-bot/internal/models"
)

// Configs holds every chat's configuration in the single "configs" document.
type Configs struct {
	s Store
}

func NewConfigs(s Store) *Configs {
	return &Configs{s: s}
}

// All returns configs keyed by the decimal chat id.
func (c *Configs) All(ctx context.Context) (map[string]models.ChatConfig, error) {
	all := map[string]models.ChatConfig{}
	if _, err := GetJSON(ctx, c.s, ConfigsKey, &all); err != nil {
		return nil, err
	}
	return all, nil
}

func (c *Configs) Get(ctx context.Context, chatID int64) (models.ChatConfig, bool, error) {
	all, err := c.All(ctx)
	if err != nil {
		return models.ChatConfig{}, false, err
	}
	cfg, ok := all[strconv.FormatInt(chatID, 10)]
	return cfg, ok, nil
}

func (c *Configs) Put(ctx context.Context, chatID int64, cfg models.ChatConfig) error {
	return UpdateJSON(ctx, c.s, ConfigsKey, func(all *map[string]models.ChatConfig) error {
		if *all == nil {
			*all = map[string]models.ChatConfig{}
		}
		(*all)[strconv.FormatInt(chatID, 10)] = cfg
		return nil
	})
}
