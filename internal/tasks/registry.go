// Package tasks stores the poll-closing tasks of every chat in a single
// "tasks" document.
package tasks

import (
	"context"
	"fmt"
	"time"

	"chgk-poll-bot/internal/models"
	"chgk-poll-bot/internal/store"
)

type document struct {
	Tasks []models.PollTask `json:"tasks"`
}

type Registry struct {
	s store.Store
}

func NewRegistry(s store.Store) *Registry {
	return &Registry{s: s}
}

func (r *Registry) update(ctx context.Context, fn func(d *document) error) error {
	return store.UpdateJSON(ctx, r.s, store.TasksKey, fn)
}

// Add registers a task, replacing any task for the same chat and message.
func (r *Registry) Add(ctx context.Context, task models.PollTask) error {
	err := r.update(ctx, func(d *document) error {
		d.Tasks = append(without(d.Tasks, task.ChatID, task.MessageID), task)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add task for chat %d: %w", task.ChatID, err)
	}
	return nil
}

// All returns every outstanding task.
func (r *Registry) All(ctx context.Context) ([]models.PollTask, error) {
	var d document
	if _, err := store.GetJSON(ctx, r.s, store.TasksKey, &d); err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return d.Tasks, nil
}

// PopDue removes and returns the tasks whose close time is not after now.
func (r *Registry) PopDue(ctx context.Context, now time.Time) ([]models.PollTask, error) {
	var due []models.PollTask
	err := r.update(ctx, func(d *document) error {
		due = nil
		rest := make([]models.PollTask, 0, len(d.Tasks))
		for _, t := range d.Tasks {
			if t.CloseAt <= now.Unix() {
				due = append(due, t)
			} else {
				rest = append(rest, t)
			}
		}
		d.Tasks = rest
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pop due tasks: %w", err)
	}
	return due, nil
}

// Remove drops the task for the chat and message, if any.
func (r *Registry) Remove(ctx context.Context, chatID int64, messageID int) error {
	err := r.update(ctx, func(d *document) error {
		d.Tasks = without(d.Tasks, chatID, messageID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("remove task %d/%d: %w", chatID, messageID, err)
	}
	return nil
}

// Pop removes and returns the chat's task for messageID. When the chat has a
// single outstanding task it is returned whatever messageID says, so callers
// may pass 0 when no message is referenced. Returns nil when nothing matches.
func (r *Registry) Pop(ctx context.Context, chatID int64, messageID int) (*models.PollTask, error) {
	return r.pop(ctx, chatID, messageID, false)
}

// PopReplied is Pop for a command replying to messageID: the chat's sole task
// is taken only when it belongs to that message (or messageID is 0) and is
// otherwise left in place within the same update.
func (r *Registry) PopReplied(ctx context.Context, chatID int64, messageID int) (*models.PollTask, error) {
	return r.pop(ctx, chatID, messageID, true)
}

func (r *Registry) pop(ctx context.Context, chatID int64, messageID int, exact bool) (*models.PollTask, error) {
	var found *models.PollTask
	err := r.update(ctx, func(d *document) error {
		found = nil
		var own []int
		for i, t := range d.Tasks {
			if t.ChatID == chatID {
				own = append(own, i)
			}
		}
		idx := -1
		switch {
		case len(own) == 1:
			idx = own[0]
			if exact && messageID != 0 && d.Tasks[idx].MessageID != messageID {
				idx = -1
			}
		default:
			for _, i := range own {
				if d.Tasks[i].MessageID == messageID {
					idx = i
					break
				}
			}
		}
		if idx < 0 {
			return nil
		}
		t := d.Tasks[idx]
		found = &t
		d.Tasks = append(d.Tasks[:idx:idx], d.Tasks[idx+1:]...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pop task %d/%d: %w", chatID, messageID, err)
	}
	return found, nil
}

func without(ts []models.PollTask, chatID int64, messageID int) []models.PollTask {
	out := make([]models.PollTask, 0, len(ts))
	for _, t := range ts {
		if t.ChatID == chatID && t.MessageID == messageID {
			continue
		}
		out = append(out, t)
	}
	return out
}
