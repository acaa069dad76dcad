package aggregate

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/example/es-bank-account/internal/infrastructure/store"
)

// counter is a minimal aggregate used to exercise Store and Root
type counter struct {
	Root
	id    string
	total int
}

type counterState struct {
	ID    string `json:"id"`
	Total int    `json:"total"`
}

type added struct {
	N int `json:"n"`
}

var errBadRecord = errors.New("bad record")

func reviveCounter(id string) *counter { return &counter{id: id} }

func (c *counter) GetID() string { return c.id }

func (c *counter) Add(n int) error {
	if _, err := c.Record(c.id, "Counter", "Added", added{N: n}, c.Now()); err != nil {
		return err
	}
	c.total += n
	return nil
}

func (c *counter) LoadFromHistory(records []store.Event) []*ReplayError {
	return c.Replay(records, func(rec store.Event) error {
		if rec.EventType != "Added" {
			return errBadRecord
		}
		var a added
		if err := json.Unmarshal(rec.Data, &a); err != nil {
			return err
		}
		c.total += a.N
		return nil
	})
}

func (c *counter) CreateSnapshot() (json.RawMessage, error) {
	return json.Marshal(counterState{ID: c.id, Total: c.total})
}

func (c *counter) RestoreSnapshot(state json.RawMessage, version int) error {
	var s counterState
	if err := json.Unmarshal(state, &s); err != nil {
		return err
	}
	if s.ID != c.id {
		return errBadRecord
	}
	c.total = s.Total
	c.SetVersion(version)
	return nil
}

var _ Aggregate = (*counter)(nil)

// steppingClock advances by step on every call
type steppingClock struct {
	t    time.Time
	step time.Duration
}

func (c *steppingClock) Now() time.Time {
	now := c.t
	c.t = c.t.Add(c.step)
	return now
}
