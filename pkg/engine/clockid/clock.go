// Package clockid provides time and id generation as injectable ports, so
// turn-engine tests can run deterministically.
package clockid

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/agentsea/turnengine/pkg/engine/api"
)

// SystemClock is the real wall-clock implementation of api.Clock.
type SystemClock struct{}

// Now returns the current time as an api.TimeValue.
func (SystemClock) Now() api.TimeValue {
	return api.TimeValue{UnixNano: time.Now().UnixNano()}
}

// AsTime converts an api.TimeValue back to a time.Time.
func AsTime(tv api.TimeValue) time.Time {
	return time.Unix(0, tv.UnixNano).UTC()
}

// FixedClock is a deterministic clock for tests, advancing by Step on every
// call to Now.
type FixedClock struct {
	Current time.Time
	Step    time.Duration
}

// Now returns Current and advances it by Step.
func (c *FixedClock) Now() api.TimeValue {
	t := c.Current
	c.Current = c.Current.Add(c.Step)
	return api.TimeValue{UnixNano: t.UnixNano()}
}

// UUIDGenerator mints ids via github.com/google/uuid.
type UUIDGenerator struct {
	Prefix string
}

// NewID returns a new id, optionally prefixed (e.g. "turn_", "msg_").
func (g UUIDGenerator) NewID() string {
	id := uuid.NewString()
	if g.Prefix == "" {
		return id
	}
	return g.Prefix + id
}

// SequentialGenerator is a deterministic id generator for tests.
type SequentialGenerator struct {
	Prefix string
	n      int
}

// NewID returns the next id in sequence.
func (g *SequentialGenerator) NewID() string {
	g.n++
	return g.Prefix + strconv.Itoa(g.n)
}
