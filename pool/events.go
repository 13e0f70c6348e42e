package pool

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"hyc/hyc-node/logging"
)

type EventType string

const (
	EventWithdrawalCommitted EventType = "withdrawal_committed"
	EventDeposit             EventType = "deposit"
	EventWhitelistAdded      EventType = "whitelist_added"
	EventWhitelistRestored   EventType = "whitelist_restored"
	EventWhitelistDenied     EventType = "whitelist_denied"
	EventOwnerChanged        EventType = "owner_changed"
	EventKillSwitch          EventType = "kill_switch"
)

type Event struct {
	Type           EventType `json:"type"`
	NullifierHash  string    `json:"nullifier_hash,omitempty"`
	NullifierCount uint64    `json:"nullifier_count,omitempty"`
	Commitment     string    `json:"commitment,omitempty"`
	LeafIndex      *uint64   `json:"leaf_index,omitempty"`
	Root           string    `json:"root,omitempty"`
	Account        string    `json:"account,omitempty"`
	Enabled        *bool     `json:"enabled,omitempty"`
	Time           time.Time `json:"time"`
}

type EventSink interface {
	Emit(ctx context.Context, e Event) error
}

type LogSink struct {
	Logger zerolog.Logger
}

func NewLogSink() *LogSink {
	return &LogSink{Logger: logging.Component("events")}
}

func (s *LogSink) Emit(_ context.Context, e Event) error {
	ev := s.Logger.Info().Str("event", string(e.Type))
	if e.NullifierHash != "" {
		ev = ev.Str("nullifier_hash", e.NullifierHash).Uint64("nullifier_count", e.NullifierCount)
	}
	if e.Commitment != "" {
		ev = ev.Str("commitment", e.Commitment)
	}
	if e.LeafIndex != nil {
		ev = ev.Uint64("leaf_index", *e.LeafIndex)
	}
	if e.Root != "" {
		ev = ev.Str("root", e.Root)
	}
	if e.Account != "" {
		ev = ev.Str("account", e.Account)
	}
	if e.Enabled != nil {
		ev = ev.Bool("enabled", *e.Enabled)
	}
	ev.Msg("pool event")
	return nil
}

// RedisSink appends events to a capped Redis stream for indexers.
type RedisSink struct {
	Client *redis.Client
	Stream string
	MaxLen int64
}

func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.Client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.Stream,
		MaxLen: s.MaxLen,
		Approx: s.MaxLen > 0,
		Values: map[string]interface{}{"type": string(e.Type), "data": data},
	}).Err()
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// MultiSink emits to every sink and joins their errors.
type MultiSink []EventSink

func (m MultiSink) Emit(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
