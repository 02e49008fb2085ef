package auto_withdrawal

import (
	"os"
	"sync"
	"time"
)

// statusRedisKey is where the snapshot is mirrored for diagnostics
const statusRedisKey = "auto_withdrawal:status"

// maxStatusEvents bounds the in-memory event ring
const maxStatusEvents = 100

// StatusEvent is one entry in the worker's recent-event ring
type StatusEvent struct {
	Time    time.Time              `json:"time"`
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Meta    map[string]interface{} `json:"meta,omitempty"`
}

// Status is the worker's operability snapshot. Advisory only; request
// state of record lives in the withdrawal_requests table.
type Status struct {
	PID               int           `json:"pid"`
	StartedAt         time.Time     `json:"started_at"`
	LastSeenAt        time.Time     `json:"last_seen_at"`
	WithdrawalAddress string        `json:"withdrawal_address"`
	TokenContract     string        `json:"token_contract"`
	Confirmations     int64         `json:"confirmations"`
	LoopMs            int64         `json:"loop_ms"`
	IdleMs            int64         `json:"idle_ms"`
	LastError         string        `json:"last_error,omitempty"`
	Events            []StatusEvent `json:"events"`
}

// statusTracker keeps the snapshot behind a mutex so the diagnostics
// handler can read it while the loop writes it.
type statusTracker struct {
	mu     sync.Mutex
	status Status
	events []StatusEvent
	head   int
	full   bool
}

func newStatusTracker(cfg *Config) *statusTracker {
	return &statusTracker{
		status: Status{
			PID:               os.Getpid(),
			StartedAt:         time.Now().UTC(),
			LastSeenAt:        time.Now().UTC(),
			WithdrawalAddress: cfg.WithdrawalAddress,
			TokenContract:     cfg.TokenContract,
			Confirmations:     cfg.Confirmations,
			LoopMs:            cfg.LoopInterval.Milliseconds(),
			IdleMs:            cfg.IdleInterval.Milliseconds(),
		},
		events: make([]StatusEvent, maxStatusEvents),
	}
}

// heartbeat bumps last_seen_at
func (t *statusTracker) heartbeat() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status.LastSeenAt = time.Now().UTC()
}

// record appends one event to the ring, overwriting the oldest when full
func (t *statusTracker) record(level, message string, meta map[string]interface{}) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events[t.head] = StatusEvent{
		Time:    time.Now().UTC(),
		Level:   level,
		Message: message,
		Meta:    meta,
	}
	t.head = (t.head + 1) % maxStatusEvents
	if t.head == 0 {
		t.full = true
	}

	if level == "error" {
		t.status.LastError = message
	}
	t.status.LastSeenAt = time.Now().UTC()
}

// Snapshot returns a copy of the current status with events oldest-first
func (t *statusTracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.status
	if t.full {
		s.Events = make([]StatusEvent, 0, maxStatusEvents)
		for i := 0; i < maxStatusEvents; i++ {
			s.Events = append(s.Events, t.events[(t.head+i)%maxStatusEvents])
		}
	} else {
		s.Events = append([]StatusEvent(nil), t.events[:t.head]...)
	}
	return s
}
