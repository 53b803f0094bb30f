package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/nudge/internal/ir"
)

// RecordingNotifier records every notification and returns sequential ids
// ("n-1", "n-2", ...). Failures, delays and gates are injectable so tests
// can hold a notification open while another event arrives.
type RecordingNotifier struct {
	// Delay is slept before each notification.
	Delay time.Duration

	// Entered, if set, receives the reminder id when Notify starts.
	Entered chan string

	// Gate, if set, blocks Notify until it is closed or receives.
	Gate chan struct{}

	mu       sync.Mutex
	calls    []string
	failures map[string]error
	failN    map[string]int
	next     int
}

// NewRecordingNotifier creates an empty RecordingNotifier.
func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{
		failures: make(map[string]error),
		failN:    make(map[string]int),
	}
}

// FailFor makes every notification for reminderID fail with err.
func (n *RecordingNotifier) FailFor(reminderID string, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures[reminderID] = err
}

// FailTimes makes the next count notifications for reminderID fail.
func (n *RecordingNotifier) FailTimes(reminderID string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failN[reminderID] = count
}

// Notify implements engine.Notifier.
func (n *RecordingNotifier) Notify(ctx context.Context, r ir.Reminder) (string, error) {
	if n.Entered != nil {
		n.Entered <- r.ID
	}
	if n.Gate != nil {
		select {
		case <-n.Gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if n.Delay > 0 {
		time.Sleep(n.Delay)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.calls = append(n.calls, r.ID)
	if err, ok := n.failures[r.ID]; ok {
		return "", err
	}
	if n.failN[r.ID] > 0 {
		n.failN[r.ID]--
		return "", fmt.Errorf("notify %s: transient failure", r.ID)
	}
	n.next++
	return fmt.Sprintf("n-%d", n.next), nil
}

// Calls returns reminder ids in notification order, failures included.
func (n *RecordingNotifier) Calls() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.calls...)
}

// Count returns how many times reminderID was notified.
func (n *RecordingNotifier) Count(reminderID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, id := range n.calls {
		if id == reminderID {
			c++
		}
	}
	return c
}

// RecordingPersister records persisted reminders and can fail per id.
type RecordingPersister struct {
	mu       sync.Mutex
	saved    []ir.Reminder
	failures map[string]error
}

// NewRecordingPersister creates an empty RecordingPersister.
func NewRecordingPersister() *RecordingPersister {
	return &RecordingPersister{failures: make(map[string]error)}
}

// FailFor makes every save of reminderID fail with err.
func (p *RecordingPersister) FailFor(reminderID string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[reminderID] = err
}

// Persist matches engine.PersistFunc.
func (p *RecordingPersister) Persist(_ context.Context, r ir.Reminder) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failures[r.ID]; ok {
		return err
	}
	p.saved = append(p.saved, r.Clone())
	return nil
}

// Saved returns persisted reminders in order.
func (p *RecordingPersister) Saved() []ir.Reminder {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ir.Reminder(nil), p.saved...)
}

// MemoryStore is an in-memory engine.Store.
type MemoryStore struct {
	mu        sync.Mutex
	reminders map[string]ir.Reminder
	order     []string
	firings   []ir.Firing
	ambient   ir.AmbientState
	events    map[string]ir.EventRecord
	lastSeq   int64
	saveErr   map[string]error
}

// NewMemoryStore creates a store holding reminders.
func NewMemoryStore(reminders ...ir.Reminder) *MemoryStore {
	s := &MemoryStore{
		reminders: make(map[string]ir.Reminder),
		events:    make(map[string]ir.EventRecord),
		saveErr:   make(map[string]error),
	}
	for _, r := range reminders {
		s.put(r)
	}
	return s
}

func (s *MemoryStore) put(r ir.Reminder) {
	if _, ok := s.reminders[r.ID]; !ok {
		s.order = append(s.order, r.ID)
	}
	s.reminders[r.ID] = r.Clone()
}

// FailSave makes SaveReminder fail for reminderID.
func (s *MemoryStore) FailSave(reminderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr[reminderID] = err
}

// Get returns the stored reminder.
func (s *MemoryStore) Get(id string) (ir.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	return r.Clone(), ok
}

// ListWaiting returns WAITING reminders in insertion order.
func (s *MemoryStore) ListWaiting(_ context.Context) ([]ir.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ir.Reminder
	for _, id := range s.order {
		if r := s.reminders[id]; r.Status == ir.StatusWaiting {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// SaveReminder upserts r.
func (s *MemoryStore) SaveReminder(_ context.Context, r ir.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.saveErr[r.ID]; ok {
		return err
	}
	s.put(r)
	return nil
}

// RecordFiring appends f.
func (s *MemoryStore) RecordFiring(_ context.Context, f ir.Firing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.firings = append(s.firings, f)
	return nil
}

// Firings returns recorded firings in order.
func (s *MemoryStore) Firings() []ir.Firing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ir.Firing(nil), s.firings...)
}

// AmbientState returns the saved ambient state.
func (s *MemoryStore) AmbientState(_ context.Context) (ir.AmbientState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ambient, nil
}

// SaveAmbientState replaces the ambient state.
func (s *MemoryStore) SaveAmbientState(_ context.Context, a ir.AmbientState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ambient = a
	return nil
}

// RecordEvent stores rec unless its id is already present.
func (s *MemoryStore) RecordEvent(_ context.Context, rec ir.EventRecord) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Seq > s.lastSeq {
		s.lastSeq = rec.Seq
	}
	if _, ok := s.events[rec.ID]; ok {
		return false, nil
	}
	s.events[rec.ID] = rec
	return true, nil
}

// LastEventSeq returns the highest sequence seen.
func (s *MemoryStore) LastEventSeq(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq, nil
}

// Events returns recorded events ordered by sequence.
func (s *MemoryStore) Events() []ir.EventRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ir.EventRecord, 0, len(s.events))
	for _, rec := range s.events {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}
