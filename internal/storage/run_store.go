package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultHistorySize is the number of runs kept when no size is configured.
const DefaultHistorySize = 200

// ErrRunNotFound is returned when a run id is not in history.
var ErrRunNotFound = errors.New("run not found")

// ErrDuplicateRun matches a *DuplicateError with errors.Is.
var ErrDuplicateRun = errors.New("report already analyzed")

// DuplicateError is returned by Add when a run from identical report bytes
// is already held.
type DuplicateError struct {
	Existing *Run
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%v as run %s", ErrDuplicateRun, e.Existing.ID)
}

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicateRun }

// RunStore is the bounded, in-memory history of analyzed runs with optional
// write-through persistence. When history is full the oldest run is evicted
// from memory and from the persister.
type RunStore struct {
	mu            sync.RWMutex
	runs          *RingBuffer[*Run]
	byID          map[string]*Run
	byFingerprint map[string]string
	positions     map[string]int // run id -> absolute buffer position
	persister     Persister
	evicted       uint64

	generation atomic.Uint64
	startTime  time.Time

	// Subscriber notification for real-time streaming (e.g. WebSocket)
	subscriberMu     sync.Mutex
	subscribers      map[uint64]chan struct{}
	nextSubscriberID uint64
}

// RunFilter narrows List results.
type RunFilter struct {
	URL   string // case-insensitive substring of the page URL
	Limit int    // 0 = no limit
}

// RunStoreStats describes the history for status endpoints.
type RunStoreStats struct {
	Runs          int     `json:"runs"`
	Capacity      int     `json:"capacity"`
	TotalAdded    int     `json:"total_added"`
	Evicted       uint64  `json:"evicted"`
	Generation    uint64  `json:"generation"`
	Persistent    bool    `json:"persistent"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

// NewRunStore creates a history holding at most capacity runs. persister may
// be nil for memory-only history.
func NewRunStore(capacity int, persister Persister) *RunStore {
	if capacity <= 0 {
		capacity = DefaultHistorySize
	}
	return &RunStore{
		runs:          NewRingBuffer[*Run](capacity),
		byID:          make(map[string]*Run),
		byFingerprint: make(map[string]string),
		positions:     make(map[string]int),
		persister:     persister,
		subscribers:   make(map[uint64]chan struct{}),
		startTime:     time.Now(),
	}
}

// Restore loads persisted runs into memory, oldest first. Returns the number
// of runs now held. Runs beyond capacity are evicted as usual.
func (s *RunStore) Restore(ctx context.Context) (int, error) {
	if s.persister == nil {
		return 0, nil
	}

	runs, err := s.persister.LoadRuns(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load persisted runs: %w", err)
	}
	slices.SortStableFunc(runs, func(a, b *Run) int {
		return a.AnalyzedAt.Compare(b.AnalyzedAt)
	})

	s.mu.Lock()
	var dropped []string
	for _, run := range runs {
		if _, exists := s.byID[run.ID]; exists {
			continue
		}
		if old := s.insertLocked(run); old != nil {
			dropped = append(dropped, old.ID)
		}
	}
	n := s.runs.Len()
	s.mu.Unlock()

	s.deletePersisted(ctx, dropped...)
	if len(runs) > 0 {
		s.generation.Add(1)
		s.notifySubscribers()
	}
	return n, nil
}

// Add stores a run. The run is persisted before it becomes visible. A run
// whose fingerprint is already held is rejected with a *DuplicateError
// naming the stored run.
func (s *RunStore) Add(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run cannot be nil")
	}
	if run.ID == "" {
		return fmt.Errorf("run id cannot be empty")
	}

	s.mu.Lock()
	if _, exists := s.byID[run.ID]; exists {
		s.mu.Unlock()
		return fmt.Errorf("run %q already exists", run.ID)
	}
	if id, ok := s.byFingerprint[run.Fingerprint]; ok && run.Fingerprint != "" {
		existing := s.byID[id]
		s.mu.Unlock()
		return &DuplicateError{Existing: existing}
	}

	// Persisting under the lock keeps the fingerprint check and the insert
	// atomic.
	if s.persister != nil {
		if err := s.persister.SaveRun(ctx, run); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to persist run %s: %w", run.ID, err)
		}
	}
	old := s.insertLocked(run)
	s.mu.Unlock()

	if old != nil {
		s.deletePersisted(ctx, old.ID)
	}

	s.generation.Add(1)
	s.notifySubscribers()
	return nil
}

// insertLocked adds run to the buffer and indexes, returning the evicted run.
func (s *RunStore) insertLocked(run *Run) *Run {
	pos := s.runs.Next()
	old, evicted := s.runs.Add(run)

	s.byID[run.ID] = run
	s.positions[run.ID] = pos
	if run.Fingerprint != "" {
		s.byFingerprint[run.Fingerprint] = run.ID
	}

	if !evicted || old == nil {
		return nil
	}
	s.evicted++
	delete(s.byID, old.ID)
	delete(s.positions, old.ID)
	if s.byFingerprint[old.Fingerprint] == old.ID {
		delete(s.byFingerprint, old.Fingerprint)
	}
	return old
}

func (s *RunStore) deletePersisted(ctx context.Context, ids ...string) {
	if s.persister == nil {
		return
	}
	for _, id := range ids {
		if err := s.persister.DeleteRun(ctx, id); err != nil {
			log.Printf("⚠️  Failed to delete evicted run %s: %v", id, err)
		}
	}
}

// Get returns the run with the given id.
func (s *RunStore) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// Latest returns the most recently added run.
func (s *RunStore) Latest() (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs.Newest()
	if !ok {
		return nil, fmt.Errorf("%w: history is empty", ErrRunNotFound)
	}
	return run, nil
}

// Resolve returns the run with the given id, or the latest run when id is
// empty.
func (s *RunStore) Resolve(id string) (*Run, error) {
	if id == "" {
		return s.Latest()
	}
	return s.Get(id)
}

// FindByFingerprint returns the run analyzed from identical report bytes.
func (s *RunStore) FindByFingerprint(fingerprint string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byFingerprint[fingerprint]
	if !ok {
		return nil, false
	}
	return s.byID[id], true
}

// List returns runs newest first.
func (s *RunStore) List(filter RunFilter) []*Run {
	s.mu.RLock()
	all := s.runs.All()
	s.mu.RUnlock()
	needle := strings.ToLower(filter.URL)

	result := make([]*Run, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		run := all[i]
		if needle != "" && !strings.Contains(strings.ToLower(run.URL), needle) {
			continue
		}
		result = append(result, run)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result
}

// Position returns the absolute history position of a run, usable with
// RunsSince.
func (s *RunStore) Position(id string) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	return pos, ok
}

// CurrentPosition returns the position the next run will take.
func (s *RunStore) CurrentPosition() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs.Next()
}

// RunsSince returns the runs added at or after pos that are still in
// history, oldest first, and the position to pass on the next call. Both
// come from one snapshot, so incremental readers see each run once.
func (s *RunStore) RunsSince(pos int) (runs []*Run, next int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs.Since(pos), s.runs.Next()
}

// Clear removes all runs from memory and persistence.
func (s *RunStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.runs.Reset()
	s.byID = make(map[string]*Run)
	s.byFingerprint = make(map[string]string)
	s.positions = make(map[string]int)
	s.mu.Unlock()

	s.generation.Add(1)
	s.notifySubscribers()

	if s.persister != nil {
		if err := s.persister.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear persisted runs: %w", err)
		}
	}
	return nil
}

// Generation increments on every change to the history.
func (s *RunStore) Generation() uint64 {
	return s.generation.Load()
}

// Stats returns history counters.
func (s *RunStore) Stats() RunStoreStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return RunStoreStats{
		Runs:          s.runs.Len(),
		Capacity:      s.runs.Cap(),
		TotalAdded:    s.runs.Next(),
		Evicted:       s.evicted,
		Generation:    s.Generation(),
		Persistent:    s.persister != nil,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
	}
}

// Subscribe returns a notification channel and an unsubscribe function.
// The channel receives a signal (non-blocking) whenever history changes.
// The channel is buffered with capacity 1 to coalesce rapid updates.
func (s *RunStore) Subscribe() (<-chan struct{}, func()) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	id := s.nextSubscriberID
	s.nextSubscriberID++

	ch := make(chan struct{}, 1)
	s.subscribers[id] = ch

	unsubscribe := func() {
		s.subscriberMu.Lock()
		defer s.subscriberMu.Unlock()
		delete(s.subscribers, id)
	}

	return ch, unsubscribe
}

// notifySubscribers sends a non-blocking signal to all subscriber channels.
func (s *RunStore) notifySubscribers() {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()

	for _, ch := range s.subscribers {
		select {
		case ch <- struct{}{}:
		default:
			// Channel already has a pending notification; skip to coalesce.
		}
	}
}
