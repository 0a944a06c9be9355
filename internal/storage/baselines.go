package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// BaselineManager manages named baselines: bookmarks to a run that later
// runs are compared against. Baselines are lightweight and live in memory.
type BaselineManager struct {
	sync.RWMutex
	baselines map[string]*Baseline
}

// Baseline bookmarks one run and its history position.
type Baseline struct {
	Name      string    `json:"name"`
	RunID     string    `json:"run_id"`
	Position  int       `json:"position"` // history position of the run
	CreatedAt time.Time `json:"created_at"`
}

// NewBaselineManager creates a new baseline manager.
func NewBaselineManager() *BaselineManager {
	return &BaselineManager{
		baselines: make(map[string]*Baseline),
	}
}

// Set points the named baseline at a run, replacing any previous target.
func (bm *BaselineManager) Set(name, runID string, position int) error {
	if name == "" {
		return fmt.Errorf("baseline name cannot be empty")
	}
	if runID == "" {
		return fmt.Errorf("baseline %q needs a run id", name)
	}

	bm.Lock()
	defer bm.Unlock()

	bm.baselines[name] = &Baseline{
		Name:      name,
		RunID:     runID,
		Position:  position,
		CreatedAt: time.Now(),
	}
	return nil
}

// Get retrieves a baseline by name.
// Returns an error if the baseline does not exist.
func (bm *BaselineManager) Get(name string) (*Baseline, error) {
	bm.RLock()
	defer bm.RUnlock()

	b, exists := bm.baselines[name]
	if !exists {
		return nil, fmt.Errorf("baseline %q not found", name)
	}

	// Return a copy to avoid concurrent modification
	cp := *b
	return &cp, nil
}

// List returns all baselines sorted by name.
func (bm *BaselineManager) List() []Baseline {
	bm.RLock()
	defer bm.RUnlock()

	list := make([]Baseline, 0, len(bm.baselines))
	for _, b := range bm.baselines {
		list = append(list, *b)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	return list
}

// Delete removes a baseline by name.
// Returns an error if the baseline does not exist.
func (bm *BaselineManager) Delete(name string) error {
	bm.Lock()
	defer bm.Unlock()

	if _, exists := bm.baselines[name]; !exists {
		return fmt.Errorf("baseline %q not found", name)
	}

	delete(bm.baselines, name)
	return nil
}

// Clear removes all baselines.
func (bm *BaselineManager) Clear() {
	bm.Lock()
	defer bm.Unlock()

	bm.baselines = make(map[string]*Baseline)
}

// Count returns the number of baselines.
func (bm *BaselineManager) Count() int {
	bm.RLock()
	defer bm.RUnlock()

	return len(bm.baselines)
}
