package api

import (
	"log/slog"
	"sync"
	"time"

	"runwatch/metrics"
	"runwatch/monitor"
)

// view is one run view. The facade is not safe for concurrent use, so every
// access goes through mu.
type view struct {
	mu         sync.Mutex
	facade     *monitor.Facade
	lastAccess time.Time
}

// Views holds the live run views keyed by run id
type Views struct {
	mu    sync.RWMutex
	views map[string]*view
	now   func() time.Time
}

// NewViews creates an empty registry
func NewViews() *Views {
	return &Views{
		views: make(map[string]*view),
		now:   time.Now,
	}
}

// Put registers a facade. An open view of the same run is kept and Put
// reports false.
func (v *Views) Put(f *monitor.Facade) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.views[f.RunID()]; ok {
		return false
	}
	v.views[f.RunID()] = &view{facade: f, lastAccess: v.now()}
	metrics.RunViews.Set(float64(len(v.views)))
	return true
}

// With runs fn on the view of runID while holding its lock. It reports false
// when no view exists.
func (v *Views) With(runID string, fn func(f *monitor.Facade)) bool {
	v.mu.RLock()
	vw, ok := v.views[runID]
	v.mu.RUnlock()
	if !ok {
		return false
	}

	vw.mu.Lock()
	defer vw.mu.Unlock()
	vw.lastAccess = v.now()
	fn(vw.facade)
	return true
}

// Delete drops the view of runID
func (v *Views) Delete(runID string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.views[runID]; !ok {
		return false
	}
	delete(v.views, runID)
	metrics.RunViews.Set(float64(len(v.views)))
	return true
}

// Len returns the number of live views
func (v *Views) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.views)
}

// Evict drops views idle for longer than ttl and returns their run ids
func (v *Views) Evict(ttl time.Duration) []string {
	cutoff := v.now().Add(-ttl)

	v.mu.Lock()
	defer v.mu.Unlock()
	var evicted []string
	for id, vw := range v.views {
		vw.mu.Lock()
		idle := vw.lastAccess.Before(cutoff)
		vw.mu.Unlock()
		if idle {
			delete(v.views, id)
			evicted = append(evicted, id)
		}
	}
	metrics.RunViews.Set(float64(len(v.views)))
	return evicted
}

// Janitor periodically evicts idle run views
type Janitor struct {
	views    *Views
	ttl      time.Duration
	interval time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewJanitor creates a janitor; a zero ttl or interval disables eviction
func NewJanitor(views *Views, ttl, interval time.Duration) *Janitor {
	return &Janitor{
		views:    views,
		ttl:      ttl,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start runs the eviction loop until Stop is called
func (j *Janitor) Start() {
	if j.ttl <= 0 || j.interval <= 0 {
		slog.Info("view janitor disabled")
		return
	}
	slog.Info("view janitor started", "ttl", j.ttl, "interval", j.interval)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			j.tick()
		case <-j.stopChan:
			slog.Info("view janitor stopped")
			return
		}
	}
}

// Stop ends the eviction loop
func (j *Janitor) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
}

func (j *Janitor) tick() {
	for _, id := range j.views.Evict(j.ttl) {
		slog.Info("evicted idle run view", "run_id", id)
	}
}
