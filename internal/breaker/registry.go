package breaker

import (
	"sort"
	"sync"
	"time"
)

// Dependency names used by the pipeline.
const (
	DependencyTranscription = "transcription"
	DependencyAssembly      = "assembly"
	synthesisPrefix         = "synthesis-"
)

// SynthesisDependency returns the breaker name for a synthesis provider.
func SynthesisDependency(provider string) string {
	return synthesisPrefix + provider
}

// Option customizes breakers created by a Registry.
type Option func(*Registry)

// WithClock overrides the time source; used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithStateChange registers a hook fired on every state transition.
func WithStateChange(fn func(name string, from, to State)) Option {
	return func(r *Registry) { r.onChange = fn }
}

// Registry owns one breaker per dependency name.
type Registry struct {
	mu        sync.Mutex
	breakers  map[string]*Breaker
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(name string, from, to State)
}

// NewRegistry builds an empty registry with shared thresholds.
func NewRegistry(threshold int, cooldown time.Duration, opts ...Option) *Registry {
	r := &Registry{
		breakers:  make(map[string]*Breaker),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for name, creating it on first use.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.threshold, r.cooldown)
	b.now = r.now
	b.onChange = r.onChange
	r.breakers[name] = b
	return b
}

// Snapshots returns every breaker ordered by name.
func (r *Registry) Snapshots() []Snapshot {
	r.mu.Lock()
	list := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		list = append(list, b)
	}
	r.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].name < list[j].name })
	out := make([]Snapshot, 0, len(list))
	for _, b := range list {
		out = append(out, b.Snapshot())
	}
	return out
}

// Open returns the names of breakers refusing calls, ordered by name. A
// breaker whose cooldown elapsed is half-open and not listed.
func (r *Registry) Open() []string {
	var names []string
	for _, snap := range r.Snapshots() {
		if snap.State == StateOpen.String() {
			names = append(names, snap.Name)
		}
	}
	return names
}
