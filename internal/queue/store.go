package queue

import (
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store is the in-memory job registry. Mutations are serialized per job;
// reads of one job never block writers of another.
type Store struct {
	mu    sync.RWMutex
	jobs  map[string]*entry
	order []string
	now   func() time.Time
	newID func() string
}

type entry struct {
	mu  sync.Mutex
	job Job
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides job id generation.
func WithIDGenerator(gen func() string) StoreOption {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewStore constructs an empty job registry.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		jobs:  make(map[string]*entry),
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOptions carries optional per-job settings.
type CreateOptions struct {
	TargetLanguage string
}

// Create registers a new QUEUED job with zero progress and cost.
func (s *Store) Create(inputVideo string, opts CreateOptions) (Job, error) {
	inputVideo = strings.TrimSpace(inputVideo)
	if inputVideo == "" {
		return Job{}, errors.New("input video is required")
	}
	now := s.now()
	job := Job{
		ID:             s.newID(),
		Status:         StatusQueued,
		InputVideo:     inputVideo,
		TargetLanguage: strings.TrimSpace(opts.TargetLanguage),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return Job{}, errors.New("duplicate job id " + job.ID)
	}
	s.jobs[job.ID] = &entry{job: job}
	s.order = append(s.order, job.ID)
	return job.Clone(), nil
}

func (s *Store) lookup(id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.jobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return e, nil
}

// Get returns a snapshot of the job or a NotFoundError.
func (s *Store) Get(id string) (Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job.Clone(), nil
}

// Mutate applies fn to a copy of the job and commits it when fn returns nil.
// An error from fn leaves the stored job untouched and is returned as is.
func (s *Store) Mutate(id string, fn func(*Job) error) (Job, error) {
	e, err := s.lookup(id)
	if err != nil {
		return Job{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job.Clone()
	if err := fn(&next); err != nil {
		return e.job.Clone(), err
	}
	next.ID = e.job.ID
	next.CreatedAt = e.job.CreatedAt
	next.UpdatedAt = s.now()
	e.job = next
	return next.Clone(), nil
}

// List returns snapshots in submission order, optionally filtered by status.
func (s *Store) List(statuses ...Status) []Job {
	filter := make(map[Status]struct{}, len(statuses))
	for _, status := range statuses {
		filter[status] = struct{}{}
	}

	s.mu.RLock()
	entries := make([]*entry, 0, len(s.order))
	for _, id := range s.order {
		entries = append(entries, s.jobs[id])
	}
	s.mu.RUnlock()

	out := make([]Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		job := e.job.Clone()
		e.mu.Unlock()
		if len(filter) > 0 {
			if _, ok := filter[job.Status]; !ok {
				continue
			}
		}
		out = append(out, job)
	}
	return out
}

// Counts tallies jobs per status; every known status is present.
func (s *Store) Counts() StatusCounts {
	counts := make(StatusCounts, len(allStatuses))
	for _, status := range allStatuses {
		counts[status] = 0
	}
	for _, job := range s.List() {
		counts[job.Status]++
	}
	return counts
}

// Len returns the number of jobs ever submitted and still held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Delete removes a job, reporting whether it existed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	s.order = slices.DeleteFunc(s.order, func(existing string) bool { return existing == id })
	return true
}

// Reset drops every job.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = make(map[string]*entry)
	s.order = nil
}
