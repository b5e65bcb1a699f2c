package store

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

func (s *InMemoryStore) EnqueueJob(_ context.Context, kind string, runAt time.Time, payloadJSON string, dedupeKey string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if dedupeKey != "" {
		for _, j := range s.jobs {
			if j.DedupeKey == dedupeKey && !j.Terminal() {
				return j.ID, nil
			}
		}
	}
	now := time.Now().UTC()
	j := &Job{
		ID:          uuid.NewString(),
		Kind:        kind,
		RunAt:       runAt.UTC(),
		PayloadJSON: payloadJSON,
		Status:      JobStatusQueued,
		MaxAttempts: DefaultMaxAttempts,
		DedupeKey:   dedupeKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.jobs[j.ID] = j
	return j.ID, nil
}

func (s *InMemoryStore) ClaimDueJobs(_ context.Context, now time.Time, limit int) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Job
	for _, j := range s.jobs {
		if j.Status == JobStatusQueued && !j.RunAt.After(now) {
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].RunAt.Before(due[k].RunAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	out := make([]Job, 0, len(due))
	for _, j := range due {
		locked := now
		j.Status = JobStatusRunning
		j.LockedAt = &locked
		j.UpdatedAt = now
		out = append(out, *j)
	}
	return out, nil
}

func (s *InMemoryStore) update(id string, fn func(j *Job)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	fn(j)
	j.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *InMemoryStore) CompleteJob(_ context.Context, id string) error {
	return s.update(id, func(j *Job) {
		j.Status = JobStatusDone
		j.LockedAt = nil
	})
}

func (s *InMemoryStore) FailJob(_ context.Context, id string, errMsg string, nextRunAt time.Time) error {
	return s.update(id, func(j *Job) {
		j.Attempt++
		j.LastError = errMsg
		j.LockedAt = nil
		if j.Attempt >= j.MaxAttempts {
			j.Status = JobStatusFailed
			return
		}
		j.Status = JobStatusQueued
		j.RunAt = nextRunAt.UTC()
	})
}

func (s *InMemoryStore) CancelJob(_ context.Context, id string) error {
	return s.update(id, func(j *Job) {
		if !j.Terminal() {
			j.Status = JobStatusCanceled
			j.LockedAt = nil
		}
	})
}

func (s *InMemoryStore) RequeueStaleRunningJobs(_ context.Context, staleBefore time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == JobStatusRunning && j.LockedAt != nil && j.LockedAt.Before(staleBefore) {
			j.Status = JobStatusQueued
			j.LockedAt = nil
			n++
		}
	}
	return n, nil
}

func (s *InMemoryStore) GetJob(_ context.Context, id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (s *InMemoryStore) RecordInbound(_ context.Context, channelID, messageID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memberKey{channel: channelID, id: messageID}
	if _, seen := s.inbound[key]; seen {
		return false, nil
	}
	s.inbound[key] = struct{}{}
	return true, nil
}
