// Package reports keeps the most recent trip reports in memory.
package reports

import (
	"sync"
	"time"

	"tripscore/internal/model"
)

// Store is a bounded buffer of reports; once full, the oldest report is
// dropped for each new one.
type Store struct {
	mu    sync.RWMutex
	buf   []model.Report
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{limit: limit}
}

func (s *Store) Add(rep model.Report) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.buf) < s.limit {
		s.buf = append(s.buf, rep)
		return
	}
	copy(s.buf, s.buf[1:])
	s.buf[len(s.buf)-1] = rep
}

// Get finds the newest report for a trip id or report id.
func (s *Store) Get(id string) (model.Report, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].TripID == id || s.buf[i].ID == id {
			return s.buf[i], true
		}
	}
	return model.Report{}, false
}

// List returns up to limit reports, newest last.
func (s *Store) List(limit int) []model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.buf) {
		limit = len(s.buf)
	}
	out := make([]model.Report, 0, limit)
	out = append(out, s.buf[len(s.buf)-limit:]...)
	return out
}

func (s *Store) ByVehicle(vehicleID string, limit int) []model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Report, 0)
	for i := len(s.buf) - 1; i >= 0; i-- {
		if s.buf[i].VehicleID != vehicleID {
			continue
		}
		out = append(out, s.buf[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func (s *Store) Since(ts time.Time) []model.Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Report, 0)
	for _, r := range s.buf {
		if !r.GeneratedAt.Before(ts) {
			out = append(out, r)
		}
	}
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buf)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = nil
}
