package metrics

import (
	"sort"
	"sync"
	"time"

	"tripscore/internal/model"
)

// Store keeps a per-vehicle summary of scored trips. When more than limit
// vehicles are tracked the least recently updated one is dropped.
type Store struct {
	mu        sync.RWMutex
	byVehicle map[string]model.VehicleSummary
	limit     int
	now       func() time.Time
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 5000
	}
	return &Store{
		byVehicle: make(map[string]model.VehicleSummary),
		limit:     limit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Update(rep model.Report) {
	if rep.VehicleID == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.byVehicle[rep.VehicleID]
	if !ok {
		sum = model.VehicleSummary{VehicleID: rep.VehicleID, MinScore: rep.OverallScore}
	}
	sum.AvgScore = (sum.AvgScore*float64(sum.Trips) + float64(rep.OverallScore)) / float64(sum.Trips+1)
	sum.Trips++
	if rep.OverallScore < sum.MinScore {
		sum.MinScore = rep.OverallScore
	}
	sum.LastScore = rep.OverallScore
	sum.LastGrade = rep.Grade
	sum.LastTripID = rep.TripID
	sum.TotalEvents += rep.Summary.TotalEvents
	sum.TotalViolations += len(rep.ViolationIntervals)
	sum.UpdatedAt = s.now()
	s.byVehicle[rep.VehicleID] = sum
	if len(s.byVehicle) > s.limit {
		s.evictOldest()
	}
}

func (s *Store) Get(vehicleID string) (model.VehicleSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum, ok := s.byVehicle[vehicleID]
	return sum, ok
}

// GetAll returns every summary ordered by vehicle id.
func (s *Store) GetAll() []model.VehicleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.VehicleSummary, 0, len(s.byVehicle))
	for _, sum := range s.byVehicle {
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VehicleID < out[j].VehicleID })
	return out
}

func (s *Store) evictOldest() {
	var oldestVehicle string
	var oldest time.Time
	for id, sum := range s.byVehicle {
		if oldestVehicle == "" || sum.UpdatedAt.Before(oldest) {
			oldestVehicle = id
			oldest = sum.UpdatedAt
		}
	}
	if oldestVehicle != "" {
		delete(s.byVehicle, oldestVehicle)
	}
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byVehicle = make(map[string]model.VehicleSummary)
}
