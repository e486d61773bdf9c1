package snapshot

import (
	"kitchen-display/internal/models"
)

// SetStationOrder records a manual ordering of order ids for one station.
// It only lives until the next full replacement.
func (s *Store) SetStationOrder(station models.Station, orderIDs []int64) {
	gen := s.Current().Generation

	s.overlayMu.Lock()
	if s.overlayGen != gen {
		s.overlay = make(map[models.Station][]int64)
		s.overlayGen = gen
	}
	ids := make([]int64, len(orderIDs))
	copy(ids, orderIDs)
	s.overlay[station] = ids
	s.overlayMu.Unlock()

	s.notify(s.Current().Version)
}

// StationOrder returns the manual ordering for a station, if one is set for
// the current generation.
func (s *Store) StationOrder(station models.Station) []int64 {
	gen := s.Current().Generation

	s.overlayMu.RLock()
	defer s.overlayMu.RUnlock()
	if s.overlayGen != gen {
		return nil
	}
	return s.overlay[station]
}

func (s *Store) resetOverlay(gen uint64) {
	s.overlayMu.Lock()
	if s.overlayGen < gen {
		s.overlay = make(map[models.Station][]int64)
		s.overlayGen = gen
	}
	s.overlayMu.Unlock()
}
