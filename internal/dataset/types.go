package dataset

import (
	"errors"
	"time"
)

// Record is one price observation.
type Record struct {
	Region    string  `json:"region"`
	Price     float64 `json:"price"`
	Timestamp string  `json:"timestamp"`
}

// Summary aggregates one region.
type Summary struct {
	Region      string  `json:"region"`
	MeanPrice   float64 `json:"mean_price"`
	RecordCount int     `json:"record_count"`
}

// Stats describes the snapshot currently being served.
type Stats struct {
	Loaded     bool      `json:"loaded"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Source     string    `json:"source,omitempty"`
	LoadedAt   time.Time `json:"loaded_at"`
	Records    int       `json:"records"`
	Regions    int       `json:"regions"`
}

var (
	// ErrNotFound means the dataset source does not exist.
	ErrNotFound = errors.New("dataset not found")
	// ErrMalformed means the source could not be parsed or a row failed validation.
	ErrMalformed = errors.New("dataset malformed")
)

// snapshot is immutable once published.
type snapshot struct {
	id       string
	source   string
	loadedAt time.Time
	records  []Record
	regions  []string
	byRegion map[string][]Record
}

func newSnapshot(id, source string, loadedAt time.Time, records []Record) *snapshot {
	s := &snapshot{
		id:       id,
		source:   source,
		loadedAt: loadedAt,
		records:  records,
		byRegion: make(map[string][]Record),
	}
	for _, rec := range records {
		if _, seen := s.byRegion[rec.Region]; !seen {
			s.regions = append(s.regions, rec.Region)
		}
		s.byRegion[rec.Region] = append(s.byRegion[rec.Region], rec)
	}
	return s
}

func (s *snapshot) stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Loaded:     true,
		SnapshotID: s.id,
		Source:     s.source,
		LoadedAt:   s.loadedAt,
		Records:    len(s.records),
		Regions:    len(s.regions),
	}
}
