package dataset

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nemprice.org/internal/obs"
)

// Service serves aggregate price queries from one in-memory snapshot.
// Loads are serialized; readers always see a complete snapshot.
type Service struct {
	path string
	now  func() time.Time

	loadMu sync.Mutex

	mu   sync.RWMutex
	snap *snapshot
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// New creates a service bound to the dataset at path. Nothing is loaded yet.
func New(path string, opts ...Option) *Service {
	s := &Service{
		path: strings.TrimSpace(path),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the configured dataset location.
func (s *Service) Path() string { return s.path }

// Reload loads the configured path.
func (s *Service) Reload() (Stats, error) {
	return s.Load(s.path)
}

// EnsureLoaded loads the configured path unless a snapshot is already live.
func (s *Service) EnsureLoaded() error {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	if s.current() != nil {
		return nil
	}
	_, err := s.loadLocked(s.path)
	return err
}

// Load reads the whole file at path and swaps it in on success. On failure
// the previous snapshot stays live.
func (s *Service) Load(path string) (Stats, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	return s.loadLocked(path)
}

// LoadReader is Load for an already opened source; source names it in Stats.
func (s *Service) LoadReader(r io.Reader, source string) (Stats, error) {
	s.loadMu.Lock()
	defer s.loadMu.Unlock()
	records, err := parse(r)
	return s.publish(records, err, source)
}

func (s *Service) loadLocked(path string) (Stats, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		obs.ObserveDatasetLoad(false, 0, 0)
		return Stats{}, fmt.Errorf("%w: no dataset path configured", ErrNotFound)
	}
	f, err := os.Open(path)
	if err != nil {
		obs.ObserveDatasetLoad(false, 0, 0)
		if errors.Is(err, fs.ErrNotExist) {
			return Stats{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Stats{}, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	records, err := parse(f)
	return s.publish(records, err, path)
}

func (s *Service) publish(records []Record, err error, source string) (Stats, error) {
	if err != nil {
		obs.ObserveDatasetLoad(false, 0, 0)
		return Stats{}, err
	}
	next := newSnapshot(uuid.NewString(), source, s.now().UTC(), records)

	s.mu.Lock()
	s.snap = next
	s.mu.Unlock()

	st := next.stats()
	obs.ObserveDatasetLoad(true, st.Records, st.Regions)
	return st, nil
}

func (s *Service) current() *snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Stats describes the live snapshot; Loaded is false before the first load.
func (s *Service) Stats() Stats {
	return s.current().stats()
}

// RecordsForRegion returns the records whose region matches exactly.
func (s *Service) RecordsForRegion(region string) []Record {
	snap := s.current()
	if snap == nil || region == "" {
		return []Record{}
	}
	recs := snap.byRegion[region]
	out := make([]Record, len(recs))
	copy(out, recs)
	return out
}

// RecordCount returns the number of records for region.
func (s *Service) RecordCount(region string) int {
	snap := s.current()
	if snap == nil {
		return 0
	}
	return len(snap.byRegion[region])
}

// MeanPrice returns the arithmetic mean price for region. ok is false when
// the region has no records, including before the first load.
func (s *Service) MeanPrice(region string) (mean float64, ok bool) {
	sum, ok := s.RegionSummary(region)
	return sum.MeanPrice, ok
}

// RegionSummary returns the mean price and record count for region, both
// taken from the same snapshot.
func (s *Service) RegionSummary(region string) (Summary, bool) {
	snap := s.current()
	if snap == nil || region == "" {
		return Summary{}, false
	}
	recs := snap.byRegion[region]
	if len(recs) == 0 {
		return Summary{}, false
	}
	var total float64
	for _, r := range recs {
		total += r.Price
	}
	return Summary{
		Region:      region,
		MeanPrice:   total / float64(len(recs)),
		RecordCount: len(recs),
	}, true
}

// DistinctRegions returns each region once, in first-seen order.
func (s *Service) DistinctRegions() []string {
	snap := s.current()
	if snap == nil {
		return []string{}
	}
	out := make([]string, len(snap.regions))
	copy(out, snap.regions)
	return out
}
