package models

import (
	"errors"
	"math"
	"sort"
	"time"

	id "gigsafe/pkg/domain"
)

var (
	ErrNoRecords       = errors.New("regional feed returned no records")
	ErrNoAccidentCount = errors.New("regional feed has no non-zero accident counts")
)

// Record is one region-year row of the accident statistics feed.
type Record struct {
	Region         string `json:"region"`
	Year           int    `json:"year"`
	TotalAccidents int    `json:"total_accidents"`
	Fatalities     int    `json:"fatalities"`
}

// Dataset is the result of a single feed fetch.
type Dataset struct {
	Records []Record
	AsOf    time.Time
	Source  string
}

// RegionRisk is the per-region view held in a snapshot.
type RegionRisk struct {
	Name       string  `json:"name"`
	Index      float64 `json:"index"`
	Year       int     `json:"year"`
	Accidents  int     `json:"accidents"`
	Fatalities int     `json:"fatalities"`
	// PrevAccidents is the previous year's count, 0 when the feed carries one year.
	PrevAccidents int `json:"prev_accidents,omitempty"`
}

// Snapshot maps normalized region names to risk. Snapshots are never mutated
// after BuildSnapshot returns.
type Snapshot struct {
	Regions map[id.Region]RegionRisk `json:"regions"`
	// Default is the median index, served for unknown regions.
	Default float64   `json:"default"`
	Year    int       `json:"year"`
	AsOf    time.Time `json:"as_of"`
	Source  string    `json:"source"`
}

// Lookup is the answer to a region query.
type Lookup struct {
	Region   id.Region
	Index    float64
	Fallback bool
	Stale    bool
	AsOf     time.Time
}

// BuildSnapshot normalizes the latest year's accident counts against the
// maximum across regions.
func BuildSnapshot(ds Dataset) (*Snapshot, error) {
	if len(ds.Records) == 0 {
		return nil, ErrNoRecords
	}

	latest := 0
	for _, r := range ds.Records {
		if r.Year > latest {
			latest = r.Year
		}
	}

	current := make(map[id.Region]Record)
	previous := make(map[id.Region]Record)
	maxAccidents := 0
	for _, r := range ds.Records {
		key := id.NormalizeRegion(r.Region)
		if key == "" || r.TotalAccidents < 0 {
			continue
		}
		switch r.Year {
		case latest:
			current[key] = r
			if r.TotalAccidents > maxAccidents {
				maxAccidents = r.TotalAccidents
			}
		case latest - 1:
			previous[key] = r
		}
	}
	if maxAccidents == 0 {
		return nil, ErrNoAccidentCount
	}

	regions := make(map[id.Region]RegionRisk, len(current))
	indices := make([]float64, 0, len(current))
	for key, r := range current {
		idx := Round2(clamp(float64(r.TotalAccidents)/float64(maxAccidents)*100, 0, 100))
		risk := RegionRisk{
			Name:       r.Region,
			Index:      idx,
			Year:       r.Year,
			Accidents:  r.TotalAccidents,
			Fatalities: r.Fatalities,
		}
		if prev, ok := previous[key]; ok {
			risk.PrevAccidents = prev.TotalAccidents
		}
		regions[key] = risk
		indices = append(indices, idx)
	}

	return &Snapshot{
		Regions: regions,
		Default: Round2(median(indices)),
		Year:    latest,
		AsOf:    ds.AsOf,
		Source:  ds.Source,
	}, nil
}

// Find returns the region's entry.
func (s *Snapshot) Find(region string) (RegionRisk, bool) {
	if s == nil {
		return RegionRisk{}, false
	}
	r, ok := s.Regions[id.NormalizeRegion(region)]
	return r, ok
}

// YearOverYear returns the percentage change in accidents against the previous
// year. ok is false when the previous year is missing or zero.
func (s *Snapshot) YearOverYear(region string) (float64, bool) {
	r, found := s.Find(region)
	if !found || r.PrevAccidents == 0 {
		return 0, false
	}
	return Round2(float64(r.Accidents-r.PrevAccidents) / float64(r.PrevAccidents) * 100), true
}

// Top returns the n highest-risk regions, highest first. Ties are ordered by
// name. n <= 0 returns every region.
func (s *Snapshot) Top(n int) []RegionRisk {
	if s == nil {
		return nil
	}
	out := make([]RegionRisk, 0, len(s.Regions))
	for _, r := range s.Regions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Index != out[j].Index {
			return out[i].Index > out[j].Index
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Round2 rounds half away from zero to 2 decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}
