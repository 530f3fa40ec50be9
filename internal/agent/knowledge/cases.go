package knowledge

import (
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

var requiredCaseColumns = []string{"id", "category", "query", "resolution"}

// CaseStore is the in-memory table of historical cases. It is read-only
// after load; Reload swaps the whole corpus and bumps Version.
type CaseStore struct {
	mu      sync.RWMutex
	cases   []model.Case
	version atomic.Uint64
}

// NewCaseStore builds a store from already parsed cases.
func NewCaseStore(cases []model.Case) *CaseStore {
	s := &CaseStore{}
	s.replace(cases)
	return s
}

// LoadCases reads the case corpus. When the file cannot be read the returned
// store is empty but usable, and the error is a DataUnavailable AppError.
func LoadCases(path string) (*CaseStore, error) {
	cases, err := readCases(path)
	store := NewCaseStore(cases)
	if err != nil {
		return store, err
	}
	logx.Info().Str("path", path).Int("cases", len(cases)).Msg("loaded case corpus")
	return store, nil
}

// Reload replaces the corpus from path. On failure the current corpus is kept.
func (s *CaseStore) Reload(path string) error {
	cases, err := readCases(path)
	if err != nil {
		return err
	}
	s.replace(cases)
	logx.Info().Str("path", path).Int("cases", len(cases)).Uint64("version", s.Version()).Msg("reloaded case corpus")
	return nil
}

func (s *CaseStore) replace(cases []model.Case) {
	s.mu.Lock()
	s.cases = cases
	s.mu.Unlock()
	s.version.Add(1)
}

// Version identifies the current corpus. It changes on every load.
func (s *CaseStore) Version() uint64 {
	return s.version.Load()
}

// Len returns the number of cases.
func (s *CaseStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cases)
}

// All returns every case in corpus order.
func (s *CaseStore) All() []model.Case {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Case, len(s.cases))
	copy(out, s.cases)
	return out
}

// SearchSpace returns the cases a query should be scored against. An empty or
// unrecognised category, or a category with no cases, yields the full corpus.
func (s *CaseStore) SearchSpace(category model.Category) []model.Case {
	all := s.All()
	if category == "" || !category.Valid() {
		return all
	}
	var filtered []model.Case
	for _, c := range all {
		if c.Category == category {
			filtered = append(filtered, c)
		}
	}
	if len(filtered) == 0 {
		return all
	}
	return filtered
}

// Stats counts cases per category and urgency.
func (s *CaseStore) Stats() model.CorpusStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := model.CorpusStats{
		Total:      len(s.cases),
		ByCategory: map[model.Category]int{},
		ByUrgency:  map[model.Urgency]int{},
	}
	for _, c := range s.cases {
		st.ByCategory[c.Category]++
		st.ByUrgency[c.Urgency]++
	}
	return st
}

func readCases(path string) ([]model.Case, error) {
	t, err := readTable(path)
	if err != nil {
		logx.Warn().Err(err).Str("path", path).Msg("case corpus unavailable, continuing with empty store")
		return nil, errx.DataUnavailable(err)
	}
	for _, col := range requiredCaseColumns {
		if !t.has(col) {
			err := fmt.Errorf("%s: missing column %q", path, col)
			logx.Warn().Err(err).Msg("case corpus unavailable, continuing with empty store")
			return nil, errx.DataUnavailable(err)
		}
	}

	cases := make([]model.Case, 0, len(t.rows))
	for i, row := range t.rows {
		c := model.Case{
			ID:           t.get(row, "id"),
			Category:     model.Category(t.get(row, "category")),
			Urgency:      model.Urgency(t.get(row, "urgency")),
			ManuscriptID: t.get(row, "manuscript_id"),
			Query:        t.get(row, "query"),
			Resolution:   t.get(row, "resolution"),
			Tags:         parseTags(t.get(row, "tags")),
			CreatedDate:  t.get(row, "created_date"),
		}
		if c.ID == "" {
			c.ID = fmt.Sprintf("CASE_%04d", i+1)
		}
		if v := t.get(row, "resolution_time_hours"); v != "" {
			if h, err := strconv.ParseFloat(v, 64); err == nil {
				c.ResolutionTimeHours = h
			}
		}
		cases = append(cases, c)
	}
	return cases, nil
}
