package knowledge

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

// ManuscriptDB is the read-only manuscript status table keyed by manuscript id.
type ManuscriptDB struct {
	records map[string]model.ManuscriptRecord
}

// NewManuscriptDB builds a lookup from records.
func NewManuscriptDB(records []model.ManuscriptRecord) *ManuscriptDB {
	db := &ManuscriptDB{records: make(map[string]model.ManuscriptRecord, len(records))}
	for _, r := range records {
		db.records[normalizeID(r.ManuscriptID)] = r
	}
	return db
}

// LoadManuscripts reads the status database. Like LoadCases it always returns
// a usable (possibly empty) lookup.
func LoadManuscripts(path string) (*ManuscriptDB, error) {
	t, err := readTable(path)
	if err != nil {
		logx.Warn().Err(err).Str("path", path).Msg("manuscript database unavailable, lookups will miss")
		return NewManuscriptDB(nil), errx.DataUnavailable(err)
	}
	if !t.has("manuscript_id") {
		err := fmt.Errorf("%s: missing column %q", path, "manuscript_id")
		logx.Warn().Err(err).Msg("manuscript database unavailable, lookups will miss")
		return NewManuscriptDB(nil), errx.DataUnavailable(err)
	}

	records := make([]model.ManuscriptRecord, 0, len(t.rows))
	for _, row := range t.rows {
		id := t.get(row, "manuscript_id")
		if id == "" {
			continue
		}
		rec := model.ManuscriptRecord{
			ManuscriptID:   id,
			AuthorName:     t.get(row, "author_name"),
			SubmissionDate: t.get(row, "submission_date"),
			CurrentStatus:  t.get(row, "current_status"),
			DecisionDate:   t.get(row, "decision_date"),
			Notes:          t.get(row, "notes"),
		}
		if v := t.get(row, "reviewer_count"); v != "" {
			// pandas may have written the count as a float ("2.0")
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				rec.ReviewerCount = int(n)
			}
		}
		records = append(records, rec)
	}
	logx.Info().Str("path", path).Int("manuscripts", len(records)).Msg("loaded manuscript database")
	return NewManuscriptDB(records), nil
}

// Lookup is an exact, case-insensitive match on manuscript id.
func (db *ManuscriptDB) Lookup(manuscriptID string) (model.ManuscriptRecord, bool) {
	if db == nil || manuscriptID == "" {
		return model.ManuscriptRecord{}, false
	}
	rec, ok := db.records[normalizeID(manuscriptID)]
	return rec, ok
}

func (db *ManuscriptDB) Len() int {
	if db == nil {
		return 0
	}
	return len(db.records)
}

func normalizeID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}
