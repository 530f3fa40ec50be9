package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manuscript-desk-poc/server/internal/agent/model"
	errx "github.com/manuscript-desk-poc/server/internal/core/error"
)

const casesCSV = `id,category,urgency,manuscript_id,query,resolution,tags,created_date,resolution_time_hours
CASE_0001,review_delay,high,MS-2024-1234,My manuscript has been in review for 8 weeks,"We assigned a replacement reviewer, and expedited.","['reviewer_replacement', 'expedited']",2024-03-01,48.5
CASE_0002,status_inquiry,low,MS-2024-2000,What is the status of my submission,It is with the editor.,editor;status,2024-03-02,
CASE_0003,review_delay,medium,,Review taking too long,We chased the reviewers.,,2024-03-03,12
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadCases(t *testing.T) {
	store, err := LoadCases(writeFile(t, "cases.csv", casesCSV))
	require.NoError(t, err)
	require.Equal(t, 3, store.Len())

	all := store.All()
	c := all[0]
	assert.Equal(t, "CASE_0001", c.ID)
	assert.Equal(t, model.CategoryReviewDelay, c.Category)
	assert.Equal(t, model.UrgencyHigh, c.Urgency)
	assert.Equal(t, []string{"reviewer_replacement", "expedited"}, c.Tags)
	assert.Equal(t, "We assigned a replacement reviewer, and expedited.", c.Resolution)
	assert.Equal(t, 48.5, c.ResolutionTimeHours)

	assert.Equal(t, []string{"editor", "status"}, all[1].Tags)
	assert.Empty(t, all[2].Tags)
	assert.Empty(t, all[2].ManuscriptID)
}

func TestLoadCasesMissingFileDegrades(t *testing.T) {
	store, err := LoadCases(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrDataUnavailable)
	require.NotNil(t, store)
	assert.Zero(t, store.Len())
	assert.Empty(t, store.SearchSpace(model.CategoryReviewDelay))
	assert.Equal(t, 0, store.Stats().Total)
}

func TestLoadCasesMissingColumn(t *testing.T) {
	_, err := LoadCases(writeFile(t, "bad.csv", "id,category\nCASE_1,review_delay\n"))
	assert.ErrorIs(t, err, errx.ErrDataUnavailable)
}

func TestSearchSpace(t *testing.T) {
	store := NewCaseStore([]model.Case{
		{ID: "1", Category: model.CategoryReviewDelay},
		{ID: "2", Category: model.CategoryStatusInquiry},
		{ID: "3", Category: model.CategoryReviewDelay},
	})

	assert.Len(t, store.SearchSpace(model.CategoryReviewDelay), 2)
	assert.Len(t, store.SearchSpace(""), 3)
	assert.Len(t, store.SearchSpace("weather"), 3)
	assert.Len(t, store.SearchSpace(model.CategoryWithdrawalRequest), 3)
}

func TestStats(t *testing.T) {
	store, err := LoadCases(writeFile(t, "cases.csv", casesCSV))
	require.NoError(t, err)

	st := store.Stats()
	assert.Equal(t, 3, st.Total)
	assert.Equal(t, 2, st.ByCategory[model.CategoryReviewDelay])
	assert.Equal(t, 1, st.ByUrgency[model.UrgencyLow])
}

func TestReloadBumpsVersion(t *testing.T) {
	path := writeFile(t, "cases.csv", casesCSV)
	store, err := LoadCases(path)
	require.NoError(t, err)
	v := store.Version()

	require.NoError(t, os.WriteFile(path, []byte("id,category,query,resolution\nX,review_delay,q,r\n"), 0o644))
	require.NoError(t, store.Reload(path))
	assert.Greater(t, store.Version(), v)
	assert.Equal(t, 1, store.Len())

	require.Error(t, store.Reload(filepath.Join(t.TempDir(), "gone.csv")))
	assert.Equal(t, 1, store.Len(), "failed reload keeps the current corpus")
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseTags("['a', 'b']"))
	assert.Equal(t, []string{"a", "b"}, parseTags(`["a","b"]`))
	assert.Equal(t, []string{"a", "b c"}, parseTags("a; b c"))
	assert.Nil(t, parseTags("[]"))
	assert.Nil(t, parseTags(""))
}

const manuscriptsCSV = `manuscript_id,author_name,submission_date,current_status,reviewer_count,decision_date,notes
MS-2024-1234,Dr. Rivera,2024-01-10,Under Review,2.0,,Second reviewer late
MS-2024-2000,Dr. Chen,2023-11-02,Accepted,3,2024-02-01,
`

func TestManuscriptLookup(t *testing.T) {
	db, err := LoadManuscripts(writeFile(t, "ms.csv", manuscriptsCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, db.Len())

	rec, ok := db.Lookup("ms-2024-1234")
	require.True(t, ok)
	assert.Equal(t, "Under Review", rec.CurrentStatus)
	assert.Equal(t, 2, rec.ReviewerCount)
	assert.Empty(t, rec.DecisionDate)

	_, ok = db.Lookup("MS-2024-2000")
	assert.True(t, ok)
	_, ok = db.Lookup("MS-2024-9999")
	assert.False(t, ok)
	_, ok = db.Lookup("")
	assert.False(t, ok)
}

func TestLoadManuscriptsMissingFileDegrades(t *testing.T) {
	db, err := LoadManuscripts(filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, errx.ErrDataUnavailable)
	require.NotNil(t, db)
	assert.Zero(t, db.Len())
	_, ok := db.Lookup("MS-2024-1234")
	assert.False(t, ok)
}
