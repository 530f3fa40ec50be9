package knowledge

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// table is a header-addressed view over a CSV file.
type table struct {
	index map[string]int
	rows  [][]string
}

func readTable(path string) (*table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseTable(f)
}

func parseTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty file")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	t := &table{index: make(map[string]int, len(header))}
	for i, h := range header {
		// spreadsheet exports often prefix a BOM
		h = strings.TrimPrefix(h, "\ufeff")
		t.index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", len(t.rows)+2, err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *table) has(col string) bool {
	_, ok := t.index[col]
	return ok
}

func (t *table) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	switch strings.ToLower(v) {
	case "nan", "none", "null", "n/a":
		return ""
	}
	return v
}

// parseTags accepts "['a', 'b']", "a;b" and "a,b".
func parseTags(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "[")
	raw = strings.TrimSuffix(raw, "]")
	if raw == "" {
		return nil
	}
	sep := ","
	if strings.Contains(raw, ";") {
		sep = ";"
	}
	var tags []string
	for _, p := range strings.Split(raw, sep) {
		p = strings.Trim(strings.TrimSpace(p), `'"`)
		if p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
