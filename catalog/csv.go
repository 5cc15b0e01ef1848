package catalog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// LoadCatalogIDs reads video IDs from a catalog CSV export. The file must
// have a header row; IDs are extracted from the column named by urlColumn
// (each cell holding a video URL or bare ID). Duplicate and empty IDs are
// dropped.
func LoadCatalogIDs(path, urlColumn string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return readCatalogIDs(f, urlColumn)
}

func readCatalogIDs(r io.Reader, urlColumn string) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read catalog header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == urlColumn {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("catalog has no %q column", urlColumn)
	}

	seen := map[string]bool{}
	var ids []string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read catalog row: %w", err)
		}
		if col >= len(row) {
			continue
		}
		id := ExtractVideoID(row[col])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids, nil
}

// WriteIDs writes ids to path, one per line, sorted.
func WriteIDs(path string, ids []string) error {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	data := strings.Join(sorted, "\n")
	if len(sorted) > 0 {
		data += "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write ids: %w", err)
	}
	return nil
}
