package sector

import (
	"encoding/json"
	"fmt"
	"os"
)

// jsonTable is the on-disk shape of a Table: its geometry plus every
// sector in linear order, letting a recovery session resume exactly
// where a previous scan left off (statuses an IMG file can't carry).
type jsonTable struct {
	Geometry Geometry `json:"geometry"`
	Sectors  []Sector `json:"sectors"`
}

// SaveJSON serializes a Table to filename, for a later LoadJSON.
func SaveJSON(filename string, t *Table) error {
	jt := jsonTable{Geometry: t.Geometry()}
	t.Each(func(s Sector) { jt.Sectors = append(jt.Sectors, s) })

	data, err := json.MarshalIndent(jt, "", "  ")
	if err != nil {
		return fmt.Errorf("sector: marshal table: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("sector: write %s: %w", filename, err)
	}
	return nil
}

// LoadJSON reads a Table previously written by SaveJSON.
func LoadJSON(filename string) (*Table, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("sector: read %s: %w", filename, err)
	}
	var jt jsonTable
	if err := json.Unmarshal(data, &jt); err != nil {
		return nil, fmt.Errorf("sector: parse %s: %w", filename, err)
	}

	t := NewTable(jt.Geometry)
	for _, s := range jt.Sectors {
		t.Set(s.Linear, s)
	}
	return t, nil
}
