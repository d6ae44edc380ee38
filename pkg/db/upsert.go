package db

import (
	"slices"
	"strings"
)

// OnConflictUpdate renders an "ON CONFLICT (...) DO UPDATE" suffix that copies
// every column except the conflict target from EXCLUDED. Columns are sorted so
// the statement text is stable.
func OnConflictUpdate(conflict string, columns ...string) string {
	cols := slices.Clone(columns)
	slices.Sort(cols)

	sets := make([]string, 0, len(cols))
	for _, c := range cols {
		if c == conflict {
			continue
		}
		sets = append(sets, c+" = EXCLUDED."+c)
	}
	if len(sets) == 0 {
		return "ON CONFLICT (" + conflict + ") DO NOTHING"
	}
	return "ON CONFLICT (" + conflict + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// Columns returns the keys of a squirrel SetMap argument.
func Columns(m map[string]any) []string {
	cols := make([]string, 0, len(m))
	for k := range m {
		cols = append(cols, k)
	}
	return cols
}
