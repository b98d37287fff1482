package board

import (
	"fmt"
	"regexp"
)

// coordPattern matches A1 through J10, matching the reference's COORD_RE.
var coordPattern = regexp.MustCompile(`^[A-J](10|[1-9])$`)

// ParseCoordinate converts a coordinate string like "B5" to zero-based
// (row, col).
func ParseCoordinate(coord string) (row, col int, err error) {
	if !coordPattern.MatchString(coord) {
		return 0, 0, fmt.Errorf("invalid coordinate: %q", coord)
	}
	row = int(coord[0] - 'A')
	col = 0
	for _, c := range coord[1:] {
		col = col*10 + int(c-'0')
	}
	col--
	return row, col, nil
}

// FormatCoordinate converts zero-based (row, col) to a coordinate string.
func FormatCoordinate(row, col int) string {
	return fmt.Sprintf("%c%d", 'A'+row, col+1)
}
