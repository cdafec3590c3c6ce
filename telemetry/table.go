package telemetry

import (
	"fmt"
	"strings"
)

// A Row is one named value in a table.
type Row struct {
	Name  string
	Value float64
}

// FormatTable renders rows as a boxed text table.
func FormatTable(rows []Row) string {
	var nameWidth, valueWidth int
	values := make([]string, len(rows))
	for i, r := range rows {
		values[i] = fmt.Sprintf("%8.5g", r.Value)
		nameWidth = max(nameWidth, len(r.Name))
		valueWidth = max(valueWidth, len(values[i]))
	}
	border := strings.Repeat("-", nameWidth+valueWidth+7)
	lines := []string{border}
	for i, r := range rows {
		lines = append(lines, fmt.Sprintf("| %-*s | %*s |", nameWidth, r.Name,
			valueWidth, values[i]))
	}
	lines = append(lines, border)
	return strings.Join(lines, "\n")
}
