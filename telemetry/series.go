package telemetry

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/unixpickle/essentials"
	"github.com/xuri/excelize/v2"
)

// SeriesLogger is a Sink which keeps every series in
// memory.
//
// On Flush, it prints the latest value of each series as
// a boxed table, and rewrites a spreadsheet with the full
// history of every series.
type SeriesLogger struct {
	// Path is the .xlsx workbook to write.
	// The workbook has one sheet per group.
	//
	// If empty, no workbook is written.
	Path string

	// Out receives the table of latest values.
	//
	// If nil, nothing is printed.
	Out io.Writer

	lock   sync.Mutex
	groups map[string]*seriesGroup
}

type seriesGroup struct {
	xLabel string

	// columns maps column names to step-indexed values.
	columns map[string]map[int]float64
	steps   map[int]bool
}

// Record adds a value to a series.
//
// Each (name, split) pair becomes a column in the sheet
// of its group.
func (s *SeriesLogger) Record(name string, value float64, step int, group, xLabel, split string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.groups == nil {
		s.groups = map[string]*seriesGroup{}
	}
	g, ok := s.groups[group]
	if !ok {
		g = &seriesGroup{
			xLabel:  xLabel,
			columns: map[string]map[int]float64{},
			steps:   map[int]bool{},
		}
		s.groups[group] = g
	}
	col := columnName(name, split)
	if g.columns[col] == nil {
		g.columns[col] = map[int]float64{}
	}
	g.columns[col][step] = value
	g.steps[step] = true
}

// Series returns the values of a series, ordered by step.
func (s *SeriesLogger) Series(group, name, split string) (steps []int, values []float64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	g, ok := s.groups[group]
	if !ok {
		return nil, nil
	}
	col := g.columns[columnName(name, split)]
	steps = slices.Sorted(maps.Keys(col))
	for _, step := range steps {
		values = append(values, col[step])
	}
	return
}

// Flush prints the latest values and writes the workbook.
func (s *SeriesLogger) Flush() (err error) {
	defer essentials.AddCtxTo("flush series", &err)
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.Out != nil {
		if _, err := io.WriteString(s.Out, s.table()+"\n"); err != nil {
			return err
		}
	}
	if s.Path != "" {
		return s.writeWorkbook()
	}
	return nil
}

func (s *SeriesLogger) table() string {
	var rows []Row
	for _, groupName := range slices.Sorted(maps.Keys(s.groups)) {
		g := s.groups[groupName]
		for _, col := range slices.Sorted(maps.Keys(g.columns)) {
			steps := slices.Sorted(maps.Keys(g.columns[col]))
			rows = append(rows, Row{
				Name:  groupName + "/" + col,
				Value: g.columns[col][steps[len(steps)-1]],
			})
		}
	}
	return FormatTable(rows)
}

func (s *SeriesLogger) writeWorkbook() error {
	f := excelize.NewFile()
	defer f.Close()

	groupNames := slices.Sorted(maps.Keys(s.groups))
	for _, groupName := range groupNames {
		sheet := sheetName(groupName)
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		g := s.groups[groupName]
		cols := slices.Sorted(maps.Keys(g.columns))

		header := append([]interface{}{g.xLabel}, stringsToCells(cols)...)
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
		for i, step := range slices.Sorted(maps.Keys(g.steps)) {
			row := []interface{}{step}
			for _, col := range cols {
				if v, ok := g.columns[col][step]; ok {
					row = append(row, v)
				} else {
					row = append(row, nil)
				}
			}
			if err := f.SetSheetRow(sheet, fmt.Sprintf("A%d", i+2), &row); err != nil {
				return err
			}
		}
	}
	if len(groupNames) > 0 {
		f.DeleteSheet("Sheet1")
	}
	return f.SaveAs(s.Path)
}

func columnName(name, split string) string {
	if split == "" {
		return name
	}
	return name + " (" + split + ")"
}

// sheetName converts a group name into a valid sheet
// name, which is at most 31 characters long and
// excludes a few special characters.
func sheetName(group string) string {
	res := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`:\/?*[]`, r) {
			return '_'
		}
		return r
	}, group)
	if res == "" {
		res = "_"
	}
	if runes := []rune(res); len(runes) > 31 {
		res = string(runes[:31])
	}
	return res
}

func stringsToCells(strs []string) []interface{} {
	res := make([]interface{}, len(strs))
	for i, s := range strs {
		res[i] = s
	}
	return res
}
