package actions

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/ent0n29/horizon/internal/turn"
)

const (
	FormatCSV   = "csv"
	FormatExcel = "excel"

	exportSheet = "Data"
)

var errNothingToExport = errors.New("primary result has nothing to export")

// ExportFormat normalizes a requested file format. Excel is the default.
func ExportFormat(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "csv", "text/csv":
		return FormatCSV
	default:
		return FormatExcel
	}
}

type table struct {
	columns []string
	rows    [][]any
}

func (e *Executor) export(params map[string]any, in Input) (map[string]any, error) {
	tbl, err := tableFor(in.Snapshot.Primary)
	if err != nil {
		return nil, err
	}
	format := ExportFormat(turn.StringParam(params, "format"))
	ext := "xlsx"
	if format == FormatCSV {
		ext = "csv"
	}
	if err := os.MkdirAll(e.exportDir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	// Several exports may run in one turn within the same second.
	name := fmt.Sprintf("horizon_export_%s_%s_%s.%s",
		e.now().UTC().Format("20060102_150405"), safeName(in.Snapshot.TurnID), uuid.NewString()[:8], ext)
	path := filepath.Join(e.exportDir, name)

	if format == FormatCSV {
		err = writeCSV(path, tbl)
	} else {
		err = writeExcel(path, tbl)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{"path": path, "format": format, "rows": len(tbl.rows)}, nil
}

func tableFor(primary turn.PrimaryResult) (table, error) {
	switch r := primary.(type) {
	case turn.DataQueryResult:
		if r.Rejected() {
			return table{}, fmt.Errorf("query was rejected: %s", r.Rejection)
		}
		cols := r.Columns
		if len(cols) == 0 && len(r.Rows) > 0 {
			for k := range r.Rows[0] {
				cols = append(cols, k)
			}
			sort.Strings(cols)
		}
		rows := make([][]any, 0, len(r.Rows))
		for _, rec := range r.Rows {
			row := make([]any, len(cols))
			for i, c := range cols {
				row[i] = rec[c]
			}
			rows = append(rows, row)
		}
		return table{columns: cols, rows: rows}, nil
	case turn.DocumentResult:
		tbl := table{columns: []string{"heading", "body"}}
		for _, s := range r.Sections {
			tbl.rows = append(tbl.rows, []any{s.Heading, s.Body})
		}
		return tbl, nil
	case turn.EntitySummaryResult:
		tbl := table{columns: []string{"field", "value"}}
		tbl.rows = append(tbl.rows, []any{"entity", r.Entity}, []any{"summary", r.Summary})
		for _, k := range sortedKeys(r.Facts) {
			tbl.rows = append(tbl.rows, []any{k, r.Facts[k]})
		}
		return tbl, nil
	case turn.ArtifactResult:
		tbl := table{columns: []string{"field", "value"}}
		tbl.rows = append(tbl.rows, []any{"kind", r.Kind}, []any{"title", r.Title})
		for _, k := range sortedKeys(r.Fields) {
			tbl.rows = append(tbl.rows, []any{k, r.Fields[k]})
		}
		return tbl, nil
	case turn.AnswerResult:
		return table{columns: []string{"answer"}, rows: [][]any{{r.Answer}}}, nil
	default:
		return table{}, errNothingToExport
	}
}

func writeCSV(path string, tbl table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(tbl.columns); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	for _, row := range tbl.rows {
		rec := make([]string, len(row))
		for i, v := range row {
			if v != nil {
				rec[i] = fmt.Sprint(v)
			}
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return f.Close()
}

func writeExcel(path string, tbl table) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return fmt.Errorf("prepare sheet: %w", err)
	}
	header := make([]any, len(tbl.columns))
	for i, c := range tbl.columns {
		header[i] = c
	}
	if err := f.SetSheetRow(exportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range tbl.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func safeName(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "turn"
	}
	return b.String()
}
