// Package report renders the persisted ranking records into the monthly
// XLSX report sent to the operator. The record store is the source of truth;
// the report is regenerated from it on every flush, with the previous file
// backed up before overwrite.
package report

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/ranking"
)

// Writer produces monthly report files in a directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a report writer.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger}
}

// FileName returns the report path for the month of t.
func (w *Writer) FileName(t time.Time) string {
	name := fmt.Sprintf("Отчет_по_заведениям_%02d_%04d.xlsx", t.Month(), t.Year())
	return filepath.Join(w.dir, name)
}

// Write renders the month's records. Each establishment gets its own sheet:
// one row per date, two columns per query (best position and frequency),
// and a totals row aggregating the query columns. An existing file is
// backed up before being replaced.
func (w *Writer) Write(ests []config.Establishment, recs []ranking.Record, now time.Time) (string, error) {
	path := w.FileName(now)

	if err := w.backup(path, now); err != nil {
		return "", err
	}

	byEst := make(map[string][]ranking.Record)
	for _, rec := range recs {
		byEst[rec.EstablishmentID] = append(byEst[rec.EstablishmentID], rec)
	}

	f := excelize.NewFile()
	defer f.Close()

	for i, est := range ests {
		sheet := sheetName(est)
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return "", fmt.Errorf("report: rename sheet: %w", err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return "", fmt.Errorf("report: new sheet %q: %w", sheet, err)
			}
		}
		if err := w.fillSheet(f, sheet, est, byEst[est.ID]); err != nil {
			return "", err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("report: save %s: %w", path, err)
	}
	w.logger.Info("report: written", "path", path)
	return path, nil
}

func (w *Writer) fillSheet(f *excelize.File, sheet string, est config.Establishment, recs []ranking.Record) error {
	set := func(col, row int, v any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return f.SetCellValue(sheet, cell, v)
	}

	if err := set(1, 1, "Дата"); err != nil {
		return fmt.Errorf("report: header: %w", err)
	}
	for qi, query := range est.Queries {
		posCol, freqCol := queryColumns(qi)
		if err := set(posCol, 1, query+" — место"); err != nil {
			return fmt.Errorf("report: header: %w", err)
		}
		if err := set(freqCol, 1, query+" — частота"); err != nil {
			return fmt.Errorf("report: header: %w", err)
		}
	}
	if err := set(1, 2, "Итого"); err != nil {
		return fmt.Errorf("report: totals row: %w", err)
	}

	dates := recordDates(recs)
	index := make(map[ranking.Key]ranking.Record, len(recs))
	for _, rec := range recs {
		index[ranking.Key{Date: rec.Date, EstablishmentID: rec.EstablishmentID, Query: rec.Query}] = rec
	}

	for di, date := range dates {
		row := 3 + di
		if err := set(1, row, date); err != nil {
			return fmt.Errorf("report: date cell: %w", err)
		}
		for qi, query := range est.Queries {
			rec, ok := index[ranking.Key{Date: date, EstablishmentID: est.ID, Query: query}]
			if !ok {
				continue
			}
			posCol, freqCol := queryColumns(qi)
			if rec.BestPosition != ranking.Unranked {
				if err := set(posCol, row, rec.BestPosition); err != nil {
					return fmt.Errorf("report: position cell: %w", err)
				}
			}
			if err := set(freqCol, row, rec.Frequency); err != nil {
				return fmt.Errorf("report: frequency cell: %w", err)
			}
		}
	}

	// Totals: best position of the month per query, summed frequency via a
	// formula so manual edits stay live.
	lastRow := 2 + len(dates)
	for qi, query := range est.Queries {
		posCol, freqCol := queryColumns(qi)

		best := ranking.Unranked
		for _, rec := range recs {
			if rec.Query != query || rec.BestPosition == ranking.Unranked {
				continue
			}
			if best == ranking.Unranked || rec.BestPosition < best {
				best = rec.BestPosition
			}
		}
		if best != ranking.Unranked {
			if err := set(posCol, 2, best); err != nil {
				return fmt.Errorf("report: best cell: %w", err)
			}
		}

		if lastRow >= 3 {
			colName, err := excelize.ColumnNumberToName(freqCol)
			if err != nil {
				return err
			}
			cell, err := excelize.CoordinatesToCellName(freqCol, 2)
			if err != nil {
				return err
			}
			formula := fmt.Sprintf("SUM(%s3:%s%d)", colName, colName, lastRow)
			if err := f.SetCellFormula(sheet, cell, formula); err != nil {
				return fmt.Errorf("report: frequency formula: %w", err)
			}
		}
	}

	if err := f.SetColWidth(sheet, "A", "A", 14); err != nil {
		return fmt.Errorf("report: column width: %w", err)
	}
	return nil
}

// backup copies the current report aside before it is replaced.
func (w *Writer) backup(path string, now time.Time) error {
	src, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("report: open for backup: %w", err)
	}
	defer src.Close()

	bakPath := fmt.Sprintf("%s.bak-%s", path, now.Format("20060102-150405"))
	dst, err := os.Create(bakPath)
	if err != nil {
		return fmt.Errorf("report: create backup: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("report: copy backup: %w", err)
	}
	w.logger.Info("report: previous file backed up", "path", bakPath)
	return nil
}

func queryColumns(queryIndex int) (posCol, freqCol int) {
	return 2 + queryIndex*2, 3 + queryIndex*2
}

// recordDates returns the distinct dates in chronological order.
func recordDates(recs []ranking.Record) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, rec := range recs {
		if !seen[rec.Date] {
			seen[rec.Date] = true
			dates = append(dates, rec.Date)
		}
	}
	sort.Slice(dates, func(i, j int) bool {
		ti, ei := time.Parse(ranking.DateFormat, dates[i])
		tj, ej := time.Parse(ranking.DateFormat, dates[j])
		if ei != nil || ej != nil {
			return dates[i] < dates[j]
		}
		return ti.Before(tj)
	})
	return dates
}

// sheetName builds a sheet title within the 31-character XLSX limit, with
// characters the format forbids replaced.
func sheetName(est config.Establishment) string {
	name := est.Name
	if est.Niche != "" {
		name = fmt.Sprintf("%s (%s)", est.Name, est.Niche)
	}
	replacer := strings.NewReplacer(":", " ", "\\", " ", "/", " ", "?", " ", "*", " ", "[", "(", "]", ")")
	name = replacer.Replace(name)
	runes := []rune(name)
	if len(runes) > 31 {
		name = string(runes[:31])
	}
	return name
}
