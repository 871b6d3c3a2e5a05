package report

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Andromeda-12/statify/internal/config"
	"github.com/Andromeda-12/statify/internal/ranking"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var reportTime = time.Date(2026, 8, 27, 18, 0, 0, 0, time.UTC)

func testEstablishments() []config.Establishment {
	return []config.Establishment{
		{ID: "romashka", Name: "Кафе Ромашка", Niche: "кафе", Queries: []string{"кофе", "завтраки"}},
		{ID: "lotos", Name: "Лотос", Niche: "суши", Queries: []string{"суши"}},
	}
}

func testRecords() []ranking.Record {
	return []ranking.Record{
		{Date: "26.08.2026", EstablishmentID: "romashka", Query: "кофе", Frequency: 2, BestPosition: 5},
		{Date: "27.08.2026", EstablishmentID: "romashka", Query: "кофе", Frequency: 1, BestPosition: 3},
		{Date: "27.08.2026", EstablishmentID: "romashka", Query: "завтраки", Frequency: 1, BestPosition: ranking.Unranked},
		{Date: "27.08.2026", EstablishmentID: "lotos", Query: "суши", Frequency: 1, BestPosition: 1},
	}
}

func TestWriter_FileName(t *testing.T) {
	w := NewWriter("/reports", testLogger())
	got := w.FileName(reportTime)
	want := filepath.Join("/reports", "Отчет_по_заведениям_08_2026.xlsx")
	if got != want {
		t.Errorf("FileName: got %q, want %q", got, want)
	}
}

func TestWriter_WriteLayout(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testLogger())

	path, err := w.Write(testEstablishments(), testRecords(), reportTime)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) != 2 {
		t.Fatalf("sheets: got %v, want one per establishment", sheets)
	}
	sheet := "Кафе Ромашка (кафе)"
	if sheets[0] != sheet {
		t.Fatalf("first sheet: got %q, want %q", sheets[0], sheet)
	}

	cell := func(ref string) string {
		v, err := f.GetCellValue(sheet, ref)
		if err != nil {
			t.Fatalf("GetCellValue(%s): %v", ref, err)
		}
		return v
	}

	if got := cell("A1"); got != "Дата" {
		t.Errorf("A1: got %q, want Дата", got)
	}
	if got := cell("B1"); got != "кофе — место" {
		t.Errorf("B1: got %q, want the position header", got)
	}
	if got := cell("C1"); got != "кофе — частота" {
		t.Errorf("C1: got %q, want the frequency header", got)
	}
	if got := cell("A2"); got != "Итого" {
		t.Errorf("A2: got %q, want Итого", got)
	}

	// Dates in chronological order starting at row 3.
	if got := cell("A3"); got != "26.08.2026" {
		t.Errorf("A3: got %q, want 26.08.2026", got)
	}
	if got := cell("A4"); got != "27.08.2026" {
		t.Errorf("A4: got %q, want 27.08.2026", got)
	}
	if got := cell("B3"); got != "5" {
		t.Errorf("B3: got %q, want position 5", got)
	}
	if got := cell("C3"); got != "2" {
		t.Errorf("C3: got %q, want frequency 2", got)
	}

	// Month's best position per query in the totals row.
	if got := cell("B2"); got != "3" {
		t.Errorf("B2: got %q, want best-of-month 3", got)
	}
	formula, err := f.GetCellFormula(sheet, "C2")
	if err != nil {
		t.Fatalf("GetCellFormula: %v", err)
	}
	if formula != "SUM(C3:C4)" {
		t.Errorf("C2 formula: got %q, want SUM(C3:C4)", formula)
	}

	// An unranked record gets its frequency but no position cell.
	if got := cell("D4"); got != "" {
		t.Errorf("D4: got %q, want empty (unranked)", got)
	}
	if got := cell("E4"); got != "1" {
		t.Errorf("E4: got %q, want frequency 1", got)
	}
	if got := cell("D2"); got != "" {
		t.Errorf("D2: got %q, want empty (no ranked observation this month)", got)
	}
}

func TestWriter_BacksUpExistingReport(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testLogger())

	if _, err := w.Write(testEstablishments(), testRecords(), reportTime); err != nil {
		t.Fatalf("first Write: %v", err)
	}
	if _, err := w.Write(testEstablishments(), testRecords(), reportTime); err != nil {
		t.Fatalf("second Write: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.bak-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("backups: got %v, want exactly one", matches)
	}
}

func TestSheetName(t *testing.T) {
	tests := []struct {
		est  config.Establishment
		want string
	}{
		{config.Establishment{Name: "Лотос", Niche: "суши"}, "Лотос (суши)"},
		{config.Establishment{Name: "Лотос"}, "Лотос"},
		{config.Establishment{Name: "Кафе: у моста / набережная", Niche: "кафе"}, "Кафе  у моста   набережная (каф"},
	}
	for _, tt := range tests {
		if got := sheetName(tt.est); got != tt.want {
			t.Errorf("sheetName(%q): got %q, want %q", tt.est.Name, got, tt.want)
		}
	}
	if n := len([]rune(sheetName(config.Establishment{Name: "Очень длинное название заведения на набережной", Niche: "кафе"}))); n > 31 {
		t.Errorf("sheet name length: got %d runes, want <= 31", n)
	}
}

func TestWriter_WriteEmptyMonth(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir, testLogger())

	path, err := w.Write(testEstablishments(), nil, reportTime)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("report file missing: %v", err)
	}
}
