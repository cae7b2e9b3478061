package importer

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()

	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestParseExcel(t *testing.T) {
	data := buildWorkbook(t, [][]interface{}{
		{"Student_ID", "First Name", "Last Name", "Email", "Section"},
		{"12345678", "Ana", "Reyes", "ana@example.edu", "A-1"},
		{"", "", "", "", ""},
		{"87654321", "Ben", "Cruz", "", "B-2"},
	})

	rows, err := NewParser().Parse(data, "roster.xlsx")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("parsed %d rows, want 2 (blank row skipped)", len(rows))
	}

	first := rows[0]
	if first.StudentID != "12345678" || first.FirstName != "Ana" || first.Section != "A-1" {
		t.Errorf("first row = %+v", first)
	}
	if first.RowNumber != 2 {
		t.Errorf("first data row number = %d, want 2 (header is row 1)", first.RowNumber)
	}
	if rows[1].RowNumber != 4 {
		t.Errorf("second data row number = %d, want its sheet position 4", rows[1].RowNumber)
	}
}

func TestParseCSVTrimsAndNumbersRows(t *testing.T) {
	data := []byte("student_id,first_name,last_name\n 12345678 , Ana ,Reyes\n")

	rows, err := NewParser().Parse(data, "roster.csv")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("parsed %d rows, want 1", len(rows))
	}
	if rows[0].StudentID != "12345678" || rows[0].FirstName != "Ana" {
		t.Errorf("row = %+v, want whitespace trimmed", rows[0])
	}
}

func TestParseHeaderOnlyFileRejected(t *testing.T) {
	data := []byte("student_id,first_name,last_name\n")
	if _, err := NewParser().Parse(data, "roster.csv"); err == nil {
		t.Fatal("Parse accepted a file with no data rows")
	}
}

func TestParseRaggedCSVRows(t *testing.T) {
	// Short rows happen when trailing cells are omitted; missing columns read
	// as empty rather than failing the whole file.
	data := []byte("student_id,first_name,last_name,email\n12345678,Ana,Reyes\n")

	rows, err := NewParser().Parse(data, "roster.csv")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows[0].Email != "" {
		t.Errorf("email = %q, want empty for a short row", rows[0].Email)
	}
}
