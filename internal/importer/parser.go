package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"examscan-pipeline/internal/model"
	pkgerr "examscan-pipeline/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// headerSynonyms maps the canonical field names to the spellings faculty
// spreadsheets actually arrive with. Headers are matched case-insensitively
// after stripping spaces, underscores, and hyphens.
var headerSynonyms = map[string][]string{
	"student_id": {"studentid", "id", "studentnumber", "studentno", "idnumber"},
	"first_name": {"firstname", "givenname", "first"},
	"last_name":  {"lastname", "surname", "familyname", "last"},
	"email":      {"email", "mail", "emailaddress"},
	"section":    {"section", "class", "group"},
}

var requiredColumns = []string{"student_id", "first_name", "last_name"}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse maps a tabular file into import rows by header name. Row numbers are
// 1-based file positions (header is row 1) so issues point at the sheet the
// operator is looking at.
func (p *Parser) Parse(data []byte, fileName string) ([]model.ImportRow, error) {
	var table [][]string
	var err error
	if strings.HasSuffix(strings.ToLower(fileName), ".csv") {
		table, err = p.readCSV(data)
	} else {
		table, err = p.readExcel(data)
	}
	if err != nil {
		return nil, err
	}

	if len(table) < 2 {
		return nil, pkgerr.ErrEmptyFile
	}

	columnMap, err := p.mapHeader(table[0])
	if err != nil {
		return nil, err
	}

	getValue := func(row []string, field string) string {
		if idx, ok := columnMap[field]; ok && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var rows []model.ImportRow
	for i, row := range table[1:] {
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, model.ImportRow{
			RowNumber: i + 2,
			StudentID: getValue(row, "student_id"),
			FirstName: getValue(row, "first_name"),
			LastName:  getValue(row, "last_name"),
			Email:     getValue(row, "email"),
			Section:   getValue(row, "section"),
		})
	}

	if len(rows) == 0 {
		return nil, pkgerr.ErrEmptyFile
	}
	return rows, nil
}

func (p *Parser) readExcel(data []byte) ([][]string, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, pkgerr.ErrInvalidFileType
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func (p *Parser) readCSV(data []byte) ([][]string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	var rows [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse CSV: %w", err)
		}
		rows = append(rows, record)
	}
	return rows, nil
}

func (p *Parser) mapHeader(header []string) (map[string]int, error) {
	columnMap := make(map[string]int)
	for i, col := range header {
		normalized := normalizeHeader(col)
		for canonical, synonyms := range headerSynonyms {
			if _, taken := columnMap[canonical]; taken {
				continue
			}
			for _, syn := range synonyms {
				if normalized == syn {
					columnMap[canonical] = i
					break
				}
			}
		}
	}

	for _, col := range requiredColumns {
		if _, ok := columnMap[col]; !ok {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}
	return columnMap, nil
}

func normalizeHeader(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	replacer := strings.NewReplacer(" ", "", "_", "", "-", "")
	return replacer.Replace(col)
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
