package analysis

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aluiziolira/bookcrawl/models"
)

const utf8BOM = "\ufeff"

// Table is a header plus string rows, rendered as CSV.
type Table struct {
	Header []string
	Rows   [][]string
}

// BooksTable renders books in the shared CSV column order.
func BooksTable(books []*models.Book) Table {
	rows := make([][]string, 0, len(books))
	for _, book := range books {
		rows = append(rows, book.CSVRecord())
	}
	return Table{Header: models.CSVHeader, Rows: rows}
}

// WriteCSV writes the table as UTF-8 CSV prefixed with a byte order mark.
func (t Table) WriteCSV(w io.Writer) error {
	if _, err := io.WriteString(w, utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("write rows: %w", err)
	}
	return nil
}

// Bytes returns the CSV encoding of the table.
func (t Table) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := t.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes the table to path, creating parent directories.
func (t Table) WriteFile(path string) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
