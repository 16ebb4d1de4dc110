package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset defines tabular export content.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders Dataset records into CSV bytes.
type CSVExporter struct{}

// NewCSVExporter builds a CSV exporter.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderDocument flattens a Document into CSV: header fields as label/value
// pairs, then each table preceded by its title, separated by empty records.
func (e *CSVExporter) RenderDocument(doc Document) ([]byte, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("csv requires at least one table")
	}
	buf := &bytes.Buffer{}
	writer := csv.NewWriter(buf)

	records := make([][]string, 0)
	if doc.Title != "" {
		records = append(records, []string{doc.Title, doc.Subtitle})
	}
	for _, field := range doc.Header {
		records = append(records, []string{field.Label, field.Value})
	}
	for _, table := range doc.Tables {
		if len(table.Headers) == 0 {
			return nil, fmt.Errorf("table %q has no headers", table.Title)
		}
		records = append(records, []string{})
		if table.Title != "" {
			records = append(records, []string{table.Title})
		}
		records = append(records, table.Headers)
		records = append(records, table.Rows...)
	}
	if len(doc.Footer) > 0 {
		records = append(records, []string{})
		for _, field := range doc.Footer {
			records = append(records, []string{field.Label, field.Value})
		}
	}
	for _, note := range doc.Notes {
		records = append(records, []string{note})
	}

	for _, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
