package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const pageWidth = 190.0

// PDFExporter renders datasets and documents into A4 PDFs.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	rows := make([][]string, 0, len(data.Rows))
	for _, row := range data.Rows {
		record := make([]string, len(data.Headers))
		for i, header := range data.Headers {
			record[i] = row[header]
		}
		rows = append(rows, record)
	}
	return e.RenderDocument(Document{
		Title:  title,
		Tables: []Table{{Headers: data.Headers, Rows: rows}},
	})
}

// RenderDocument lays out a Document: title block, header fields, tables, footer and notes.
func (e *PDFExporter) RenderDocument(doc Document) ([]byte, error) {
	if len(doc.Tables) == 0 {
		return nil, fmt.Errorf("pdf requires at least one table")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	if !doc.CreatedAt.IsZero() {
		pdf.SetCreationDate(doc.CreatedAt)
	}
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if doc.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(doc.Title)), "", 1, "C", false, 0, "")
	}
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	writeFields(pdf, tr, doc.Header)

	for _, table := range doc.Tables {
		if err := writeTable(pdf, tr, table); err != nil {
			return nil, err
		}
	}

	writeFields(pdf, tr, doc.Footer)

	if len(doc.Notes) > 0 {
		pdf.SetFont("Arial", "I", 9)
		for _, note := range doc.Notes {
			pdf.MultiCell(0, 5, tr(note), "", "L", false)
		}
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("layout pdf: %w", err)
	}
	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func writeFields(pdf *gofpdf.Fpdf, tr func(string) string, fields []Field) {
	if len(fields) == 0 {
		return
	}
	half := pageWidth / 2
	for i, field := range fields {
		pdf.SetFont("Arial", "B", 9)
		pdf.CellFormat(35, 6, tr(field.Label), "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 9)
		ln := 0
		if i%2 == 1 || i == len(fields)-1 {
			ln = 1
		}
		pdf.CellFormat(half-35, 6, tr(field.Value), "", ln, "", false, 0, "")
	}
	pdf.Ln(3)
}

func writeTable(pdf *gofpdf.Fpdf, tr func(string) string, table Table) error {
	if len(table.Headers) == 0 {
		return fmt.Errorf("table %q has no headers", table.Title)
	}
	widths, err := columnWidths(table)
	if err != nil {
		return err
	}
	if table.Title != "" {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(0, 7, tr(table.Title), "", 1, "", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range table.Headers {
		pdf.CellFormat(widths[i], 7, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range table.Rows {
		for i := range table.Headers {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			align := "C"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(widths[i], 6, tr(value), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(3)
	return nil
}

func columnWidths(table Table) ([]float64, error) {
	n := len(table.Headers)
	widths := make([]float64, n)
	if len(table.Widths) == 0 {
		for i := range widths {
			widths[i] = pageWidth / float64(n)
		}
		return widths, nil
	}
	if len(table.Widths) != n {
		return nil, fmt.Errorf("table %q: %d widths for %d headers", table.Title, len(table.Widths), n)
	}
	var sum float64
	for _, w := range table.Widths {
		if w <= 0 {
			return nil, fmt.Errorf("table %q: non-positive column width", table.Title)
		}
		sum += w
	}
	for i, w := range table.Widths {
		widths[i] = pageWidth * w / sum
	}
	return widths, nil
}
