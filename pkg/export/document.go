package export

import "time"

// Field is a labelled value printed in a document header or footer block.
type Field struct {
	Label string
	Value string
}

// Table is a titled grid of rows printed in document order.
type Table struct {
	Title   string
	Headers []string
	// Widths are relative column weights; equal widths are used when empty.
	Widths []float64
	Rows   [][]string
}

// Document describes a structured, layout-agnostic printable document.
type Document struct {
	Title    string
	Subtitle string
	Header   []Field
	Tables   []Table
	Footer   []Field
	Notes    []string

	// CreatedAt is stamped into the PDF metadata; identical documents render
	// to identical bytes only when it is set.
	CreatedAt time.Time
}
