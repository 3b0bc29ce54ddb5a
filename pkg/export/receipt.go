package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptField is a single labelled line on a payment receipt.
type ReceiptField struct {
	Label string
	Value string
}

// Receipt describes the content of a rendered payment receipt.
type Receipt struct {
	Title     string
	Reference string
	Fields    []ReceiptField
	Footer    string
}

// ReceiptRenderer produces PDF payment receipts.
type ReceiptRenderer struct{}

// NewReceiptRenderer constructs a receipt renderer.
func NewReceiptRenderer() *ReceiptRenderer {
	return &ReceiptRenderer{}
}

// Render creates a single-page PDF receipt.
func (r *ReceiptRenderer) Render(receipt Receipt) ([]byte, error) {
	if receipt.Reference == "" {
		return nil, fmt.Errorf("receipt requires a payment reference")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 20, 15)
	pdf.AddPage()

	title := receipt.Title
	if title == "" {
		title = "PAYMENT RECEIPT"
	}
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, title, "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Reference: %s", receipt.Reference), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	for _, field := range receipt.Fields {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(60, 8, field.Label, "1", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(120, 8, field.Value, "1", 1, "L", false, 0, "")
	}

	if receipt.Footer != "" {
		pdf.Ln(10)
		pdf.SetFont("Arial", "I", 8)
		pdf.MultiCell(0, 5, receipt.Footer, "", "C", false)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render receipt pdf: %w", err)
	}
	return buf.Bytes(), nil
}
