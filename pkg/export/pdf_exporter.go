package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// Report is a titled PDF with summary lines above a table.
type Report struct {
	Title   string
	Summary []string
	Table   Dataset
	// Widths are relative column weights; equal widths when empty.
	Widths []float64
}

// PDFExporter renders reports with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// ContentType of rendered documents.
func (e *PDFExporter) ContentType() string { return "application/pdf" }

// Render creates an A4 portrait document. Cell text longer than its column is truncated.
func (e *PDFExporter) Render(report Report) ([]byte, error) {
	if len(report.Table.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if report.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(strings.ToUpper(report.Title)), "", 1, "C", false, 0, "")
		pdf.Ln(2)
	}
	if len(report.Summary) > 0 {
		pdf.SetFont("Arial", "", 10)
		for _, line := range report.Summary {
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
		pdf.Ln(4)
	}

	widths := columnWidths(190.0, len(report.Table.Headers), report.Widths)
	header := func() {
		pdf.SetFont("Arial", "B", 10)
		pdf.SetFillColor(230, 230, 230)
		for i, h := range report.Table.Headers {
			pdf.CellFormat(widths[i], 8, tr(h), "1", 0, "C", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Arial", "", 9)
	}
	header()

	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	for _, row := range report.Table.Rows {
		if pdf.GetY()+7 > pageHeight-bottom {
			pdf.AddPage()
			header()
		}
		for i := range report.Table.Headers {
			var value string
			if i < len(row) {
				value = CellString(row[i])
			}
			pdf.CellFormat(widths[i], 7, tr(fit(pdf, value, widths[i]-2)), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(total float64, n int, weights []float64) []float64 {
	widths := make([]float64, n)
	sum := 0.0
	if len(weights) == n {
		for _, w := range weights {
			sum += w
		}
	}
	for i := range widths {
		if sum > 0 {
			widths[i] = total * weights[i] / sum
		} else {
			widths[i] = total / float64(n)
		}
	}
	return widths
}

func fit(pdf *gofpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
