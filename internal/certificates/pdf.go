package certificates

import (
	"bytes"
	"fmt"

	"github.com/geocoder89/certhub/internal/domain/certificate"
	"github.com/go-pdf/fpdf"
)

// PDFRenderer draws a single landscape A4 page. Output depends only on the
// certificate fields so a certificate can be re-rendered on download.
type PDFRenderer struct {
	Issuer  string
	BaseURL string
}

func NewPDFRenderer(issuer, baseURL string) *PDFRenderer {
	if issuer == "" {
		issuer = "CertHub"
	}
	return &PDFRenderer{Issuer: issuer, BaseURL: baseURL}
}

func (r *PDFRenderer) Render(c certificate.Certificate) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("Certificate of Attendance "+c.Code, true)
	pdf.SetAuthor(r.Issuer, true)
	pdf.SetCreationDate(c.IssuedAt)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w, h := pdf.GetPageSize()

	pdf.SetDrawColor(40, 70, 120)
	pdf.SetLineWidth(1.5)
	pdf.Rect(10, 10, w-20, h-20, "D")
	pdf.SetLineWidth(0.4)
	pdf.Rect(14, 14, w-28, h-28, "D")

	pdf.SetY(38)
	pdf.SetTextColor(40, 70, 120)
	pdf.SetFont("Helvetica", "B", 32)
	pdf.CellFormat(0, 14, "Certificate of Attendance", "", 1, "C", false, 0, "")

	pdf.Ln(8)
	pdf.SetTextColor(60, 60, 60)
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 8, "This certifies that", "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetTextColor(20, 20, 20)
	pdf.SetFont("Helvetica", "B", 26)
	pdf.CellFormat(0, 12, tr(c.UserName), "", 1, "C", false, 0, "")

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "", 14)
	pdf.SetTextColor(60, 60, 60)
	pdf.CellFormat(0, 8, "attended", "", 1, "C", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 20)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 10, tr(c.EventTitle), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "held on "+c.EventDate.UTC().Format("2 January 2006"), "", 1, "C", false, 0, "")

	pdf.SetY(h - 42)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(90, 90, 90)
	pdf.CellFormat(0, 6, fmt.Sprintf("Issued %s by %s", c.IssuedAt.UTC().Format("2006-01-02"), tr(r.Issuer)), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "Certificate code: "+c.Code, "", 1, "C", false, 0, "")
	if r.BaseURL != "" {
		pdf.CellFormat(0, 6, "Verify at "+r.BaseURL+"/certificates/verify/"+c.Code, "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render certificate pdf: %w", err)
	}
	return buf.Bytes(), nil
}
