package licence

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

// DocumentGenerator renders a licence payload into a printable artifact.
type DocumentGenerator interface {
	Render(ctx context.Context, payload LicencePayload, councilName, verifyURL string) ([]byte, error)
}

const qrImageName = "verify-qr"

type PDFGenerator struct{}

func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

func (g *PDFGenerator) Render(ctx context.Context, payload LicencePayload, councilName, verifyURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qr, err := qrcode.Encode(verifyURL, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("encode verify qr: %w", err)
	}

	issued, _ := time.Parse(TimestampLayout, payload.IssueDate)

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(fmt.Sprintf("Licence %s", payload.LicenceNo), true)
	pdf.SetAuthor(councilName, true)
	pdf.SetSubject(payload.ServiceName, true)
	pdf.SetCreator("licensing-controlplane", false)
	if !issued.IsZero() {
		pdf.SetCreationDate(issued)
	}
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 12, tr(councilName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, tr(payload.ServiceName), "", 1, "C", false, 0, "")
	pdf.Ln(8)

	rows := [][2]string{
		{"Licence No", payload.LicenceNo},
		{"Trading Name", payload.TradingName},
		{"Licensee", payload.ApplicantName},
		{"Premises", payload.PremisesAddress},
		{"Issued", displayDate(payload.IssueDate)},
		{"Expires", displayDate(payload.ExpiryDate)},
	}
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(45, 8, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 8, tr(row[1]), "", "L", false)
	}

	pdf.Ln(10)
	pdf.RegisterImageOptionsReader(qrImageName, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(qr))
	pdf.ImageOptions(qrImageName, 20, pdf.GetY(), 40, 40, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	pdf.SetXY(65, pdf.GetY()+10)
	pdf.SetFont("Helvetica", "", 9)
	pdf.MultiCell(0, 5, "Scan or visit the address below to verify this licence:\n"+verifyURL, "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// displayDate turns a payload timestamp into the human form printed on
// certificates and returned by verification.
func displayDate(ts string) string {
	t, err := time.Parse(TimestampLayout, ts)
	if err != nil {
		return ts
	}
	return t.Format(DisplayDateLayout)
}

const DisplayDateLayout = "02 January 2006"
