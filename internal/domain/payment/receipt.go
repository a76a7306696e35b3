package payment

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// ReceiptData is what goes on a payment receipt.
type ReceiptData struct {
	Receipt         string
	Name            string
	Phone           string
	Email           string
	AppointmentType string
	PaymentID       string
	OrderID         string
	Amount          int64
	Currency        string
	PaidAt          time.Time
}

// FormatAmount renders minor units as "INR 1500.00".
func FormatAmount(minor int64, currency string) string {
	return fmt.Sprintf("%s %d.%02d", currency, minor/100, minor%100)
}

// RenderReceipt produces a one page A4 PDF receipt.
func RenderReceipt(d ReceiptData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Payment receipt "+d.Receipt, false)
	pdf.SetAuthor("MedBook", false)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, fmt.Sprintf("No. %s  dated  %s", d.Receipt, d.PaidAt.Format("02 Jan 2006")), "", 1, "C", false, 0, "")
	hr(pdf)

	section(pdf, "Patient")
	kv(pdf, tr, "Name", d.Name)
	kv(pdf, tr, "Phone", d.Phone)
	kv(pdf, tr, "Email", d.Email)
	hr(pdf)

	section(pdf, "Payment")
	kv(pdf, tr, "Appointment", humanize(d.AppointmentType))
	kv(pdf, tr, "Amount", FormatAmount(d.Amount, d.Currency))
	kv(pdf, tr, "Payment ID", d.PaymentID)
	kv(pdf, tr, "Order ID", d.OrderID)
	hr(pdf)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.MultiCell(0, 5, "This receipt was generated electronically and does not require a signature.", "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

func kv(pdf *gofpdf.Fpdf, tr func(string) string, key, value string) {
	if value == "" {
		value = "-"
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(45, 7, key, "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
}

func hr(pdf *gofpdf.Fpdf) {
	pdf.Ln(2)
	x, y := pdf.GetXY()
	w, _ := pdf.GetPageSize()
	left, _, right, _ := pdf.GetMargins()
	pdf.Line(x, y, w-right, y)
	pdf.SetX(left)
	pdf.Ln(2)
}

func humanize(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] == '_' {
			b[i] = ' '
		}
	}
	if len(b) > 0 && b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
