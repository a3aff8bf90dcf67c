package report

import (
	"bytes"
	"strings"
	"testing"

	"siampos/backend/internal/domain"
)

func sampleReport() domain.DailyReport {
	return domain.DailyReport{
		Date:        "2026-08-30",
		Sales:       3,
		GrossTotal:  320,
		Discount:    20,
		VAT:         0,
		NetTotal:    300,
		RefundTotal: 25,
		ByPayment: []domain.DailyReportPayment{
			{Method: "cash", Sales: 2, Total: 200},
			{Method: "qr", Sales: 1, Total: 100},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleReport()); err != nil {
		t.Fatalf("write csv failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"summary,date,2026-08-30",
		"summary,netTotal,300",
		"summary,refundTotal,25",
		"payment,cash_total,200",
		"payment,qr_sales,1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("csv output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteXLSXProducesWorkbook(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteXLSX(&buf, sampleReport()); err != nil {
		t.Fatalf("write xlsx failed: %v", err)
	}
	// xlsx files are zip archives
	if buf.Len() < 4 || !bytes.HasPrefix(buf.Bytes(), []byte("PK")) {
		t.Fatalf("expected a zip-based workbook, got %d bytes", buf.Len())
	}
}
