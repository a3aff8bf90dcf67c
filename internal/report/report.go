// Package report renders the daily sales report as CSV or XLSX for download.
package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"siampos/backend/internal/domain"
)

func WriteCSV(w io.Writer, rpt domain.DailyReport) error {
	cw := csv.NewWriter(w)
	_ = cw.Write([]string{"section", "key", "value"})
	_ = cw.Write([]string{"summary", "date", rpt.Date})
	_ = cw.Write([]string{"summary", "sales", strconv.FormatInt(rpt.Sales, 10)})
	_ = cw.Write([]string{"summary", "grossTotal", strconv.FormatInt(rpt.GrossTotal, 10)})
	_ = cw.Write([]string{"summary", "discount", strconv.FormatInt(rpt.Discount, 10)})
	_ = cw.Write([]string{"summary", "vat", strconv.FormatInt(rpt.VAT, 10)})
	_ = cw.Write([]string{"summary", "netTotal", strconv.FormatInt(rpt.NetTotal, 10)})
	_ = cw.Write([]string{"summary", "refundTotal", strconv.FormatInt(rpt.RefundTotal, 10)})
	for _, bucket := range rpt.ByPayment {
		_ = cw.Write([]string{"payment", bucket.Method + "_sales", strconv.FormatInt(bucket.Sales, 10)})
		_ = cw.Write([]string{"payment", bucket.Method + "_total", strconv.FormatInt(bucket.Total, 10)})
	}
	cw.Flush()
	return cw.Error()
}

func WriteXLSX(w io.Writer, rpt domain.DailyReport) error {
	f := excelize.NewFile()
	sheet := "Daily Report"
	index, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	summary := [][]any{
		{"Date", rpt.Date},
		{"Sales", rpt.Sales},
		{"Gross Total", rpt.GrossTotal},
		{"Discount", rpt.Discount},
		{"VAT", rpt.VAT},
		{"Net Total", rpt.NetTotal},
		{"Refund Total", rpt.RefundTotal},
	}
	for r, pair := range summary {
		for c, v := range pair {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	headerRow := len(summary) + 2
	header := []string{"Payment Method", "Sales", "Total"}
	for c, v := range header {
		cell, _ := excelize.CoordinatesToCellName(c+1, headerRow)
		_ = f.SetCellValue(sheet, cell, v)
	}
	for r, bucket := range rpt.ByPayment {
		values := []any{bucket.Method, bucket.Sales, bucket.Total}
		for c, v := range values {
			cell, _ := excelize.CoordinatesToCellName(c+1, headerRow+1+r)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 18)
	_ = f.SetColWidth(sheet, "B", "C", 14)

	_, err = f.WriteTo(w)
	return err
}
