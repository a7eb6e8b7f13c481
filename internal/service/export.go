package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tindahan/backend/internal/apperror"
	"tindahan/backend/internal/domain"
)

const (
	ExportXLSX = "xlsx"
	ExportCSV  = "csv"
)

type Export struct {
	Data        []byte
	ContentType string
	FileName    string
}

var summaryHeader = []string{
	"Date", "Orders", "Gross Sales", "Expenses", "Net Sales",
	"Cash", "GCash", "GrabFood", "FoodPanda", "Deposited",
}

func summaryRecord(label string, s domain.DailySummary) []string {
	return []string{
		label,
		strconv.Itoa(s.Orders),
		s.TotalGrossSales.StringFixed(2),
		s.TotalExpenses.StringFixed(2),
		s.TotalNetSales.StringFixed(2),
		s.TotalCash.StringFixed(2),
		s.TotalGCash.StringFixed(2),
		s.TotalGrabFood.StringFixed(2),
		s.TotalFoodPanda.StringFixed(2),
		s.TotalDeposited.StringFixed(2),
	}
}

// ExportSummaries renders the range as a spreadsheet or CSV download.
func (s *Service) ExportSummaries(ctx context.Context, from time.Time, to time.Time, format string) (Export, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return Export{}, err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = ExportXLSX
	}
	if format != ExportXLSX && format != ExportCSV {
		return Export{}, apperror.NewValidation("format must be xlsx or csv").WithDetail("format", format)
	}

	summaries, err := s.Summaries(ctx, from, to)
	if err != nil {
		return Export{}, err
	}
	rows := make([][]string, 0, len(summaries.Days)+2)
	rows = append(rows, summaryHeader)
	for _, day := range summaries.Days {
		rows = append(rows, summaryRecord(domain.FormatDate(day.Date), day))
	}
	rows = append(rows, summaryRecord("Total", summaries.Total))

	name := fmt.Sprintf("summary-%s-to-%s.%s", summaries.From, summaries.To, format)
	if format == ExportCSV {
		data, err := writeCSV(rows)
		if err != nil {
			return Export{}, apperror.NewInternal(err)
		}
		return Export{Data: data, ContentType: "text/csv; charset=utf-8", FileName: name}, nil
	}

	data, err := writeXLSX(rows)
	if err != nil {
		return Export{}, apperror.NewInternal(err)
	}
	return Export{
		Data:        data,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		FileName:    name,
	}, nil
}

func writeCSV(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeXLSX(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	const sheet = "Summary"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(row))
		for j, v := range row {
			// Keep dates and labels as text; everything after them is numeric.
			if j == 0 || i == 0 {
				values[j] = v
				continue
			}
			if n, err := strconv.ParseFloat(v, 64); err == nil {
				values[j] = n
			} else {
				values[j] = v
			}
		}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(sheet, "A", "J", 14); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
