// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one data line of an uploaded file keyed by its original headers.
// Line is the 1-based line number in the file, counting the header.
type Row struct {
	Line   int
	Values map[string]string
}

// Sheet is a parsed upload: the header row plus the data rows.
type Sheet struct {
	Headers []string
	Rows    []Row
}

// Format is an upload or export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// FormatFromFilename guesses the format from a file extension, defaulting
// to CSV.
func FormatFromFilename(name string) Format {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return FormatXLSX
	}
	return FormatCSV
}

// Read parses r in the given format.
func Read(r io.Reader, f Format) (*Sheet, error) {
	if f == FormatXLSX {
		return ReadXLSX(r)
	}
	return ReadCSV(r)
}

// ReadCSV parses a CSV file whose first line is the header row. Rows may be
// shorter or longer than the header; extra cells are dropped.
func ReadCSV(r io.Reader) (*Sheet, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}

	sheet := &Sheet{Headers: trimAll(headers)}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if row, ok := makeRow(sheet.Headers, record, line); ok {
			sheet.Rows = append(sheet.Rows, row)
		}
	}
	return sheet, nil
}

// ReadXLSX parses the "Products" sheet of a workbook, or its first sheet
// when there is none.
func ReadXLSX(r io.Reader) (*Sheet, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	name := sheets[0]
	for _, s := range sheets {
		if strings.EqualFold(s, "Products") {
			name = s
			break
		}
	}

	rows, err := f.GetRows(name)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", name, err)
	}
	if len(rows) == 0 {
		return nil, errors.New("file is empty")
	}

	sheet := &Sheet{Headers: trimAll(rows[0])}
	for i, record := range rows[1:] {
		if row, ok := makeRow(sheet.Headers, record, i+2); ok {
			sheet.Rows = append(sheet.Rows, row)
		}
	}
	return sheet, nil
}

// makeRow pairs cells with headers. Entirely blank lines are skipped.
func makeRow(headers, record []string, line int) (Row, bool) {
	values := make(map[string]string, len(headers))
	blank := true
	for i, v := range record {
		if i >= len(headers) {
			break
		}
		v = strings.TrimSpace(v)
		if v != "" {
			blank = false
		}
		values[headers[i]] = v
	}
	return Row{Line: line, Values: values}, !blank
}

func trimAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.TrimSpace(s)
	}
	return out
}
