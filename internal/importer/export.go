// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"catalogadmin/internal/hierarchy"
	"catalogadmin/internal/models"
)

// CategorySource provides the category forest used to spell out paths.
type CategorySource interface {
	Forest(ctx context.Context) (*hierarchy.Forest, error)
}

// ProductSource streams every product.
type ProductSource interface {
	ExportRows(ctx context.Context, fn func(*models.Product) error) error
}

// Exporter writes the catalog in the same column layout the importer reads,
// so an export can be edited and imported back.
type Exporter struct {
	categories CategorySource
	products   ProductSource
}

// NewExporter returns an Exporter.
func NewExporter(categories CategorySource, products ProductSource) *Exporter {
	return &Exporter{categories: categories, products: products}
}

// ExportHeaders is the header row of an export.
func ExportHeaders() []string {
	headers := []string{
		FieldSKU, FieldName, FieldDescription, FieldPrice, FieldCost,
		FieldStockQuantity, FieldVendor, FieldStatus,
	}
	for _, t := range models.CategoryTypes() {
		headers = append(headers, RootField(t))
		for n := 1; n <= MaxSubcategoryLevels; n++ {
			headers = append(headers, SubcategoryField(t, n))
		}
	}
	return headers
}

// rowWriter is implemented by the CSV and XLSX writers.
type rowWriter interface {
	write(record []string) error
	close() error
}

// Export writes every product to w in format f and returns the number of
// products written.
func (x *Exporter) Export(ctx context.Context, w io.Writer, f Format) (int, error) {
	forest, err := x.categories.Forest(ctx)
	if err != nil {
		return 0, err
	}

	var rw rowWriter
	if f == FormatXLSX {
		rw, err = newXLSXWriter(w)
		if err != nil {
			return 0, err
		}
	} else {
		rw = &csvWriter{w: csv.NewWriter(w)}
	}

	if err := rw.write(ExportHeaders()); err != nil {
		return 0, err
	}

	var n, truncated int
	err = x.products.ExportRows(ctx, func(p *models.Product) error {
		record, cut := exportRecord(forest, p)
		if cut {
			truncated++
		}
		n++
		return rw.write(record)
	})
	if err != nil {
		if xw, ok := rw.(*xlsxWriter); ok {
			xw.file.Close()
		}
		return n, fmt.Errorf("export rows: %w", err)
	}
	if truncated > 0 {
		slog.Warn("export truncated category paths deeper than the column layout", "products", truncated)
	}
	return n, rw.close()
}

// exportRecord renders one product. The second result reports whether a
// category path had to be cut to fit the subcategory columns.
func exportRecord(forest *hierarchy.Forest, p *models.Product) ([]string, bool) {
	record := []string{
		p.SKU, p.Name, p.Description, formatMoney(p.Price), formatMoney(p.Cost),
		strconv.Itoa(p.StockQuantity), p.Vendor, string(p.Status),
	}
	cut := false
	for _, t := range models.CategoryTypes() {
		cols := make([]string, 1+MaxSubcategoryLevels)
		if id := p.CategoryID(t); id != nil {
			path := forest.PathNames(*id)
			if len(path) > len(cols) {
				path = path[:len(cols)]
				cut = true
			}
			copy(cols, path)
		}
		record = append(record, cols...)
	}
	return record, cut
}

func formatMoney(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

type csvWriter struct {
	w *csv.Writer
}

func (c *csvWriter) write(record []string) error {
	return c.w.Write(record)
}

func (c *csvWriter) close() error {
	c.w.Flush()
	return c.w.Error()
}

const exportSheet = "Products"

type xlsxWriter struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	header int
	row    int
}

func newXLSXWriter(out io.Writer) (*xlsxWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stream writer: %w", err)
	}
	return &xlsxWriter{out: out, file: f, stream: sw, header: header}, nil
}

func (x *xlsxWriter) write(record []string) error {
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	values := make([]any, len(record))
	for i, v := range record {
		if x.row == 1 {
			values[i] = excelize.Cell{StyleID: x.header, Value: v}
		} else {
			values[i] = v
		}
	}
	return x.stream.SetRow(cell, values)
}

func (x *xlsxWriter) close() error {
	defer x.file.Close()
	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("flush xlsx: %w", err)
	}
	if err := x.file.Write(x.out); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
