// Package export writes search results to JSON or CSV files.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/maltedev/domeme-scraper/internal/models"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormats(s string) ([]Format, error) {
	var out []Format
	for _, part := range strings.Split(s, ",") {
		switch f := Format(strings.ToLower(strings.TrimSpace(part))); f {
		case FormatJSON, FormatCSV:
			out = append(out, f)
		case "":
		case "both":
			out = append(out, FormatJSON, FormatCSV)
		default:
			return nil, fmt.Errorf("unsupported output format %q", part)
		}
	}
	if len(out) == 0 {
		return []Format{FormatJSON}, nil
	}
	return out, nil
}

var csvHeader = []string{
	"source", "search_keyword", "product_id", "name", "price", "price_value",
	"link", "image", "seller", "grade", "fast_delivery", "collected_at",
}

// Writer stores one file per keyword and format under dir.
type Writer struct {
	dir     string
	formats []Format
	logger  *slog.Logger
}

func NewWriter(dir string, formats []Format, logger *slog.Logger) *Writer {
	if len(formats) == 0 {
		formats = []Format{FormatJSON}
	}
	return &Writer{
		dir:     dir,
		formats: formats,
		logger:  logger.With("component", "export"),
	}
}

// Path is where records for keyword are written in format f.
func (w *Writer) Path(keyword string, f Format) string {
	return filepath.Join(w.dir, fmt.Sprintf("search_results_%s.%s", SafeName(keyword), f))
}

// SafeName makes a keyword usable as a file name component.
func SafeName(keyword string) string {
	r := strings.NewReplacer(" ", "_", "/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")
	name := r.Replace(strings.TrimSpace(keyword))
	if name == "" {
		return "empty"
	}
	return name
}

// Write implements the result sink.
func (w *Writer) Write(_ context.Context, _ models.Source, keyword string, records []models.ProductRecord) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	for _, f := range w.formats {
		path := w.Path(keyword, f)
		if err := w.writeFile(path, f, records); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		w.logger.Info("results saved", "path", path, "records", len(records))
	}
	return nil
}

func (w *Writer) writeFile(path string, f Format, records []models.ProductRecord) error {
	var data []byte
	var err error
	switch f {
	case FormatCSV:
		data, err = EncodeCSV(records)
	default:
		data, err = json.MarshalIndent(records, "", "  ")
	}
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// EncodeCSV renders records with a header row. An unknown price leaves the
// price_value column empty.
func EncodeCSV(records []models.ProductRecord) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(csvHeader); err != nil {
		return nil, err
	}
	for _, r := range records {
		value := ""
		if v, ok := r.Price(); ok {
			value = strconv.Itoa(v)
		}
		row := []string{
			string(r.Source), r.SearchKeyword, r.ProductID, r.Name, r.PriceDisplay, value,
			r.Link, r.Image, r.Seller, r.Grade, strconv.FormatBool(r.FastDelivery),
			r.CollectedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	return buf.Bytes(), cw.Error()
}
