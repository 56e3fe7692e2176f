package helpers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
)

// OutputFormat represents the desired output format.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatCSV  OutputFormat = "csv"
)

// SupportedFormats lists every format accepted by --format.
var SupportedFormats = []OutputFormat{FormatText, FormatJSON, FormatCSV}

// Formatter renders a slice of rows.
//
// Text and CSV output use the `header` struct tag to pick and name columns.
// JSON output encodes the value as is.
type Formatter interface {
	Format(data any, writer io.Writer) error
}

// NewFormatter creates a new Formatter for the given format.
func NewFormatter(format OutputFormat) (Formatter, error) {
	switch format {
	case FormatText:
		return &TextFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	case FormatCSV:
		return &CSVFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// JSONFormatter formats data as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(data any, writer io.Writer) error {
	enc := json.NewEncoder(writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

// TextFormatter formats data as an aligned table.
type TextFormatter struct{}

func (f *TextFormatter) Format(data any, writer io.Writer) error {
	headers, rows, err := tabulate(data)
	if err != nil || headers == nil {
		return err
	}

	w := tabwriter.NewWriter(writer, 0, 0, 3, ' ', 0)
	if _, err := fmt.Fprintln(w, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(w, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return w.Flush()
}

// CSVFormatter formats data as CSV.
type CSVFormatter struct{}

func (f *CSVFormatter) Format(data any, writer io.Writer) error {
	headers, rows, err := tabulate(data)
	if err != nil || headers == nil {
		return err
	}

	w := csv.NewWriter(writer)
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV rows: %w", err)
	}
	return nil
}

// tabulate splits a slice of structs into headers and string rows.
// An empty slice yields nil headers.
func tabulate(data any) ([]string, [][]string, error) {
	val := reflect.ValueOf(data)
	if val.Kind() != reflect.Slice {
		return nil, nil, fmt.Errorf("data must be a slice")
	}

	elemType := val.Type().Elem()
	if elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return nil, nil, fmt.Errorf("slice elements must be structs")
	}
	if val.Len() == 0 {
		return nil, nil, nil
	}

	headers := getHeaders(elemType)
	rows := make([][]string, 0, val.Len())
	for i := 0; i < val.Len(); i++ {
		rows = append(rows, getRowValues(val.Index(i)))
	}
	return headers, rows, nil
}

func getHeaders(t reflect.Type) []string {
	var headers []string
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("header"); tag != "" {
			headers = append(headers, tag)
		}
	}
	return headers
}

func getRowValues(v reflect.Value) []string {
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	t := v.Type()

	var values []string
	for i := 0; i < v.NumField(); i++ {
		if t.Field(i).Tag.Get("header") == "" {
			continue
		}
		switch field := v.Field(i).Interface().(type) {
		case []string:
			values = append(values, strings.Join(field, " "))
		default:
			values = append(values, fmt.Sprintf("%v", field))
		}
	}
	return values
}
