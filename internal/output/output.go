// Package output renders command results in text, JSON, or YAML.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat resolves a format flag value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format: %q (want text, json, or yaml)", s)
	}
}

// Writer renders values in one configured format.
type Writer struct {
	format Format
	w      io.Writer
}

// NewWriter creates a writer rendering to w in the given format.
func NewWriter(w io.Writer, format Format) *Writer {
	return &Writer{format: format, w: w}
}

// Write renders v. JSON and YAML encode the value structurally. Text prints
// v's String form; a slice in text mode prints one element per line, so a
// list of outcomes reads like a report.
func (w *Writer) Write(v any) error {
	switch w.format {
	case FormatJSON:
		enc := json.NewEncoder(w.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return w.writeText(v)
	}
}

func (w *Writer) writeText(v any) error {
	if s, ok := v.(fmt.Stringer); ok {
		_, err := fmt.Fprintln(w.w, s.String())
		return err
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if err := w.writeText(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		return nil
	}

	_, err := fmt.Fprintf(w.w, "%+v\n", v)
	return err
}
