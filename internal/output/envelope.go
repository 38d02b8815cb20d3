package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
	Field string `json:"field,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatJSON Format = iota
	FormatQuiet
	FormatText
)

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
}

// Writer handles envelope rendering.
type Writer struct {
	opts Options
}

// New creates an output writer. A nil opts.Writer means stdout.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// OK outputs a success response.
func (w *Writer) OK(data any) error {
	return w.OKSummary(data, "")
}

// OKSummary outputs a success response with a one-line summary.
func (w *Writer) OKSummary(data any, summary string) error {
	switch w.opts.Format {
	case FormatQuiet:
		return w.writeJSON(data)
	case FormatText:
		if summary != "" {
			fmt.Fprintln(w.opts.Writer, summary)
			return nil
		}
		return w.writeJSON(data)
	default:
		return w.writeJSON(&Response{OK: true, Data: data, Summary: summary})
	}
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	if w.opts.Format == FormatText {
		fmt.Fprintf(w.opts.Writer, "error: %s\n", e.Error())
		return nil
	}
	return w.writeJSON(&ErrorResponse{
		OK:    false,
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
		Field: e.Field,
	})
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
