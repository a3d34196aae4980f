package alerts

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
	"github.com/mattn/go-isatty"

	"github.com/agentstation/sails/internal/cmd/output"
)

// Writer writes alerts to an io.Writer. Table output is plain text, colored
// when the destination is a terminal; json and yaml write one document per
// alert.
type Writer struct {
	w       io.Writer
	format  output.Format
	color   bool
	details bool
}

// NewWriter creates a Writer for the given format.
func NewWriter(w io.Writer, format output.Format) *Writer {
	return &Writer{
		w:       w,
		format:  format,
		color:   isTerminal(w),
		details: true,
	}
}

// WithColor forces colored output on or off.
func (w *Writer) WithColor(on bool) *Writer {
	w.color = on
	return w
}

// WithDetails shows or hides detail lines in text output.
func (w *Writer) WithDetails(on bool) *Writer {
	w.details = on
	return w
}

type alertData struct {
	Level   string   `json:"level" yaml:"level"`
	Message string   `json:"message" yaml:"message"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Write writes one alert.
func (w *Writer) Write(a *Alert) error {
	switch w.format {
	case output.FormatJSON, output.FormatYAML:
		data := alertData{Level: a.Level.String(), Message: a.Message, Details: a.Details}
		if a.Err != nil {
			data.Error = a.Err.Error()
		}
		if w.format == output.FormatJSON {
			enc := json.NewEncoder(w.w)
			enc.SetIndent("", "  ")
			return enc.Encode(data)
		}
		b, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.w.Write(b)
		return err
	}

	line := a.String()
	if w.color {
		line = a.Level.color() + line + "\033[0m"
	}
	if _, err := fmt.Fprintln(w.w, line); err != nil {
		return err
	}
	if w.details {
		for _, d := range a.Details {
			if _, err := fmt.Fprintf(w.w, "   %s\n", d); err != nil {
				return err
			}
		}
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
