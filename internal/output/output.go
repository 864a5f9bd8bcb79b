package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dshills/diffgate/internal/gate"
)

// Writer writes a report in a specific format.
type Writer interface {
	Write(w io.Writer, report *gate.Report) error
}

// Options tune the writers that need more than the report.
type Options struct {
	// Color enables ANSI colours in text output.
	Color bool
	// ReadFile returns the current content of a file named in the report,
	// letting the patch writer emit context lines.
	ReadFile func(path string) ([]byte, error)
}

// GetWriter returns a writer for the specified format.
func GetWriter(format string, opts Options) (Writer, error) {
	switch format {
	case "text", "":
		return &TextWriter{Color: opts.Color}, nil
	case "json":
		return &JSONWriter{}, nil
	case "patch":
		return &PatchWriter{ReadFile: opts.ReadFile}, nil
	case "sarif":
		return &SARIFWriter{}, nil
	case "markdown":
		return &MarkdownWriter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// WriteReport writes the report to the specified output (file path or stdout).
// Colour is only used when writing text to a terminal.
func WriteReport(report *gate.Report, format, outPath string, opts Options) error {
	var w io.Writer
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
		opts.Color = false
	} else {
		w = os.Stdout
		opts.Color = opts.Color && term.IsTerminal(int(os.Stdout.Fd()))
	}

	writer, err := GetWriter(format, opts)
	if err != nil {
		return err
	}
	return writer.Write(w, report)
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...interface{}) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}
