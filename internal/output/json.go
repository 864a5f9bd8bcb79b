package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dshills/diffgate/internal/gate"
)

// JSONWriter outputs the full report as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, report *gate.Report) error {
	out := *report
	if out.Edits == nil {
		out.Edits = []gate.ScopedEdit{}
	}
	data, err := json.MarshalIndent(&out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}
