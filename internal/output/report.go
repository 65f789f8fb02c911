package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// WriteJSON writes v as indented JSON, the final machine-readable record of
// a run.
func WriteJSON(w io.Writer, v any) error {
	if w == nil {
		return fmt.Errorf("report writer is nil")
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

// WriteJSONFile writes v as indented JSON to path, creating or truncating
// the file.
func WriteJSONFile(path string, v any) error {
	if path == "" {
		return fmt.Errorf("report path required")
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := WriteJSON(f, v); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
