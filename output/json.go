package output

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
)

// WriteJSON writes v as indented JSON followed by a newline.
func WriteJSON(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return writeLine(w, data)
}

// WriteJSONLine writes v as a single compact JSON line, as used by watch mode.
func WriteJSONLine(w io.Writer, v any) error {
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return writeLine(w, data)
}

func writeLine(w io.Writer, data []byte) error {
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
