package cli

import (
	"fmt"
	"io"
	"reflect"

	json "github.com/goccy/go-json"
)

// WriteOutput writes v as indented JSON, or one JSON object per line when
// --jsonl is set and v is a slice.
func WriteOutput(w io.Writer, v any) error {
	if IsJSONLOutput() {
		return writeJSONL(w, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeJSONL(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return enc.Encode(v)
	}
	for i := 0; i < rv.Len(); i++ {
		if err := enc.Encode(rv.Index(i).Interface()); err != nil {
			return fmt.Errorf("failed to write jsonl item %d: %w", i, err)
		}
	}
	return nil
}
