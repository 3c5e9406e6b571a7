package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	wberrors "github.com/systmms/wbctl/internal/errors"
)

// writeFormatted renders v as json or yaml, or calls table for the default
// format.
func writeFormatted(w io.Writer, format string, v interface{}, table func(io.Writer) error) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(v)
	case "table", "":
		return table(w)
	default:
		return wberrors.UserError{
			Message:    fmt.Sprintf("Unknown output format: %s", format),
			Suggestion: "Use one of: table, json, yaml",
		}
	}
}
