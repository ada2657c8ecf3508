package output

import (
	"encoding/json"
	"io"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
)

// WriteJSON writes rep as indented JSON to w. Field order follows the
// struct definitions, so identical reports encode byte-identically.
func WriteJSON(w io.Writer, rep *models.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
