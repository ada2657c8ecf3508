package output

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pankaj-dahiya-devops/cloudscout/internal/models"
	"github.com/pankaj-dahiya-devops/cloudscout/internal/snapshot"
)

// ReportFileName returns the report file name for env with extension ext
// ("json" or "html"): scout-report-<env>.<ext>, or scout-report.<ext> for
// the default environment.
func ReportFileName(env, ext string) string {
	if env == "" || env == snapshot.DefaultEnvironment {
		return "scout-report." + ext
	}
	return fmt.Sprintf("scout-report-%s.%s", env, ext)
}

// WriteReportFiles writes the JSON report and its HTML rendering into dir,
// creating dir if needed. It returns the written paths, JSON first.
func WriteReportFiles(dir string, rep *models.Report) ([]string, error) {
	if err := snapshot.CheckEnvironment(rep.Environment); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	renderers := []struct {
		ext   string
		write func(*bytes.Buffer, *models.Report) error
	}{
		{"json", func(b *bytes.Buffer, r *models.Report) error { return WriteJSON(b, r) }},
		{"html", func(b *bytes.Buffer, r *models.Report) error { return WriteHTML(b, r) }},
	}

	var paths []string
	for _, r := range renderers {
		var buf bytes.Buffer
		if err := r.write(&buf, rep); err != nil {
			return paths, fmt.Errorf("render %s report: %w", r.ext, err)
		}
		path := filepath.Join(dir, ReportFileName(rep.Environment, r.ext))
		if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
