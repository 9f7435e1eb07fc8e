package run

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fyrsmithlabs/featmine/internal/pipeline"
)

// Archive writes the finished context under dir/<run_id>/context.json and
// returns the written path.
func Archive(dir string, wc *pipeline.Context) (string, error) {
	runDir := filepath.Join(dir, wc.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run directory: %w", err)
	}

	data, err := json.MarshalIndent(wc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding run context: %w", err)
	}

	path := filepath.Join(runDir, "context.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing run context: %w", err)
	}
	return path, nil
}
