package writer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// spillBatch writes a failed batch to dir as one JSON document per line,
// under a unique filename so concurrent spills never collide. Spilled
// files are replayed by an operator, not by this process.
func spillBatch[T any](dir, table string, rows []T) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create spill dir: %w", err)
	}

	name := fmt.Sprintf("%s-%s.jsonl", table, uuid.NewString())
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create spill file: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return "", fmt.Errorf("encode spill row: %w", err)
		}
	}

	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("sync spill file: %w", err)
	}

	return path, nil
}
