package legacy

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// Export is a JSON dump of the legacy store, one object per collection keyed
// by document id.
type Export struct {
	Batches         map[string]Document `json:"batches"`
	Users           map[string]Document `json:"users"`
	ClassroomVideos map[string]Document `json:"classroomVideos"`
}

// ExportReader serves a decoded export. Records come back ordered by
// document id.
type ExportReader struct {
	export Export
}

var _ Reader = (*ExportReader)(nil)

// DecodeExport parses an export from r.
func DecodeExport(r io.Reader) (*ExportReader, error) {
	var export Export
	dec := json.NewDecoder(r)
	if err := dec.Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode legacy export: %w", err)
	}
	return &ExportReader{export: export}, nil
}

// OpenExportFile reads an export from a local file.
func OpenExportFile(path string) (*ExportReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open legacy export: %w", err)
	}
	defer f.Close()
	return DecodeExport(f)
}

func sortedKeys(m map[string]Document) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *ExportReader) ListBatches(ctx context.Context) ([]Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Batch, 0, len(e.export.Batches))
	for _, id := range sortedKeys(e.export.Batches) {
		out = append(out, BatchFromDocument(id, e.export.Batches[id]))
	}
	return out, nil
}

func (e *ExportReader) ListUsers(ctx context.Context) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]User, 0, len(e.export.Users))
	for _, id := range sortedKeys(e.export.Users) {
		out = append(out, UserFromDocument(id, e.export.Users[id]))
	}
	return out, nil
}

func (e *ExportReader) ListVideos(ctx context.Context) ([]Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]Video, 0, len(e.export.ClassroomVideos))
	for _, id := range sortedKeys(e.export.ClassroomVideos) {
		out = append(out, VideoFromDocument(id, e.export.ClassroomVideos[id]))
	}
	return out, nil
}
