package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/brunovh/grainalloc/internal/domain"
)

// multipartThreshold is the plan size above which the archiver switches
// from a single PutObject to a multipart upload.
const multipartThreshold = 8 * 1024 * 1024

// multipartWriter is the optional capability a BlobWriter may expose for
// large payloads.
type multipartWriter interface {
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// ArchiveImpl implements domain.Archiver by serializing a completed run's
// allocation plan to JSONL and its aggregate statistics to JSON, then
// uploading both to the object store.
//
// The archive is a write-only audit trail; the primary allocation table in
// Postgres remains the source of truth for reads.
type ArchiveImpl struct {
	writer domain.BlobWriter
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter) *ArchiveImpl {
	return &ArchiveImpl{writer: writer}
}

// ArchiveRun uploads the allocation plan and run statistics for the given
// run ID. The plan is stored at archive/runs/<run-id>.jsonl and the stats
// at archive/runs/<run-id>.stats.json.
func (a *ArchiveImpl) ArchiveRun(ctx context.Context, runID string, allocs []domain.Allocation, stats domain.RunStats) error {
	if len(allocs) == 0 {
		return nil
	}

	planBuf, err := marshalJSONL(allocs)
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s marshal plan: %w", runID, err)
	}

	planPath := fmt.Sprintf("archive/runs/%s.jsonl", runID)
	if mw, ok := a.writer.(multipartWriter); ok && len(planBuf) > multipartThreshold {
		if err := mw.PutMultipart(ctx, planPath, bytes.NewReader(planBuf), minPartSize); err != nil {
			return fmt.Errorf("s3blob: archive run %s upload plan: %w", runID, err)
		}
	} else if err := a.writer.Put(ctx, planPath, bytes.NewReader(planBuf), "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive run %s upload plan: %w", runID, err)
	}

	statsBuf, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: archive run %s marshal stats: %w", runID, err)
	}

	statsPath := fmt.Sprintf("archive/runs/%s.stats.json", runID)
	if err := a.writer.Put(ctx, statsPath, bytes.NewReader(statsBuf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive run %s upload stats: %w", runID, err)
	}

	return nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
