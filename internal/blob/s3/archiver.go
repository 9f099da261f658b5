package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/dmiguens/arbscout/internal/domain"
)

// defaultArchiveBatch bounds how many records a single archive object holds.
const defaultArchiveBatch = 1000

// multipartThreshold is the payload size above which uploads switch to the
// multipart path.
const multipartThreshold = 64 * 1024 * 1024

// OpportunityArchiveStore is the narrow slice of the opportunity store the
// archiver needs: querying closed, not-yet-archived records and flagging
// them once their archive object is verified. The Postgres store satisfies
// it implicitly.
type OpportunityArchiveStore interface {
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Opportunity, error)
	MarkArchived(ctx context.Context, ids []string) error
}

// objectWriter and objectVerifier are satisfied by Writer and Reader; they
// exist so tests can run the archiver against in-memory fakes.
type objectWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

type objectVerifier interface {
	Exists(ctx context.Context, path string) (bool, error)
}

// Archiver moves closed opportunity records to cold storage. Records are
// serialized to JSONL, uploaded, verified with a head request, and only then
// marked archived in the primary store.
//
// Deletion from the primary store is intentionally NOT performed here --
// archived rows stay queryable until an operator prunes them explicitly.
type Archiver struct {
	writer objectWriter
	verify objectVerifier
	store  OpportunityArchiveStore
	audit  domain.AuditStore
	batch  int
}

// NewArchiver creates an Archiver over the given writer, reader, and stores.
func NewArchiver(w *Writer, r *Reader, store OpportunityArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: w,
		verify: r,
		store:  store,
		audit:  audit,
		batch:  defaultArchiveBatch,
	}
}

// Archive uploads all superseded and expired opportunity records detected
// strictly before the cutoff, in batches, and marks each batch archived
// after its object is verified. It returns the total number of records
// archived. A batch that fails leaves its records unarchived; the next run
// picks them up again.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		opps, err := a.store.ListClosedBefore(ctx, before, a.batch)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive query: %w", err)
		}
		if len(opps) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(opps)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive marshal: %w", err)
		}

		path := archivePath(before)
		if int64(len(buf)) >= multipartThreshold {
			err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
		} else {
			err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
		}
		if err != nil {
			return total, fmt.Errorf("s3blob: archive upload: %w", err)
		}

		ok, err := a.verify.Exists(ctx, path)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive verify: %w", err)
		}
		if !ok {
			return total, fmt.Errorf("s3blob: archive verify: object %s missing after upload", path)
		}

		ids := make([]string, len(opps))
		for i, o := range opps {
			ids[i] = o.ID
		}
		if err := a.store.MarkArchived(ctx, ids); err != nil {
			return total, fmt.Errorf("s3blob: archive mark: %w", err)
		}

		total += int64(len(opps))

		if err := a.audit.Log(ctx, "archive.opportunities", map[string]any{
			"path":   path,
			"count":  len(opps),
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return total, fmt.Errorf("s3blob: archive audit log: %w", err)
		}

		if len(opps) < a.batch {
			return total, nil
		}
	}
}

// archivePath builds the S3 key for an archive object, partitioned by the
// year-month of the cutoff. The random suffix keeps successive batches of
// the same run from clobbering each other.
//
//	archive/opportunities/2026-08/2d9f....jsonl
func archivePath(before time.Time) string {
	return fmt.Sprintf("archive/opportunities/%s/%s.jsonl", before.Format("2006-01"), uuid.NewString())
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
