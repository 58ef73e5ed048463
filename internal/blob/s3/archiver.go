package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// ---------------------------------------------------------------------------
// Narrow interfaces required by the archiver.
//
// The archiver only needs the single read method of each collaborator, not
// the full domain interfaces. The Postgres and memory event stores satisfy
// EventSource implicitly; Lister satisfies SegmentLister.
// ---------------------------------------------------------------------------

// EventSource provides the journal reads the archiver performs.
type EventSource interface {
	List(ctx context.Context, opts domain.EventListOpts) ([]domain.Event, error)
}

// SegmentLister lists previously exported segments so an export resumes
// after the last one.
type SegmentLister interface {
	List(ctx context.Context, prefix string) ([]domain.BlobInfo, error)
}

// exportBatch bounds how many events a single journal read pulls.
const exportBatch = 1000

// multipartThreshold is the payload size above which a segment uploads via
// the multipart manager instead of a single PutObject.
const multipartThreshold = 8 * 1024 * 1024

// Archiver implements domain.EventArchiver by copying journal events to
// object storage as JSONL segments. The journal itself is never truncated:
// each segment covers a contiguous seq range, and the next export starts
// after the highest seq any existing segment covers.
type Archiver struct {
	writer domain.BlobWriter
	lister SegmentLister
	events EventSource
	prefix string
}

// NewArchiver creates an Archiver writing segments under the given key
// prefix.
func NewArchiver(writer domain.BlobWriter, lister SegmentLister, events EventSource, prefix string) *Archiver {
	if prefix == "" {
		prefix = "journal"
	}
	return &Archiver{
		writer: writer,
		lister: lister,
		events: events,
		prefix: prefix,
	}
}

var _ domain.EventArchiver = (*Archiver)(nil)

// ArchiveEvents uploads every journal event recorded before the cutoff that
// no previous export covered, and returns how many events it wrote. A run
// with nothing new to export uploads nothing and returns zero.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	watermark, err := a.lastExportedSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: scan exported segments: %w", err)
	}

	var batch []domain.Event
	cursor := watermark
	for {
		page, err := a.events.List(ctx, domain.EventListOpts{
			Before:   &before,
			AfterSeq: &cursor,
			Limit:    exportBatch,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive events query: %w", err)
		}
		batch = append(batch, page...)
		if len(page) < exportBatch {
			break
		}
		cursor = page[len(page)-1].Seq
	}
	if len(batch) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(batch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	first, last := batch[0], batch[len(batch)-1]
	path := a.segmentPath(first.At, first.Seq, last.Seq)

	if len(buf) >= multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), multipartThreshold)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	return int64(len(batch)), nil
}

// lastExportedSeq returns the highest journal position covered by any
// existing segment, or zero when nothing has been exported yet.
func (a *Archiver) lastExportedSeq(ctx context.Context) (uint64, error) {
	infos, err := a.lister.List(ctx, a.prefix+"/")
	if err != nil {
		return 0, err
	}

	var max uint64
	for _, info := range infos {
		if last, ok := parseSegmentKey(info.Path); ok && last > max {
			max = last
		}
	}
	return max, nil
}

// segmentPath builds the object key for a segment, partitioned by the month
// of its first event and naming the seq range it covers:
//
//	journal/2026/08/events-000000000101-000000000250.jsonl
//
// Seqs are zero-padded so lexicographic key order matches journal order.
func (a *Archiver) segmentPath(firstAt time.Time, firstSeq, lastSeq uint64) string {
	return fmt.Sprintf("%s/%s/events-%012d-%012d.jsonl",
		a.prefix, firstAt.UTC().Format("2006/01"), firstSeq, lastSeq)
}

// parseSegmentKey extracts the last covered seq from a segment key. Keys not
// produced by segmentPath are ignored.
func parseSegmentKey(key string) (uint64, bool) {
	name, ok := strings.CutSuffix(key, ".jsonl")
	if !ok {
		return 0, false
	}
	i := strings.LastIndex(name, "events-")
	if i < 0 {
		return 0, false
	}
	_, lastPart, ok := strings.Cut(name[i+len("events-"):], "-")
	if !ok {
		return 0, false
	}
	last, err := strconv.ParseUint(lastPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return last, true
}

// marshalJSONL serialises events as newline-delimited JSON, one compact
// object per line.
func marshalJSONL(records []domain.Event) ([]byte, error) {
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
