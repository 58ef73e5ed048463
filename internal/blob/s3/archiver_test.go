package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veilmarket/veilmarket/internal/domain"
)

// fakeWriter captures uploads in memory.
type fakeWriter struct {
	path        string
	contentType string
	data        []byte
	multipart   bool
	puts        int
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path, w.contentType, w.data = path, contentType, buf
	w.puts++
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.path, w.data, w.multipart = path, buf, true
	w.puts++
	return nil
}

// fakeLister returns a fixed listing.
type fakeLister struct {
	infos []domain.BlobInfo
}

func (l *fakeLister) List(context.Context, string) ([]domain.BlobInfo, error) {
	return l.infos, nil
}

// fakeEvents serves a fixed journal, honoring the filter options the
// archiver uses.
type fakeEvents struct {
	events []domain.Event
}

func (s *fakeEvents) List(_ context.Context, opts domain.EventListOpts) ([]domain.Event, error) {
	out := make([]domain.Event, 0, len(s.events))
	for _, ev := range s.events {
		if opts.Before != nil && !ev.At.Before(*opts.Before) {
			continue
		}
		if opts.AfterSeq != nil && ev.Seq <= *opts.AfterSeq {
			continue
		}
		out = append(out, ev)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func journalFixture(t *testing.T) []domain.Event {
	t.Helper()
	prin, err := domain.ParsePrincipal("0x1111111111111111111111111111111111111111")
	require.NoError(t, err)

	base := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	events := make([]domain.Event, 0, 3)
	for i := uint64(1); i <= 3; i++ {
		ev := domain.NewBetPlaced(1, prin, 100*i)
		ev.Seq = i
		ev.At = base.Add(time.Duration(i) * time.Minute)
		events = append(events, ev)
	}
	return events
}

func TestArchiveEventsWritesSegment(t *testing.T) {
	writer := &fakeWriter{}
	arch := NewArchiver(writer, &fakeLister{}, &fakeEvents{events: journalFixture(t)}, "journal")

	count, err := arch.ArchiveEvents(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	assert.Equal(t, "journal/2026/08/events-000000000001-000000000003.jsonl", writer.path)
	assert.Equal(t, "application/x-ndjson", writer.contentType)
	assert.False(t, writer.multipart)

	// One JSON object per line, decodable back into events.
	var lines int
	sc := bufio.NewScanner(bytes.NewReader(writer.data))
	for sc.Scan() {
		var ev domain.Event
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		assert.Equal(t, domain.EventBetPlaced, ev.Kind)
		lines++
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 3, lines)
}

func TestArchiveEventsResumesAfterLastSegment(t *testing.T) {
	writer := &fakeWriter{}
	lister := &fakeLister{infos: []domain.BlobInfo{
		{Path: "journal/2026/08/events-000000000001-000000000002.jsonl"},
	}}
	arch := NewArchiver(writer, lister, &fakeEvents{events: journalFixture(t)}, "journal")

	count, err := arch.ArchiveEvents(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, "journal/2026/08/events-000000000003-000000000003.jsonl", writer.path)
}

func TestArchiveEventsNothingNew(t *testing.T) {
	writer := &fakeWriter{}
	lister := &fakeLister{infos: []domain.BlobInfo{
		{Path: "journal/2026/08/events-000000000001-000000000003.jsonl"},
	}}
	arch := NewArchiver(writer, lister, &fakeEvents{events: journalFixture(t)}, "journal")

	count, err := arch.ArchiveEvents(context.Background(), time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
	assert.Zero(t, writer.puts)
}

func TestArchiveEventsHonorsCutoff(t *testing.T) {
	writer := &fakeWriter{}
	arch := NewArchiver(writer, &fakeLister{}, &fakeEvents{events: journalFixture(t)}, "journal")

	// Cutoff between the second and third event.
	cutoff := time.Date(2026, 8, 10, 12, 2, 30, 0, time.UTC)
	count, err := arch.ArchiveEvents(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.Equal(t, "journal/2026/08/events-000000000001-000000000002.jsonl", writer.path)
}

func TestParseSegmentKey(t *testing.T) {
	tests := []struct {
		key     string
		wantSeq uint64
		wantOK  bool
	}{
		{"journal/2026/08/events-000000000001-000000000250.jsonl", 250, true},
		{"journal/events-5-9.jsonl", 9, true},
		{"journal/2026/08/events-000000000001-000000000250.json", 0, false},
		{"journal/2026/08/snapshot.jsonl", 0, false},
		{"journal/2026/08/events-abc-def.jsonl", 0, false},
	}

	for _, tt := range tests {
		seq, ok := parseSegmentKey(tt.key)
		assert.Equal(t, tt.wantOK, ok, tt.key)
		assert.Equal(t, tt.wantSeq, seq, tt.key)
	}
}
