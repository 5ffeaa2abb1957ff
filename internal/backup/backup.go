// Package backup exports documents as newline-delimited JSON.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/seatwise/seatctl/internal/store"
)

// Record is one line of a backup file.
type Record struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

type Writer struct {
	enc   *json.Encoder
	count map[string]int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w), count: make(map[string]int)}
}

func (w *Writer) Write(doc store.Doc) error {
	if err := w.enc.Encode(Record{Collection: doc.Collection, ID: doc.ID, Data: doc.Data}); err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", doc.Collection, doc.ID, err)
	}
	w.count[doc.Collection]++
	return nil
}

// Counts returns documents written per collection.
func (w *Writer) Counts() map[string]int {
	return w.count
}

// Export scans each collection (scoped to orgID when set) into w.
func Export(ctx context.Context, s store.Store, w *Writer, orgID string, collections []string) error {
	for _, col := range collections {
		if err := s.Scan(ctx, col, orgID, w.Write); err != nil {
			return fmt.Errorf("failed to export %s: %w", col, err)
		}
	}
	return nil
}

// Read decodes a backup stream, calling fn per record.
func Read(r io.Reader, fn func(Record) error) error {
	dec := json.NewDecoder(r)
	for {
		var rec Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("invalid backup record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

// Sink is a backup destination. Close keeps what was written; Abort
// discards it so a failed export leaves nothing behind.
type Sink interface {
	io.WriteCloser
	Abort() error
}

// Open returns a sink for dest: "-" for stdout, gs://bucket/object for
// Cloud Storage, anything else is a new local file.
func Open(ctx context.Context, dest, credentialsFile string) (Sink, error) {
	if dest == "-" {
		return nopCloser{os.Stdout}, nil
	}
	if bucket, object, ok := ParseGCS(dest); ok {
		client, err := newStorageClient(ctx, credentialsFile)
		if err != nil {
			return nil, err
		}
		// The upload commits on Close unless its context is cancelled first.
		uctx, cancel := context.WithCancel(ctx)
		ow := client.Bucket(bucket).Object(object).NewWriter(uctx)
		ow.ContentType = "application/x-ndjson"
		return &gcsWriter{Writer: ow, client: client, cancel: cancel}, nil
	}

	f, err := os.OpenFile(dest, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create backup file: %w", err)
	}
	return &localFile{File: f}, nil
}

// OpenReader opens a backup written by Open: "-" for stdin, gs:// or a
// local path.
func OpenReader(ctx context.Context, src, credentialsFile string) (io.ReadCloser, error) {
	if src == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	if bucket, object, ok := ParseGCS(src); ok {
		client, err := newStorageClient(ctx, credentialsFile)
		if err != nil {
			return nil, err
		}
		r, err := client.Bucket(bucket).Object(object).NewReader(ctx)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to open %s: %w", src, err)
		}
		return &gcsReader{Reader: r, client: client}, nil
	}
	f, err := os.Open(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open backup file: %w", err)
	}
	return f, nil
}

// Save exports collections into sink and closes it. On failure the sink is
// aborted.
func Save(ctx context.Context, s store.Store, sink Sink, orgID string, collections []string) (map[string]int, error) {
	w := NewWriter(sink)
	if err := Export(ctx, s, w, orgID, collections); err != nil {
		if aerr := sink.Abort(); aerr != nil {
			slog.Warn("failed to discard partial backup", "err", aerr)
		}
		return nil, err
	}
	if err := sink.Close(); err != nil {
		return nil, err
	}
	return w.Counts(), nil
}

func newStorageClient(ctx context.Context, credentialsFile string) (*storage.Client, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return client, nil
}

// ParseGCS splits gs://bucket/path/to/object.
func ParseGCS(dest string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(dest, "gs://")
	if !found {
		return "", "", false
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

type localFile struct {
	*os.File
}

// Abort removes the partial file.
func (f *localFile) Abort() error {
	f.File.Close()
	return os.Remove(f.Name())
}

type gcsWriter struct {
	*storage.Writer
	client *storage.Client
	cancel context.CancelFunc
}

// Close finalizes the upload; the object only exists once this returns nil.
func (w *gcsWriter) Close() error {
	defer w.cancel()
	err := w.Writer.Close()
	if cerr := w.client.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("failed to upload backup: %w", err)
	}
	return nil
}

// Abort cancels the upload before it commits.
func (w *gcsWriter) Abort() error {
	w.cancel()
	w.Writer.Close()
	return w.client.Close()
}

type gcsReader struct {
	*storage.Reader
	client *storage.Client
}

func (r *gcsReader) Close() error {
	err := r.Reader.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func (nopCloser) Abort() error { return nil }
