// Package artifact persists converted documents as encrypted files and
// serves them back for download.
//
// Layout inside the artifact directory:
//
//	{id}.xml.enc   encrypted artifact, written once at conversion time
//	{id}.xml       the same, when at-rest encryption is disabled
//	temp_{id}.xml  short-lived decrypted copy, removed when the download
//	               stream is closed
//
// Artifacts are encrypted with XChaCha20-Poly1305 (crypto.go) and indexed
// in Postgres (index.go). A background sweeper removes artifacts past the
// retention window.
package artifact

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/convertx/internal/core"
)

// Meta describes a stored artifact.
type Meta struct {
	ID        uuid.UUID
	Size      int64 // decrypted size in bytes
	CreatedAt time.Time
}

// Store persists encrypted artifacts on the filesystem.
type Store struct {
	dir    string
	box    *cipherBox
	logger *slog.Logger

	retainAfterDownload bool
	retention           time.Duration
}

// Options configures a Store.
type Options struct {
	Dir                 string
	Key                 []byte // 32-byte encryption key; empty disables encryption
	Logger              *slog.Logger
	RetainAfterDownload bool
	Retention           time.Duration
}

// New creates a Store, creating the artifact directory if needed.
func New(opts Options) (*Store, error) {
	var box *cipherBox
	if len(opts.Key) > 0 {
		var err error
		box, err = newCipherBox(opts.Key)
		if err != nil {
			return nil, err
		}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &Store{
		dir:                 opts.Dir,
		box:                 box,
		logger:              opts.Logger,
		retainAfterDownload: opts.RetainAfterDownload,
		retention:           opts.Retention,
	}, nil
}

// Store seals the document and writes it under the given id. The write is
// atomic: a partially written artifact is never visible under its final name.
func (s *Store) Store(ctx context.Context, id uuid.UUID, doc []byte) error {
	sealed := doc
	if s.box != nil {
		var err error
		sealed, err = s.box.seal(doc)
		if err != nil {
			return err
		}
	}

	final := s.encPath(id)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, sealed, 0o600); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing artifact: %w", err)
	}

	s.logger.DebugContext(ctx, "artifact stored",
		slog.String("artifact_id", id.String()),
		slog.Int("plain_bytes", len(doc)),
		slog.Int("sealed_bytes", len(sealed)))
	return nil
}

// Open decrypts the artifact to a temporary file and returns a reader over
// it. Closing the reader removes the temporary file. When the store is
// configured not to retain artifacts, the encrypted original is removed as
// well, making the download one-shot.
func (s *Store) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, Meta, error) {
	final := s.encPath(id)

	sealed, err := os.ReadFile(final)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Meta{}, &core.NotFoundError{Resource: "artifact", Name: id.String()}
		}
		return nil, Meta{}, fmt.Errorf("reading artifact: %w", err)
	}

	info, err := os.Stat(final)
	if err != nil {
		return nil, Meta{}, fmt.Errorf("reading artifact: %w", err)
	}

	plain := sealed
	if s.box != nil {
		plain, err = s.box.open(sealed)
		if err != nil {
			return nil, Meta{}, err
		}
	}

	tmp := filepath.Join(s.dir, fmt.Sprintf("temp_%s.xml", id))
	if err := os.WriteFile(tmp, plain, 0o600); err != nil {
		return nil, Meta{}, fmt.Errorf("staging download: %w", err)
	}

	f, err := os.Open(tmp)
	if err != nil {
		os.Remove(tmp)
		return nil, Meta{}, fmt.Errorf("staging download: %w", err)
	}

	if !s.retainAfterDownload {
		if err := os.Remove(final); err != nil {
			s.logger.WarnContext(ctx, "purge after download failed",
				slog.String("artifact_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	meta := Meta{
		ID:        id,
		Size:      int64(len(plain)),
		CreatedAt: info.ModTime(),
	}
	return &tempReader{f: f, path: tmp}, meta, nil
}

// Sweep removes encrypted artifacts older than the retention window and any
// temp files left behind by interrupted downloads. Returns the number of
// files removed.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("reading artifact directory: %w", err)
	}

	cutoff := time.Now().Add(-s.retention)
	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !sweepable(name) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return removed, fmt.Errorf("inspecting %s: %w", name, err)
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			s.logger.WarnContext(ctx, "sweep removal failed",
				slog.String("file", name),
				slog.String("error", err.Error()))
			continue
		}
		removed++
	}

	return removed, nil
}

// StartSweeper runs Sweep immediately and then on every interval until the
// context is cancelled. Sweep failures are logged, not fatal.
func (s *Store) StartSweeper(ctx context.Context, interval time.Duration) {
	s.logger.Info("artifact sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("retention", s.retention))

	s.runSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("artifact sweeper stopped")
			return
		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

func (s *Store) runSweep(ctx context.Context) {
	start := time.Now()
	removed, err := s.Sweep(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "artifact sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		s.logger.InfoContext(ctx, "artifact sweep complete",
			slog.Int("removed", removed),
			slog.Duration("elapsed", time.Since(start)))
	}
}

// encPath is where the artifact lives on disk: {id}.xml.enc when encryption
// is on, {id}.xml otherwise.
func (s *Store) encPath(id uuid.UUID) string {
	name := id.String() + ".xml"
	if s.box != nil {
		name += ".enc"
	}
	return filepath.Join(s.dir, name)
}

// sweepable reports whether a directory entry belongs to the store: stored
// artifacts, decrypted temp copies, and interrupted write temps. Anything
// else in the directory is left alone.
func sweepable(name string) bool {
	return strings.HasSuffix(name, ".xml") ||
		strings.HasSuffix(name, ".xml.enc") ||
		strings.HasSuffix(name, ".enc.tmp") ||
		strings.HasSuffix(name, ".xml.tmp")
}

// tempReader streams a decrypted temp file and removes it on Close.
type tempReader struct {
	f    *os.File
	path string
}

func (r *tempReader) Read(p []byte) (int, error) {
	return r.f.Read(p)
}

func (r *tempReader) Close() error {
	closeErr := r.f.Close()
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return closeErr
}
