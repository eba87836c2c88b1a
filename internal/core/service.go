package core

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
)

// ArtifactWriter persists a serialized document and makes it retrievable
// by id. Implemented by the artifact store.
type ArtifactWriter interface {
	Store(ctx context.Context, id uuid.UUID, doc []byte) error
}

// ConversionRecord captures one completed conversion for the audit trail.
type ConversionRecord struct {
	ArtifactID uuid.UUID
	Filename   string
	Sheet      string
	Rows       int
	Columns    int
	Bytes      int64
	CreatedAt  time.Time
}

// AuditRecorder writes conversion records. Implemented by the artifact
// index; a nil recorder disables auditing.
type AuditRecorder interface {
	RecordConversion(ctx context.Context, rec ConversionRecord) error
}

// ConvertRequest carries one upload through the pipeline.
type ConvertRequest struct {
	Filename     string
	Content      io.Reader
	Sheet        string    // empty selects the first worksheet
	HeaderFields []byte    // raw JSON object or tagName/tagValue array, may be empty
}

// ConversionResult reports a stored conversion.
type ConversionResult struct {
	ArtifactID uuid.UUID
	Filename   string // suggested download filename
	Rows       int
	Columns    int
	Bytes      int64
}

// Converter runs the full upload-to-artifact pipeline: stage the upload,
// read the workbook, build and serialize the document, store the artifact.
type Converter struct {
	store       ArtifactWriter
	audit       AuditRecorder
	logger      *slog.Logger
	uploadDir   string
	maxBytes    int64
	extensions  []string
	rootElement string
	encoding    string
}

// ConverterOptions configures a Converter.
type ConverterOptions struct {
	Store       ArtifactWriter
	Audit       AuditRecorder
	Logger      *slog.Logger
	UploadDir   string
	MaxBytes    int64
	Extensions  []string
	RootElement string
	Encoding    string
}

// NewConverter creates a Converter. The upload directory is created if it
// does not exist.
func NewConverter(opts ConverterOptions) (*Converter, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("artifact store is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory: %w", err)
	}
	return &Converter{
		store:       opts.Store,
		audit:       opts.Audit,
		logger:      opts.Logger,
		uploadDir:   opts.UploadDir,
		maxBytes:    opts.MaxBytes,
		extensions:  opts.Extensions,
		rootElement: opts.RootElement,
		encoding:    opts.Encoding,
	}, nil
}

// Convert runs the pipeline for one upload. The staged copy of the upload
// is removed before Convert returns, on success and on every error path.
func (c *Converter) Convert(ctx context.Context, req ConvertRequest) (*ConversionResult, error) {
	start := time.Now()

	if req.Filename == "" {
		return nil, NewInputError("no file provided")
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	if !c.extensionAllowed(ext) {
		return nil, NewInputError("file type %s is not allowed; expected one of %s",
			ext, strings.Join(c.extensions, ", "))
	}

	header, err := ParseHeaderFields(req.HeaderFields)
	if err != nil {
		return nil, err
	}

	id := uuid.New()

	staged, size, err := c.stage(id, ext, req.Content)
	if err != nil {
		return nil, err
	}
	defer os.Remove(staged)

	table, err := ReadWorkbook(staged, req.Sheet)
	if err != nil {
		return nil, err
	}

	doc := NewBuilder(c.rootElement).Build(header, table)

	xml, err := Serialize(doc, c.encoding)
	if err != nil {
		return nil, fmt.Errorf("serializing document: %w", err)
	}

	if err := c.store.Store(ctx, id, xml); err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}

	rec := ConversionRecord{
		ArtifactID: id,
		Filename:   req.Filename,
		Sheet:      req.Sheet,
		Rows:       table.RowCount(),
		Columns:    len(table.Columns),
		Bytes:      int64(len(xml)),
		CreatedAt:  start,
	}
	if c.audit != nil {
		if err := c.audit.RecordConversion(ctx, rec); err != nil {
			// Auditing is advisory; the artifact is already stored.
			c.logger.WarnContext(ctx, "audit record failed",
				slog.String("artifact_id", id.String()),
				slog.String("error", err.Error()))
		}
	}

	c.logger.InfoContext(ctx, "conversion complete",
		slog.String("artifact_id", id.String()),
		slog.String("filename", req.Filename),
		slog.Int("rows", rec.Rows),
		slog.Int("columns", rec.Columns),
		slog.Int64("upload_bytes", size),
		slog.Int64("output_bytes", rec.Bytes),
		slog.Duration("elapsed", time.Since(start)))

	return &ConversionResult{
		ArtifactID: id,
		Filename:   fmt.Sprintf("converted_%s.xml", id),
		Rows:       rec.Rows,
		Columns:    rec.Columns,
		Bytes:      rec.Bytes,
	}, nil
}

// stage copies the upload to an id-scoped file under the upload directory,
// enforcing the size cap without buffering the stream in memory.
func (c *Converter) stage(id uuid.UUID, ext string, r io.Reader) (string, int64, error) {
	path := filepath.Join(c.uploadDir, fmt.Sprintf("upload_%s%s", id, ext))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("staging upload: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(r, c.maxBytes+1))
	closeErr := f.Close()
	if err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("staging upload: %w", err)
	}
	if closeErr != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("staging upload: %w", closeErr)
	}
	if n > c.maxBytes {
		os.Remove(path)
		return "", 0, NewInputError("file exceeds the maximum size of %d bytes", c.maxBytes)
	}
	if n == 0 {
		os.Remove(path)
		return "", 0, NewInputError("no file provided: upload is empty")
	}
	return path, n, nil
}

func (c *Converter) extensionAllowed(ext string) bool {
	for _, allowed := range c.extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}
