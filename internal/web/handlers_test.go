package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/convertx/internal/artifact"
	"github.com/JonMunkholm/convertx/internal/config"
	"github.com/JonMunkholm/convertx/internal/core"
)

// ----------------------------------------------------------------------------
// Test Harness
// ----------------------------------------------------------------------------

// fakeIndex records index calls in memory.
type fakeIndex struct {
	records    []core.ConversionRecord
	downloads  []uuid.UUID
	recent     []artifact.Entry
}

func (f *fakeIndex) RecordConversion(_ context.Context, rec core.ConversionRecord) error {
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeIndex) MarkDownloaded(_ context.Context, id uuid.UUID) error {
	f.downloads = append(f.downloads, id)
	return nil
}

func (f *fakeIndex) Recent(_ context.Context, limit int) ([]artifact.Entry, error) {
	if limit < len(f.recent) {
		return f.recent[:limit], nil
	}
	return f.recent, nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.APIPrefix = "/api/v1"
	cfg.Server.RequestTimeout = time.Minute
	cfg.Upload.MaxSizeMB = 10
	cfg.Upload.AllowedExtensions = []string{".xlsx", ".xls"}
	cfg.Document.RootElement = "CALLREPORT"
	cfg.Document.SchemaVersion = "1.0.0"
	cfg.Document.Encoding = "UTF-8"
	cfg.Rate.Enabled = false
	return cfg
}

func testKey() []byte {
	key := make([]byte, artifact.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

// newTestServer wires a full server over temp-dir storage and a fake index.
func newTestServer(t *testing.T) (*Server, *fakeIndex) {
	t.Helper()
	return newTestServerLimit(t, testConfig().Upload.MaxSizeBytes())
}

// newTestServerLimit wires the same server with an explicit upload byte cap.
func newTestServerLimit(t *testing.T, maxBytes int64) (*Server, *fakeIndex) {
	t.Helper()
	cfg := testConfig()

	store, err := artifact.New(artifact.Options{
		Dir:                 t.TempDir(),
		Key:                 testKey(),
		RetainAfterDownload: true,
		Retention:           time.Hour,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}

	idx := &fakeIndex{}

	converter, err := core.NewConverter(core.ConverterOptions{
		Store:       store,
		Audit:       idx,
		UploadDir:   t.TempDir(),
		MaxBytes:    maxBytes,
		Extensions:  cfg.Upload.AllowedExtensions,
		RootElement: cfg.Document.RootElement,
		Encoding:    cfg.Document.Encoding,
	})
	if err != nil {
		t.Fatalf("creating converter: %v", err)
	}

	validator := core.NewValidator(maxBytes, cfg.Upload.AllowedExtensions)

	return NewServer(cfg, converter, validator, store, idx, nil), idx
}

// workbookBytes builds an in-memory xlsx with the given sheet name and rows.
func workbookBytes(t *testing.T, sheet string, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			t.Fatalf("renaming sheet: %v", err)
		}
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("writing row: %v", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("writing workbook: %v", err)
	}
	return buf.Bytes()
}

// multipartBody builds a multipart form with an optional file part plus
// extra form fields.
func multipartBody(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("creating file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("writing file part: %v", err)
		}
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("writing field %s: %v", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("closing writer: %v", err)
	}
	return &body, mw.FormDataContentType()
}

func doRequest(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &m); err != nil {
		t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
	}
	return m
}

// ----------------------------------------------------------------------------
// Convert + Download Tests
// ----------------------------------------------------------------------------

func TestConvertAndDownload(t *testing.T) {
	s, idx := newTestServer(t)

	upload := workbookBytes(t, "Sheet1", [][]interface{}{
		{"Branch", "Amount"},
		{"North", "100"},
	})
	body, contentType := multipartBody(t, "q2.xlsx", upload, map[string]string{
		"header_fields": `{"Bank Name": "Acme"}`,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("convert returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["status"] != "success" {
		t.Errorf("status = %v, want success", resp["status"])
	}
	downloadURL, _ := resp["downloadUrl"].(string)
	if !strings.HasPrefix(downloadURL, "/api/v1/download/") {
		t.Fatalf("downloadUrl = %q, want /api/v1/download/{id}", downloadURL)
	}
	if len(idx.records) != 1 {
		t.Errorf("got %d index records, want 1", len(idx.records))
	}

	// Follow the returned link.
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, downloadURL, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("download returned %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/xml" {
		t.Errorf("Content-Type = %q, want application/xml", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); !strings.Contains(cd, "converted_") {
		t.Errorf("Content-Disposition = %q, want converted_{id}.xml", cd)
	}

	out := rec.Body.String()
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		"<CALLREPORT>",
		"<Bank_Name>Acme</Bank_Name>",
		"<Branch>North</Branch>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("downloaded document missing %q:\n%s", want, out)
		}
	}

	if len(idx.downloads) != 1 {
		t.Errorf("got %d download marks, want 1", len(idx.downloads))
	}
}

func TestConvert_RequestDataEnvelope(t *testing.T) {
	s, _ := newTestServer(t)

	upload := workbookBytes(t, "CallData", [][]interface{}{
		{"A"},
		{"1"},
	})
	body, contentType := multipartBody(t, "q2.xlsx", upload, map[string]string{
		"request_data": `{"header_fields": {"Quarter": "Q2"}, "sheet_name": "CallData"}`,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("convert returned %d: %s", rec.Code, rec.Body.String())
	}

	downloadURL := decodeJSON(t, rec)["downloadUrl"].(string)
	rec = doRequest(s, httptest.NewRequest(http.MethodGet, downloadURL, nil))
	if !strings.Contains(rec.Body.String(), "<Quarter>Q2</Quarter>") {
		t.Errorf("envelope header fields not applied:\n%s", rec.Body.String())
	}
}

func TestConvert_Errors(t *testing.T) {
	valid := workbookBytes(t, "Sheet1", [][]interface{}{
		{"A"},
		{"1"},
	})
	headerOnly := workbookBytes(t, "Sheet1", [][]interface{}{
		{"A", "B"},
	})

	tests := []struct {
		name       string
		filename   string
		content    []byte
		fields     map[string]string
		wantStatus int
	}{
		{
			name:       "no file part",
			filename:   "",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "disallowed extension",
			filename:   "data.csv",
			content:    []byte("a,b\n1,2\n"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed header fields",
			filename:   "data.xlsx",
			content:    valid,
			fields:     map[string]string{"header_fields": `{"broken`},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed request_data",
			filename:   "data.xlsx",
			content:    valid,
			fields:     map[string]string{"request_data": `not json`},
			wantStatus: http.StatusBadRequest,
		},
		{
			// Naming a sheet that does not exist is a request problem,
			// not a missing server resource.
			name:       "unknown sheet",
			filename:   "data.xlsx",
			content:    valid,
			fields:     map[string]string{"sheet_name": "Missing"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "workbook with no data rows",
			filename:   "data.xlsx",
			content:    headerOnly,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unparseable workbook",
			filename:   "data.xlsx",
			content:    []byte("not a workbook"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestServer(t)
			body, contentType := multipartBody(t, tt.filename, tt.content, tt.fields)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", body)
			req.Header.Set("Content-Type", contentType)
			rec := doRequest(s, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			resp := decodeJSON(t, rec)
			if detail, ok := resp["detail"].(string); !ok || detail == "" {
				t.Errorf("error response missing detail: %s", rec.Body.String())
			}
		})
	}
}

// An upload over the configured cap is rejected with the size message, and
// the whole multipart form still parses so the file part is seen at all.
func TestConvert_Oversized(t *testing.T) {
	s, idx := newTestServerLimit(t, 64)

	body, contentType := multipartBody(t, "big.xlsx", bytes.Repeat([]byte("x"), 500), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	detail, _ := decodeJSON(t, rec)["detail"].(string)
	if !strings.Contains(detail, "exceeds the maximum size") {
		t.Errorf("detail = %q, want size rejection", detail)
	}
	if len(idx.records) != 0 {
		t.Errorf("got %d index records, want 0", len(idx.records))
	}
}

// ----------------------------------------------------------------------------
// Validate Tests
// ----------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	s, _ := newTestServer(t)

	upload := workbookBytes(t, "Sheet1", [][]interface{}{
		{"A"},
		{"1"},
	})
	body, contentType := multipartBody(t, "data.xlsx", upload, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["is_valid"] != true {
		t.Errorf("is_valid = %v, message %v", resp["is_valid"], resp["message"])
	}
	if resp["file_type"] != ".xlsx" {
		t.Errorf("file_type = %v, want .xlsx", resp["file_type"])
	}
	if size, ok := resp["file_size"].(float64); !ok || int(size) != len(upload) {
		t.Errorf("file_size = %v, want %d", resp["file_size"], len(upload))
	}
}

// A rejected upload still answers 200: the verdict is the payload.
func TestValidate_RejectionIsData(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartBody(t, "data.csv", []byte("a,b\n"), nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["is_valid"] != false {
		t.Errorf("is_valid = %v, want false", resp["is_valid"])
	}
	if msg, _ := resp["message"].(string); !strings.Contains(msg, "not allowed") {
		t.Errorf("message = %q, want extension rejection", msg)
	}
}

func TestValidate_NoFile(t *testing.T) {
	s, _ := newTestServer(t)

	body, contentType := multipartBody(t, "", nil, map[string]string{"noise": "1"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rec.Code, rec.Body.String())
	}
	if resp := decodeJSON(t, rec); resp["is_valid"] != false {
		t.Errorf("is_valid = %v, want false", resp["is_valid"])
	}
}

// An oversized upload is rejected as data, and file_size reports the actual
// upload size rather than zero or the cap.
func TestValidate_Oversized(t *testing.T) {
	s, _ := newTestServerLimit(t, 64)

	upload := bytes.Repeat([]byte("x"), 500)
	body, contentType := multipartBody(t, "big.xlsx", upload, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/validate", body)
	req.Header.Set("Content-Type", contentType)
	rec := doRequest(s, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("validate returned %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeJSON(t, rec)
	if resp["is_valid"] != false {
		t.Errorf("is_valid = %v, want false", resp["is_valid"])
	}
	if msg, _ := resp["message"].(string); !strings.Contains(msg, "exceeds the maximum size") {
		t.Errorf("message = %q, want size rejection", msg)
	}
	if size, ok := resp["file_size"].(float64); !ok || int(size) != len(upload) {
		t.Errorf("file_size = %v, want %d", resp["file_size"], len(upload))
	}
}

// ----------------------------------------------------------------------------
// Download Error Tests
// ----------------------------------------------------------------------------

func TestDownload_NotFound(t *testing.T) {
	s, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/download/" + uuid.NewString(),
		"/api/v1/download/not-a-uuid",
	} {
		rec := doRequest(s, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, rec.Code)
		}
		if resp := decodeJSON(t, rec); resp["detail"] == "" {
			t.Errorf("GET %s missing detail", path)
		}
	}
}

// ----------------------------------------------------------------------------
// Health + Liveness Tests
// ----------------------------------------------------------------------------

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health returned %d", rec.Code)
	}
	resp := decodeJSON(t, rec)
	if resp["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", resp["status"])
	}
	if resp["version"] != "1.0.0" {
		t.Errorf("version = %v, want 1.0.0", resp["version"])
	}
	if ts, _ := resp["timestamp"].(string); ts == "" {
		t.Error("timestamp missing")
	}
}

func TestRoot(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("root returned %d", rec.Code)
	}
	if resp := decodeJSON(t, rec); resp["message"] != "Backend is running" {
		t.Errorf("message = %v", resp["message"])
	}
}

func TestSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t)

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if got := rec.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

// ----------------------------------------------------------------------------
// Conversions Listing Tests
// ----------------------------------------------------------------------------

func TestConversions(t *testing.T) {
	s, idx := newTestServer(t)

	now := time.Now().UTC()
	idx.recent = []artifact.Entry{
		{ArtifactID: uuid.New(), Filename: "a.xlsx", Rows: 2, Columns: 3, Bytes: 512, CreatedAt: now, DownloadCount: 1},
		{ArtifactID: uuid.New(), Filename: "b.xlsx", Rows: 5, Columns: 1, Bytes: 128, CreatedAt: now},
	}

	rec := doRequest(s, httptest.NewRequest(http.MethodGet, "/api/v1/conversions?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("conversions returned %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Conversions []struct {
			Filename      string `json:"filename"`
			Rows          int    `json:"rows"`
			DownloadCount int    `json:"downloadCount"`
		} `json:"conversions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Conversions) != 1 {
		t.Fatalf("got %d conversions, want 1 (limit)", len(resp.Conversions))
	}
	if resp.Conversions[0].Filename != "a.xlsx" || resp.Conversions[0].Rows != 2 {
		t.Errorf("conversion entry mismatch: %+v", resp.Conversions[0])
	}
}

// ----------------------------------------------------------------------------
// Rate Limit Tests
// ----------------------------------------------------------------------------

func TestRateLimit(t *testing.T) {
	rl := newRateLimiter(2, time.Minute, nil)
	handler := rl.middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", "10.0.0.1")
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d = %d, want 200", i, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.1")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// Another IP still has tokens.
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Real-IP", "10.0.0.2")
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("other IP = %d, want 200", rec.Code)
	}
}

func TestRateLimiter_PruneAndStop(t *testing.T) {
	rl := newRateLimiter(2, 10*time.Millisecond, nil)
	defer rl.stop()

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	// After two windows both visitors are stale and get dropped.
	time.Sleep(25 * time.Millisecond)
	rl.prune()

	rl.mu.Lock()
	remaining := len(rl.visitors)
	rl.mu.Unlock()
	if remaining != 0 {
		t.Errorf("got %d visitors after prune, want 0", remaining)
	}

	// Stopping twice must not panic.
	rl.stop()
	rl.stop()
}

// Shutdown on a server that never started still stops the limiter goroutine.
func TestShutdown_StopsLimiter(t *testing.T) {
	cfg := testConfig()
	cfg.Rate.Enabled = true
	cfg.Rate.RequestsPerMinute = 5

	store, err := artifact.New(artifact.Options{
		Dir:       t.TempDir(),
		Key:       testKey(),
		Retention: time.Hour,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	validator := core.NewValidator(cfg.Upload.MaxSizeBytes(), cfg.Upload.AllowedExtensions)
	converter, err := core.NewConverter(core.ConverterOptions{
		Store:       store,
		UploadDir:   t.TempDir(),
		MaxBytes:    cfg.Upload.MaxSizeBytes(),
		Extensions:  cfg.Upload.AllowedExtensions,
		RootElement: cfg.Document.RootElement,
		Encoding:    cfg.Document.Encoding,
	})
	if err != nil {
		t.Fatalf("creating converter: %v", err)
	}

	s := NewServer(cfg, converter, validator, store, &fakeIndex{}, nil)
	if s.limiter == nil {
		t.Fatal("limiter not wired despite rate limiting enabled")
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	select {
	case <-s.limiter.done:
	default:
		t.Error("limiter goroutine not signalled to stop")
	}
}
