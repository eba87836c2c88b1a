package core

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ValidationResult describes the outcome of a pre-flight upload check.
// A failed check is data, not an error: the caller reports it to the
// uploader rather than logging it as a fault.
type ValidationResult struct {
	IsValid bool
	Message string
	Size    int64
	Type    string
}

// Validator checks an upload against the size and type rules before
// conversion is attempted.
type Validator struct {
	maxBytes   int64
	extensions []string
}

// NewValidator creates a Validator enforcing the given size cap in bytes
// and extension allow-list (extensions include the leading dot).
func NewValidator(maxBytes int64, extensions []string) *Validator {
	return &Validator{maxBytes: maxBytes, extensions: extensions}
}

// Validate reads the upload and reports whether it is acceptable. The
// reader is consumed up to one byte past the size cap so an oversized
// upload is rejected without buffering the whole stream.
func (v *Validator) Validate(filename string, r io.Reader) (ValidationResult, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	res := ValidationResult{Type: ext}

	if filename == "" {
		res.Message = "no file provided"
		return res, nil
	}

	if !v.extensionAllowed(ext) {
		res.Message = fmt.Sprintf("file type %s is not allowed; expected one of %s",
			ext, strings.Join(v.extensions, ", "))
		return res, nil
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, v.maxBytes+1))
	if err != nil {
		return res, fmt.Errorf("reading upload: %w", err)
	}
	res.Size = n

	if n > v.maxBytes {
		// Over the cap: stop buffering but keep counting so the reported
		// size is the real one.
		rest, err := io.Copy(io.Discard, r)
		if err != nil {
			return res, fmt.Errorf("reading upload: %w", err)
		}
		res.Size = n + rest
		res.Message = fmt.Sprintf("file exceeds the maximum size of %d bytes", v.maxBytes)
		return res, nil
	}
	if n == 0 {
		res.Message = "file is empty"
		return res, nil
	}

	// Parse probe: confirm the bytes are a workbook the converter can open.
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		res.Message = "invalid workbook format: file could not be parsed as a spreadsheet"
		return res, nil
	}
	defer f.Close()

	if len(f.GetSheetList()) == 0 {
		res.Message = "workbook contains no worksheets"
		return res, nil
	}

	res.IsValid = true
	res.Message = "file is valid and ready for conversion"
	return res, nil
}

func (v *Validator) extensionAllowed(ext string) bool {
	for _, allowed := range v.extensions {
		if strings.EqualFold(ext, allowed) {
			return true
		}
	}
	return false
}
