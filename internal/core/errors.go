package core

// errors.go defines the typed errors returned by the conversion pipeline.
//
// The web layer maps these onto HTTP status codes:
//   - InputError    -> 400: the caller sent something fixable (bad extension,
//     oversized upload, malformed header JSON, missing sheet, no data rows)
//   - NotFoundError -> 404: a requested resource does not exist
//   - everything else -> 500: conversion or storage failed internally
//
// Pipeline functions never return partial output alongside an error.

import (
	"errors"
	"fmt"
)

// InputError marks a problem with the caller's request.
type InputError struct {
	Msg string
	Err error
}

func (e *InputError) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// NewInputError creates an InputError with a formatted message.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

// WrapInputError attaches an input classification to an underlying error.
func WrapInputError(err error, format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...), Err: err}
}

// IsInputError reports whether err is (or wraps) an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// NotFoundError marks a missing download artifact.
type NotFoundError struct {
	Resource string
	Name     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Name)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// FormatError marks an upload that is not a parseable spreadsheet container.
type FormatError struct {
	Err error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid workbook format: %v", e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// IsFormatError reports whether err is (or wraps) a FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// ErrNoDataRows is returned when a workbook parses but holds zero data rows.
var ErrNoDataRows = errors.New("workbook contains no data rows")
