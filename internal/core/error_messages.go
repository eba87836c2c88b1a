package core

// error_messages.go maps technical errors onto user-friendly messages with
// support codes.
//
// Error codes are grouped by category:
//
//	FILE001 - Upload exceeds the configured size limit
//	FILE002 - File extension is not in the allow-list
//	FILE003 - File is not a parseable workbook
//	FILE004 - No file was provided
//	FILE005 - Workbook holds no data rows
//	HDR001  - header_fields JSON is malformed
//	HDR002  - Header field names collide after sanitization
//	SHT001  - Requested worksheet does not exist
//	ART001  - Download artifact not found or expired
//	DB001   - Artifact index unavailable
//	RATE001 - Too many requests
//	ERR000  - Fallback for unmatched errors
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so more specific patterns come before general ones. When a
// user reports ERR000, check the application logs for the original error.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "exceeds the maximum size",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Remove unused sheets or split the workbook",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file type",
		msg: UserMessage{
			Message: "File type is not allowed",
			Action:  "Upload an .xlsx or .xls workbook",
			Code:    "FILE002",
		},
	},
	{
		pattern: "invalid workbook format",
		msg: UserMessage{
			Message: "File is not a valid Excel workbook",
			Action:  "Re-save the file as .xlsx and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Choose a workbook to upload",
			Code:    "FILE004",
		},
	},
	{
		pattern: "no data rows",
		msg: UserMessage{
			Message: "The workbook holds no data rows",
			Action:  "Add at least one row below the column headers",
			Code:    "FILE005",
		},
	},

	// Header field errors
	{
		pattern: "collide",
		msg: UserMessage{
			Message: "Two header fields map to the same element name",
			Action:  "Rename one of the colliding header fields",
			Code:    "HDR002",
		},
	},
	{
		pattern: "header field",
		msg: UserMessage{
			Message: "Header fields are malformed",
			Action:  "Send header fields as a JSON object or tagName/tagValue array",
			Code:    "HDR001",
		},
	},

	// Worksheet errors
	{
		pattern: "worksheet not found",
		msg: UserMessage{
			Message: "The requested worksheet does not exist",
			Action:  "Check the sheet name or omit it to use the first sheet",
			Code:    "SHT001",
		},
	},

	// Artifact errors
	{
		pattern: "artifact not found",
		msg: UserMessage{
			Message: "The converted file is no longer available",
			Action:  "Convert the workbook again to get a fresh download link",
			Code:    "ART001",
		},
	},

	// Index errors
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The artifact index is unavailable",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match, falling back to the generic ERR000 message.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
