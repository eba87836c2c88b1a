// Package core provides the business logic for converting uploaded
// spreadsheets into structured XML documents.
//
// The pipeline runs in four stages:
//
//  1. Read: an uploaded workbook is parsed into a Table, an ordered set of
//     column names plus rows of display-string cell values (workbook.go).
//  2. Build: caller-supplied header fields and the table are assembled into
//     a document tree rooted at the configured report element (document.go).
//  3. Serialize: the tree is rendered as an indented XML byte stream
//     (serialize.go).
//  4. Store: the serialized output is handed to the artifact store for
//     persistence and later download (service.go).
//
// Validation (validate.go) runs the same reader against an upload without
// producing an artifact, reporting problems as data rather than errors.
//
// All stages are deterministic: the same workbook and header fields always
// produce byte-identical output.
package core
