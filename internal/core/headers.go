package core

// headers.go normalizes caller-supplied header fields into an ordered set.
//
// The upload form accepts header fields in two JSON shapes:
//
//	{"Bank Name": "Acme", "Quarter": "Q2"}
//	[{"tagName": "Bank Name", "tagValue": "Acme"}, ...]
//
// Both normalize to the same HeaderFieldSet before reaching the document
// builder, preserving the caller's field order. Scalar values (strings,
// numbers, booleans, null) are coerced to display strings; nested
// containers are rejected.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// HeaderField is one caller-supplied name/value pair rendered once per
// document, independent of table rows.
type HeaderField struct {
	Name  string
	Value string
}

// HeaderFieldSet is an ordered collection of header fields. Field names,
// once sanitized, are unique within the set.
type HeaderFieldSet []HeaderField

// ParseHeaderFields decodes the header_fields form value into a normalized
// set. Empty input yields an empty set. Returns an InputError for malformed
// JSON, unsupported shapes, or fields whose sanitized names collide.
func ParseHeaderFields(raw []byte) (HeaderFieldSet, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var (
		set HeaderFieldSet
		err error
	)
	switch trimmed[0] {
	case '{':
		set, err = parseHeaderObject(trimmed)
	case '[':
		set, err = parseHeaderArray(trimmed)
	default:
		return nil, NewInputError("header fields must be a JSON object or array")
	}
	if err != nil {
		return nil, err
	}

	if err := set.validate(); err != nil {
		return nil, err
	}
	return set, nil
}

// parseHeaderObject walks the object token stream so that field order is
// preserved; decoding into a map would lose it.
func parseHeaderObject(raw []byte) (HeaderFieldSet, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	// Opening brace
	if _, err := dec.Token(); err != nil {
		return nil, WrapInputError(err, "invalid header fields JSON")
	}

	var set HeaderFieldSet
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, WrapInputError(err, "invalid header fields JSON")
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, NewInputError("invalid header field name %v", keyTok)
		}

		valTok, err := dec.Token()
		if err != nil {
			return nil, WrapInputError(err, "invalid header fields JSON")
		}
		val, err := scalarToString(valTok)
		if err != nil {
			return nil, WrapInputError(err, "header field %q", key)
		}

		set = append(set, HeaderField{Name: key, Value: val})
	}

	// Closing brace
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, WrapInputError(err, "invalid header fields JSON")
	}

	return set, nil
}

// parseHeaderArray decodes the tagName/tagValue pair shape. Entries without
// a tagName are skipped, matching the permissive upstream contract.
func parseHeaderArray(raw []byte) (HeaderFieldSet, error) {
	var items []struct {
		TagName  string          `json:"tagName"`
		TagValue json.RawMessage `json:"tagValue"`
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, WrapInputError(err, "invalid header fields JSON")
	}

	var set HeaderFieldSet
	for _, item := range items {
		if item.TagName == "" {
			continue
		}

		val := ""
		if len(item.TagValue) > 0 {
			dec := json.NewDecoder(bytes.NewReader(item.TagValue))
			dec.UseNumber()
			tok, err := dec.Token()
			if err != nil {
				return nil, WrapInputError(err, "header field %q", item.TagName)
			}
			val, err = scalarToString(tok)
			if err != nil {
				return nil, WrapInputError(err, "header field %q", item.TagName)
			}
		}

		set = append(set, HeaderField{Name: item.TagName, Value: val})
	}

	return set, nil
}

// scalarToString coerces a decoded JSON scalar to its display string.
func scalarToString(tok json.Token) (string, error) {
	switch v := tok.(type) {
	case string:
		return v, nil
	case json.Number:
		return v.String(), nil
	case bool:
		if v {
			return "True", nil
		}
		return "False", nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("value must be a scalar, got %T", tok)
	}
}

// validate enforces the set invariant: each field name must survive
// sanitization as a non-empty element name, and sanitized names must be
// unique within the set.
func (s HeaderFieldSet) validate() error {
	seen := make(map[string]string, len(s))
	for _, f := range s {
		tag := SanitizeTag(f.Name)
		if tag == "" {
			return NewInputError("header field name must not be empty")
		}
		if prev, ok := seen[tag]; ok {
			return NewInputError("header fields %q and %q collide as element %q", prev, f.Name, tag)
		}
		seen[tag] = f.Name
	}
	return nil
}
