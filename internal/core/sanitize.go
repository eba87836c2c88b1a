package core

import "regexp"

// tagCharRegex matches every character that may not appear in an XML element
// name under this service's conservative naming rule.
var tagCharRegex = regexp.MustCompile(`[^A-Za-z0-9_]`)

// SanitizeTag normalizes an arbitrary column or header label into a safe
// element name by replacing every character outside [A-Za-z0-9_] with an
// underscore. It is total and idempotent. Distinct labels may collapse to
// the same sanitized name; the document builder disambiguates siblings.
func SanitizeTag(label string) string {
	return tagCharRegex.ReplaceAllString(label, "_")
}
