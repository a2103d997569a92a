// Package sqlutil provides SQL identifier helpers for logops.
package sqlutil

import (
	"regexp"
	"strings"
)

// QuoteIdentifier backtick-quotes a MySQL table or column name, doubling
// any embedded backticks.
func QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// identifierPattern restricts identifiers to alphanumerics and underscore.
var identifierPattern = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidIdentifier reports whether name is safe to splice into SQL as an
// identifier.
func IsValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}
