package service

import (
	"regexp"
	"strings"

	apperrors "github.com/videolytics/query-service/internal/errors"
)

// SafetyChecker validates generated SQL before it reaches the database.
// The pattern resolver only produces known-safe statements, so the checks
// exist mostly to gate model-generated SQL.
type SafetyChecker struct {
	MaxQueryLength int
	KnownTables    []string
}

// forbiddenKeywords are statement kinds and comment markers that must never
// appear in an analytics query. Read-only access is enforced here in addition
// to database permissions.
var forbiddenKeywords = []string{
	"DROP",
	"DELETE",
	"UPDATE",
	"INSERT",
	"ALTER",
	"TRUNCATE",
	"CREATE",
	"GRANT",
	"REVOKE",
	"--",
	"/*",
}

var tablePattern = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-z_][a-z0-9_]*)`)

// NewSafetyChecker creates a checker that accepts the analytics schema
func NewSafetyChecker() *SafetyChecker {
	return &SafetyChecker{
		MaxQueryLength: 2000,
		KnownTables:    []string{"videos", "video_snapshots"},
	}
}

// ValidateQuery checks if a SQL statement is safe to execute
func (sc *SafetyChecker) ValidateQuery(query string) error {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return apperrors.NewSafetyValidationError("empty query")
	}

	if len(trimmed) > sc.MaxQueryLength {
		return apperrors.NewSafetyValidationError("query is too long")
	}

	upper := strings.ToUpper(trimmed)
	if !strings.HasPrefix(upper, "SELECT") {
		return apperrors.NewSafetyValidationError("only SELECT statements are allowed")
	}

	// One statement only
	if inner := strings.TrimSuffix(trimmed, ";"); strings.Contains(inner, ";") {
		return apperrors.NewSafetyValidationError("multiple statements are not allowed")
	}

	for _, keyword := range forbiddenKeywords {
		if containsKeyword(upper, keyword) {
			return apperrors.NewSafetyValidationError("query contains forbidden keyword: " + keyword)
		}
	}

	return sc.validateTables(trimmed)
}

// validateTables checks every FROM/JOIN target is part of the analytics schema
func (sc *SafetyChecker) validateTables(query string) error {
	matches := tablePattern.FindAllStringSubmatch(query, -1)
	if len(matches) == 0 {
		return apperrors.NewSafetyValidationError("query references no table")
	}

	for _, match := range matches {
		table := strings.ToLower(match[1])
		known := false
		for _, t := range sc.KnownTables {
			if table == t {
				known = true
				break
			}
		}
		if !known {
			return apperrors.NewSafetyValidationError("query references unknown table: " + table)
		}
	}

	return nil
}

// containsKeyword matches whole words for SQL keywords and plain substrings
// for comment markers
func containsKeyword(upperQuery, keyword string) bool {
	if keyword == "--" || keyword == "/*" {
		return strings.Contains(upperQuery, keyword)
	}

	idx := 0
	for {
		pos := strings.Index(upperQuery[idx:], keyword)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(keyword)

		beforeOK := start == 0 || !isWordChar(upperQuery[start-1])
		afterOK := end == len(upperQuery) || !isWordChar(upperQuery[end])
		if beforeOK && afterOK {
			return true
		}
		idx = end
	}
}

func isWordChar(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
