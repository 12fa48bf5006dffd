// Package safety implements the lexical guard every statement must pass
// before touching the shadow database.
package safety

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sqlpilot/sqlpilot/internal/domain"
)

// Guard screens SQL text for forbidden operations before execution. The
// check is lexical: each forbidden operation is matched as a whole word,
// case-insensitively, anywhere in the statement. A match anywhere rejects,
// even inside string literals; the guard prefers false positives over
// letting a destructive statement through.
//
// TODO: strip comment tokens (-- and /* */) before matching so a forbidden
// word cannot be smuggled past a future token-aware relaxation.
type Guard struct {
	patterns map[string]*regexp.Regexp
	maxRows  int
}

// New compiles a Guard from the forbidden operation list. maxRows is the
// row bound appended to unbounded statements.
func New(forbidden []string, maxRows int) (*Guard, error) {
	patterns := make(map[string]*regexp.Regexp, len(forbidden))
	for _, op := range forbidden {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(op) + `\b`)
		if err != nil {
			return nil, fmt.Errorf("compile forbidden op %q: %w", op, err)
		}
		patterns[strings.ToUpper(op)] = re
	}
	return &Guard{patterns: patterns, maxRows: maxRows}, nil
}

// Check returns an error wrapping domain.ErrUnsafeSQL when the statement
// contains a forbidden operation or stacks multiple statements.
func (g *Guard) Check(sql string) error {
	for op, re := range g.patterns {
		if re.MatchString(sql) {
			return fmt.Errorf("%w: forbidden operation %s", domain.ErrUnsafeSQL, op)
		}
	}
	if i := strings.Index(sql, ";"); i >= 0 && strings.TrimSpace(sql[i+1:]) != "" {
		return fmt.Errorf("%w: multiple statements are not allowed", domain.ErrUnsafeSQL)
	}
	return nil
}

// EnforceRowLimit appends a LIMIT clause when the statement has none.
// The presence check is a case-insensitive substring scan, so the operation
// is idempotent. A trailing semicolon is dropped first.
func (g *Guard) EnforceRowLimit(sql string) string {
	trimmed := strings.TrimSpace(sql)
	trimmed = strings.TrimSuffix(trimmed, ";")
	if strings.Contains(strings.ToLower(trimmed), "limit") {
		return trimmed
	}
	return fmt.Sprintf("%s LIMIT %d", trimmed, g.maxRows)
}

// Prepare runs Check then EnforceRowLimit, the full pre-execution pipeline.
func (g *Guard) Prepare(sql string) (string, error) {
	if err := g.Check(sql); err != nil {
		return "", err
	}
	return g.EnforceRowLimit(sql), nil
}
