package toolkit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/sqlpilot/sqlpilot/internal/port/database"
)

// Verdict statuses and failure reasons for an equivalence check.
const (
	VerdictPassed = "passed"
	VerdictFailed = "failed"
	VerdictError  = "error"

	ReasonRowCountMismatch = "row_count_mismatch"
	ReasonContentMismatch  = "content_mismatch"
)

// Verdict is the outcome of comparing two result sets. Computed fresh per
// comparison; never cached, since SQL text and data may change between calls.
type Verdict struct {
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
	OriginalRows  int    `json:"original_rows"`
	OptimizedRows int    `json:"optimized_rows"`
	Details       string `json:"details,omitempty"`
}

// compareResults checks semantic equivalence of two result sets. Row counts
// are compared first; only equal counts proceed to content digesting, since a
// count mismatch already disproves equivalence.
func compareResults(original, optimized []database.Row) (*Verdict, error) {
	if len(original) != len(optimized) {
		return &Verdict{
			Status:        VerdictFailed,
			Reason:        ReasonRowCountMismatch,
			OriginalRows:  len(original),
			OptimizedRows: len(optimized),
		}, nil
	}

	origDigest, err := digestRows(original)
	if err != nil {
		return nil, fmt.Errorf("digest original result: %w", err)
	}
	optDigest, err := digestRows(optimized)
	if err != nil {
		return nil, fmt.Errorf("digest optimized result: %w", err)
	}

	if origDigest != optDigest {
		return &Verdict{
			Status:        VerdictFailed,
			Reason:        ReasonContentMismatch,
			OriginalRows:  len(original),
			OptimizedRows: len(optimized),
			Details:       "results differ in content but have the same row count",
		}, nil
	}

	return &Verdict{
		Status:        VerdictPassed,
		OriginalRows:  len(original),
		OptimizedRows: len(optimized),
	}, nil
}

// digestRows computes an order-independent content digest of a result set.
// Each row serializes to JSON with deterministically sorted keys; the row
// strings are sorted before hashing so physical row order does not matter.
func digestRows(rows []database.Row) (string, error) {
	serialized := make([]string, len(rows))
	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return "", fmt.Errorf("serialize row %d: %w", i, err)
		}
		serialized[i] = string(data)
	}
	sort.Strings(serialized)

	h := sha256.New()
	for _, s := range serialized {
		h.Write([]byte(s))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
