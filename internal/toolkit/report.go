// Package toolkit implements the fixed catalog of verification tools the
// optimization agent may call: schema lookup, statistics lookup, plan lookup,
// equivalence checking, performance measurement, and named test execution.
// Every outcome, success or failure, is normalized into a Report so the
// conversation always receives a response.
package toolkit

import (
	"encoding/json"
	"fmt"
)

// Report is the normalized outcome of one tool invocation. Exactly one of
// Payload or Err is set. A Report never represents a raised error; failing
// underlying calls become error reports.
type Report struct {
	Tool    string
	Payload any
	Err     string
}

// successReport wraps a structured payload.
func successReport(tool string, payload any) Report {
	return Report{Tool: tool, Payload: payload}
}

// errorReport wraps a human-readable failure cause.
func errorReport(tool, format string, args ...any) Report {
	return Report{Tool: tool, Err: fmt.Sprintf(format, args...)}
}

// Failed reports whether this is an error report.
func (r Report) Failed() bool { return r.Err != "" }

// Text renders the report as the JSON string appended to the conversation
// as a tool-result turn.
func (r Report) Text() string {
	if r.Failed() {
		out, _ := json.Marshal(map[string]string{"error": r.Err})
		return string(out)
	}
	out, err := json.Marshal(r.Payload)
	if err != nil {
		fallback, _ := json.Marshal(map[string]string{"error": "encode payload: " + err.Error()})
		return string(fallback)
	}
	return string(out)
}
