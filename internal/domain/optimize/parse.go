package optimize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseError reports that the agent's final answer could not be decoded as a
// Result. It carries the raw reply text so callers can surface the protocol
// violation directly instead of retrying.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse final answer: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseResult decodes the agent's final reply into a Result.
//
// Models often wrap the JSON payload in a fenced block; when the text
// contains one, the first block's contents are decoded, otherwise the whole
// text is treated as the payload. Any decode failure returns a *ParseError.
func ParseResult(content string) (*Result, error) {
	payload := unwrapFence(content)

	var res Result
	dec := json.NewDecoder(strings.NewReader(payload))
	if err := dec.Decode(&res); err != nil {
		return nil, &ParseError{Raw: content, Err: err}
	}
	return &res, nil
}

// unwrapFence extracts the contents of the first ```-fenced block, preferring
// a ```json fence. Text without a fence is returned unchanged.
func unwrapFence(content string) string {
	if _, after, ok := strings.Cut(content, "```json"); ok {
		if inner, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(inner)
		}
		return strings.TrimSpace(after)
	}
	if _, after, ok := strings.Cut(content, "```"); ok {
		if inner, _, ok := strings.Cut(after, "```"); ok {
			return strings.TrimSpace(inner)
		}
		return strings.TrimSpace(after)
	}
	return strings.TrimSpace(content)
}
