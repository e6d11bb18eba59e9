package engine

import (
	"bytes"
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// DefaultPreviewLength bounds the body kept in a Failure outcome, in runes.
const DefaultPreviewLength = 200

// OutcomeKind tags an UploadOutcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeSuccessNoURL
	OutcomeFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeSuccessNoURL:
		return "success_no_url"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// UploadOutcome is the interpretation of one destination response.
type UploadOutcome struct {
	Kind OutcomeKind

	// URL is set for OutcomeSuccess.
	URL string

	// StatusCode and Body are set for OutcomeFailure. Body is a bounded preview.
	StatusCode int
	Body       string
}

// uploadReply holds the top-level fields of the destination's answer. Each
// rule decodes only the field it reads, so a malformed field elsewhere does
// not hide a valid link.
type uploadReply map[string]json.RawMessage

type linkRule struct {
	name  string
	match func(r uploadReply, base string) (string, bool)
}

// linkRules are tried in order; the first match wins.
var linkRules = []linkRule{
	{"file_url", func(r uploadReply, _ string) (string, bool) {
		var u string
		if err := json.Unmarshal(r["file_url"], &u); err != nil {
			return "", false
		}
		u = strings.TrimSpace(u)
		return u, u != ""
	}},
	{"debug_info.hash", func(r uploadReply, base string) (string, bool) {
		var debug map[string]json.RawMessage
		if err := json.Unmarshal(r["debug_info"], &debug); err != nil {
			return "", false
		}
		return joinBase(base, debug["hash"])
	}},
	{"hash", func(r uploadReply, base string) (string, bool) {
		return joinBase(base, r["hash"])
	}},
	{"file_id", func(r uploadReply, base string) (string, bool) {
		return joinBase(base, r["file_id"])
	}},
}

func joinBase(base string, raw json.RawMessage) (string, bool) {
	if base == "" {
		return "", false
	}
	id := scalarString(raw)
	if id == "" {
		return "", false
	}
	return base + id, true
}

// scalarString accepts a JSON string or number.
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// ResponseInterpreter turns a destination response into an UploadOutcome.
// It holds no per-call state and is safe for concurrent use.
type ResponseInterpreter struct {
	downloadBase  string
	previewLength int
}

// NewResponseInterpreter creates an interpreter that appends hashes and file
// ids to downloadBase. An empty downloadBase disables those rules.
func NewResponseInterpreter(downloadBase string) *ResponseInterpreter {
	return &ResponseInterpreter{
		downloadBase:  downloadBase,
		previewLength: DefaultPreviewLength,
	}
}

// Interpret classifies status and extracts a download link from body.
func (ri *ResponseInterpreter) Interpret(status int, body []byte) UploadOutcome {
	if status < 200 || status > 299 {
		return UploadOutcome{
			Kind:       OutcomeFailure,
			StatusCode: status,
			Body:       Preview(body, ri.previewLength),
		}
	}

	var reply uploadReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return UploadOutcome{Kind: OutcomeSuccessNoURL}
	}
	for _, rule := range linkRules {
		if url, ok := rule.match(reply, ri.downloadBase); ok {
			return UploadOutcome{Kind: OutcomeSuccess, URL: url}
		}
	}
	return UploadOutcome{Kind: OutcomeSuccessNoURL}
}

// Preview returns body as text cut to at most n runes.
func Preview(body []byte, n int) string {
	s := strings.ToValidUTF8(string(body), "�")
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
