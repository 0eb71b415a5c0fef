// Package modeljson extracts JSON documents from free-form vision model
// replies. Models routinely wrap JSON in code fences, add comments or leave
// trailing commas; Sanitize strips those before decoding.
package modeljson

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/menta2k/card-finder/pkg/types"
)

// ErrNoJSON is returned when a reply holds no JSON object
var ErrNoJSON = errors.New("no json object in model reply")

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)\s//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize removes code fences, comments, and trailing commas from a model
// reply and keeps only the outermost {...}.
func Sanitize(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reInline.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// ParseObjects decodes the object list of a model reply. Objects with an
// empty label are named "object"; labels are lower-cased.
func ParseObjects(raw string) ([]types.ModelObject, error) {
	clean := Sanitize(raw)
	if !strings.HasPrefix(clean, "{") {
		return nil, ErrNoJSON
	}

	var reply types.ModelReply
	if err := json.Unmarshal([]byte(clean), &reply); err != nil {
		return nil, fmt.Errorf("failed to parse model reply: %w", err)
	}

	out := make([]types.ModelObject, 0, len(reply.Objects))
	for _, obj := range reply.Objects {
		obj.Label = strings.ToLower(strings.TrimSpace(obj.Label))
		if obj.Label == "" {
			obj.Label = "object"
		}
		out = append(out, obj)
	}
	return out, nil
}
