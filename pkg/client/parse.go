package client

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/menta2k/mmbcd/pkg/types"
)

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reInline   = regexp.MustCompile(`(?m)//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// Fallback returns the undecided assessment used when a reply cannot be read.
func Fallback(reason string, tags ...string) *types.Assessment {
	return &types.Assessment{
		Malignancy: 0.5,
		Finding:    reason,
		Tags:       append(tags, "fallback"),
	}
}

// ParseAssessment reads a model reply. Replies without usable JSON yield a
// fallback assessment rather than an error.
func ParseAssessment(raw string) *types.Assessment {
	raw = SanitizeModelJSON(raw)

	if !strings.HasPrefix(raw, "{") {
		return Fallback("Model returned non-JSON response", "non-json")
	}

	var result types.Assessment
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return Fallback("Failed to parse model response", "parse-error")
	}
	return &result
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
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

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
