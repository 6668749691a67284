package embeddings

import "strings"

// rateLimitMarkers are substrings the OpenAI-compatible providers put in
// quota and rate-limit error bodies.
var rateLimitMarkers = []string{
	"429",
	"rate limit",
	"rate_limit",
	"insufficient_quota",
	"exceeded your current quota",
}

// isRateLimitError reports whether an upstream error is a rate-limit or
// quota rejection. The provider SDK surfaces these as plain errors, so
// detection is by message content.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range rateLimitMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
