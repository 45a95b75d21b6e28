package planner

import (
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("(?s)```json\n(.*?)\n```")

// sanitize recovers a JSON object from a backend reply that ignored the
// formatting instructions: strip a fenced code block if present, strip
// stray backticks, then slice from the first '{' to the last '}' to drop
// surrounding prose.
func sanitize(response string) string {
	if m := fencedJSON.FindStringSubmatch(response); m != nil {
		response = m[1]
	}
	response = strings.Trim(strings.TrimSpace(response), "`")

	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start != -1 && end != -1 {
		if end < start {
			return ""
		}
		response = response[start : end+1]
	}
	return response
}
