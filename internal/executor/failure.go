package executor

import (
	"regexp"
	"strings"
)

var isErrorTrue = regexp.MustCompile(`(?i)"isError"\s*:\s*true`)

// isToolFailed inspects raw tool output for failure signals. The checks are
// ordered and purely textual; a tool whose legitimate output mentions
// "Error" alongside "Traceback" or "Exception" is treated as failed.
func isToolFailed(output string) bool {
	switch {
	case strings.Contains(output, `"success": false`):
		return true
	case strings.Contains(output, "Rate limited"):
		return true
	case isErrorTrue.MatchString(output):
		return true
	case strings.Contains(output, "Error") &&
		!strings.Contains(output, `"isError": false`) &&
		!strings.Contains(output, `"isError":false`):
		return strings.Contains(output, "Traceback") || strings.Contains(output, "Exception")
	}
	return false
}
