// Package transcript turns downloaded subtitle tracks into plain text.
package transcript

import (
	"regexp"
	"strings"
)

var (
	sequenceLineRe  = regexp.MustCompile(`^\d+$`)
	timeRangeLineRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3} --> \d{2}:\d{2}:\d{2},\d{3}$`)
	timestampLineRe = regexp.MustCompile(`^\d{2}:\d{2}:\d{2},\d{3}$`)
)

// Parse converts an SRT payload into space-joined caption text. Sequence
// numbers, timestamp ranges and lone timestamps are dropped. Bytes that are
// not valid UTF-8 are kept as they are.
func Parse(raw string) string {
	lines := strings.Split(raw, "\n")
	kept := make([]string, 0, len(lines)/2)
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || isCueMarker(line) {
			continue
		}
		kept = append(kept, line)
	}

	return strings.TrimSpace(strings.Join(kept, " "))
}

func isCueMarker(line string) bool {
	return sequenceLineRe.MatchString(line) ||
		timeRangeLineRe.MatchString(line) ||
		timestampLineRe.MatchString(line)
}
