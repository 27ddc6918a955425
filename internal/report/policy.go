package report

import (
	"fmt"

	"github.com/varalys/blockscrub/internal/batch"
)

// FailOn selects which outcomes make a run exit non-zero.
type FailOn string

const (
	FailOnError     FailOn = "error"     // rejected or unreadable files
	FailOnMalicious FailOn = "malicious" // errors plus any replaced block
	FailOnNever     FailOn = "never"
)

// ParseFailOn validates a --fail-on value. Empty means malicious.
func ParseFailOn(s string) (FailOn, error) {
	switch FailOn(s) {
	case "":
		return FailOnMalicious, nil
	case FailOnError, FailOnMalicious, FailOnNever:
		return FailOn(s), nil
	}
	return "", fmt.Errorf("invalid fail-on %q (want error, malicious or never)", s)
}

func ShouldFail(outcomes []batch.FileOutcome, failOn FailOn) bool {
	if failOn == FailOnNever {
		return false
	}
	for _, o := range outcomes {
		if o.Failed() {
			return true
		}
		if failOn == FailOnMalicious && o.Sanitized() {
			return true
		}
	}
	return false
}
