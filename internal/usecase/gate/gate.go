package gate

import (
	"github.com/simaogato/securesend-backend/internal/domain"
)

// RequiresAck reports whether the user must acknowledge warnings before confirming.
// True iff every hard check passed and at least one soft check failed.
// Pending checks never require acknowledgement.
func RequiresAck(checks []domain.SecurityCheckResult) bool {
	softFailed := false
	for _, c := range checks {
		if c.Name.IsHard() {
			if c.Status != domain.CheckStatusPassed {
				return false
			}
			continue
		}
		if c.Status == domain.CheckStatusFailed {
			softFailed = true
		}
	}
	return softFailed
}

// Blocked reports whether any hard check failed
func Blocked(checks []domain.SecurityCheckResult) bool {
	return len(HardFailures(checks)) > 0
}

// HardFailures returns the failed hard checks, in the order given
func HardFailures(checks []domain.SecurityCheckResult) []domain.SecurityCheckResult {
	var failed []domain.SecurityCheckResult
	for _, c := range checks {
		if c.Name.IsHard() && c.Status == domain.CheckStatusFailed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Warnings returns the detail of every failed check.
// The result is empty iff no check failed.
func Warnings(checks []domain.SecurityCheckResult) []string {
	var warnings []string
	for _, c := range checks {
		if c.Status != domain.CheckStatusFailed {
			continue
		}
		detail := c.Detail
		if detail == "" {
			detail = string(c.Name) + " failed"
		}
		warnings = append(warnings, detail)
	}
	return warnings
}
