package domain

// CheckName identifies a security check
type CheckName string

const (
	CheckAddressFormat       CheckName = "ADDRESS_FORMAT"
	CheckAmountBounds        CheckName = "AMOUNT_BOUNDS"
	CheckNetworkReachability CheckName = "NETWORK_REACHABILITY"
	CheckAddressReputation   CheckName = "ADDRESS_REPUTATION"
)

// CheckStatus represents the progress of a security check
type CheckStatus string

const (
	CheckStatusPending CheckStatus = "PENDING"
	CheckStatusPassed  CheckStatus = "PASSED"
	CheckStatusFailed  CheckStatus = "FAILED"
)

// CheckOrder returns the canonical order in which checks are run and reported
func CheckOrder() []CheckName {
	return []CheckName{
		CheckAddressFormat,
		CheckAmountBounds,
		CheckNetworkReachability,
		CheckAddressReputation,
	}
}

// IsHard reports whether a failure of the check blocks the transfer.
// Only the reputation check is soft.
func (c CheckName) IsHard() bool {
	return c != CheckAddressReputation
}

// SecurityCheckResult represents the outcome of one security check in a pipeline run
type SecurityCheckResult struct {
	Name   CheckName
	Status CheckStatus
	Detail string // set when Status is FAILED
}

// Terminal reports whether the check has finished
func (r SecurityCheckResult) Terminal() bool {
	return r.Status == CheckStatusPassed || r.Status == CheckStatusFailed
}

// Passed creates a passed result
func Passed(name CheckName) SecurityCheckResult {
	return SecurityCheckResult{Name: name, Status: CheckStatusPassed}
}

// Failed creates a failed result carrying a warning detail
func Failed(name CheckName, detail string) SecurityCheckResult {
	return SecurityCheckResult{Name: name, Status: CheckStatusFailed, Detail: detail}
}

// PendingChecks returns one pending result per check, in canonical order
func PendingChecks() []SecurityCheckResult {
	order := CheckOrder()
	checks := make([]SecurityCheckResult, 0, len(order))
	for _, name := range order {
		checks = append(checks, SecurityCheckResult{Name: name, Status: CheckStatusPending})
	}
	return checks
}
