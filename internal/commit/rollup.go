// Package commit aggregates per-run statuses into transaction and execution
// statuses and owns the commit decision. Rollups are pure functions of the
// run statuses, so recomputing them is idempotent.
package commit

import (
	"github.com/tabsdata/tabsdata-server/internal/domain"
)

func known(s domain.FunctionRunStatus) bool {
	switch s {
	case domain.RunScheduled, domain.RunRequested, domain.RunReScheduled,
		domain.RunRunning, domain.RunDone, domain.RunError, domain.RunFailed,
		domain.RunOnHold, domain.RunCommitted, domain.RunCanceled, domain.RunYanked:
		return true
	}
	return false
}

func all(statuses []domain.FunctionRunStatus, want ...domain.FunctionRunStatus) bool {
	if len(statuses) == 0 {
		return false
	}
	for _, s := range statuses {
		match := false
		for _, w := range want {
			if s == w {
				match = true
				break
			}
		}
		if !match {
			return false
		}
	}
	return true
}

func anyIn(statuses []domain.FunctionRunStatus, want ...domain.FunctionRunStatus) bool {
	for _, s := range statuses {
		for _, w := range want {
			if s == w {
				return true
			}
		}
	}
	return false
}

// TransactionStatus rolls run statuses into the transaction status.
// Unknown run codes roll up to Unexpected; clients reject Unexpected on
// read.
func TransactionStatus(statuses []domain.FunctionRunStatus) domain.TransactionStatus {
	for _, s := range statuses {
		if !known(s) {
			return domain.TrxUnexpected
		}
	}
	switch {
	case all(statuses, domain.RunScheduled):
		return domain.TrxScheduled
	case all(statuses, domain.RunCommitted):
		return domain.TrxCommitted
	case all(statuses, domain.RunCanceled):
		return domain.TrxCanceled
	case all(statuses, domain.RunYanked):
		return domain.TrxYanked
	case all(statuses, domain.RunDone, domain.RunFailed, domain.RunOnHold) &&
		anyIn(statuses, domain.RunFailed, domain.RunOnHold):
		return domain.TrxStalled
	case anyIn(statuses, domain.RunScheduled, domain.RunRequested, domain.RunReScheduled,
		domain.RunRunning, domain.RunDone, domain.RunError):
		return domain.TrxRunning
	}
	return domain.TrxUnexpected
}

// ExecutionStatus rolls run statuses into the execution status. An
// execution is Finished once every run is fully finalized past commit or
// cancel.
func ExecutionStatus(statuses []domain.FunctionRunStatus) domain.ExecutionStatus {
	for _, s := range statuses {
		if !known(s) {
			return domain.ExecUnexpected
		}
	}
	switch {
	case all(statuses, domain.RunScheduled):
		return domain.ExecScheduled
	case all(statuses, domain.RunCommitted, domain.RunCanceled, domain.RunYanked):
		return domain.ExecFinished
	case all(statuses, domain.RunDone, domain.RunFailed, domain.RunOnHold) &&
		anyIn(statuses, domain.RunFailed, domain.RunOnHold):
		return domain.ExecStalled
	case anyIn(statuses, domain.RunScheduled, domain.RunRequested, domain.RunReScheduled,
		domain.RunRunning, domain.RunDone, domain.RunError):
		return domain.ExecRunning
	}
	return domain.ExecUnexpected
}
