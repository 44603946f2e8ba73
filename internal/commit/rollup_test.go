package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tabsdata/tabsdata-server/internal/domain"
)

func runs(codes ...string) []domain.FunctionRunStatus {
	out := make([]domain.FunctionRunStatus, len(codes))
	for i, c := range codes {
		out[i] = domain.FunctionRunStatus(c)
	}
	return out
}

func TestTransactionStatus(t *testing.T) {
	cases := []struct {
		name string
		in   []domain.FunctionRunStatus
		want domain.TransactionStatus
	}{
		{"all scheduled", runs("S", "S"), domain.TrxScheduled},
		{"all committed", runs("C", "C", "C"), domain.TrxCommitted},
		{"all canceled", runs("X", "X"), domain.TrxCanceled},
		{"all yanked", runs("Y"), domain.TrxYanked},
		{"done plus failed stalls", runs("D", "F"), domain.TrxStalled},
		{"done plus on hold stalls", runs("D", "H", "D"), domain.TrxStalled},
		{"all failed stalls", runs("F", "F"), domain.TrxStalled},
		{"all done still running", runs("D", "D"), domain.TrxRunning},
		{"one running", runs("D", "R"), domain.TrxRunning},
		{"error is running", runs("E"), domain.TrxRunning},
		{"rescheduled is running", runs("RS", "D"), domain.TrxRunning},
		{"mixed committed canceled unexpected", runs("C", "X"), domain.TrxUnexpected},
		{"failed plus canceled unexpected", runs("F", "X"), domain.TrxUnexpected},
		{"empty unexpected", nil, domain.TrxUnexpected},
		{"unknown code unexpected", runs("S", "Z"), domain.TrxUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, TransactionStatus(tc.in))
		})
	}
}

func TestExecutionStatus(t *testing.T) {
	cases := []struct {
		name string
		in   []domain.FunctionRunStatus
		want domain.ExecutionStatus
	}{
		{"all scheduled", runs("S", "S"), domain.ExecScheduled},
		{"all committed finished", runs("C", "C"), domain.ExecFinished},
		{"committed plus canceled finished", runs("C", "X"), domain.ExecFinished},
		{"yanked finished", runs("Y", "C"), domain.ExecFinished},
		{"stalled", runs("D", "F"), domain.ExecStalled},
		{"running while any active", runs("C", "R"), domain.ExecRunning},
		{"done still running", runs("D", "D"), domain.ExecRunning},
		{"failed plus canceled unexpected", runs("F", "X"), domain.ExecUnexpected},
		{"unknown code unexpected", runs("Q"), domain.ExecUnexpected},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExecutionStatus(tc.in))
		})
	}
}

// Recomputing a rollup from the same inputs must yield the same result.
func TestRollupIdempotent(t *testing.T) {
	in := runs("D", "F", "H", "D")
	first := TransactionStatus(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, TransactionStatus(in))
	}
}
