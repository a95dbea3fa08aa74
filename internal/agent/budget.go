package agent

import "errors"

// ErrBudgetExhausted is returned when a tool call is requested after its
// counter reached zero. The call is refused before any network or process
// activity happens.
var ErrBudgetExhausted = errors.New("tool call budget exhausted")

// Budget is the per-job tool call allowance. It is owned by exactly one loop
// invocation and consumed monotonically; it is never shared across jobs.
type Budget struct {
	searchRemaining int
	execRemaining   int
}

// NewBudget creates a budget with the given caps
func NewBudget(search, exec int) *Budget {
	return &Budget{
		searchRemaining: search,
		execRemaining:   exec,
	}
}

// ConsumeSearch takes one search call from the budget, or refuses
func (b *Budget) ConsumeSearch() error {
	if b.searchRemaining <= 0 {
		return ErrBudgetExhausted
	}
	b.searchRemaining--
	return nil
}

// ConsumeExec takes one sandbox execution from the budget, or refuses
func (b *Budget) ConsumeExec() error {
	if b.execRemaining <= 0 {
		return ErrBudgetExhausted
	}
	b.execRemaining--
	return nil
}

// SearchRemaining returns the number of search calls left
func (b *Budget) SearchRemaining() int { return b.searchRemaining }

// ExecRemaining returns the number of sandbox executions left
func (b *Budget) ExecRemaining() int { return b.execRemaining }
