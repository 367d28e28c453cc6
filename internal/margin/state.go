package margin

// State classifies a debtor by how close their debt is to the maximum loan
// their collateral allows. It is derived on demand from live prices, never
// persisted: prices move, so yesterday's state means nothing.
type State string

const (
	// StateCurrent: debt comfortably below the maximum loan.
	StateCurrent State = "current"
	// StateWarned: debt at or above 95% of the maximum loan.
	StateWarned State = "warned"
	// StateMarginCalled: debt at or above the maximum loan; a forced
	// liquidation is due or in progress.
	StateMarginCalled State = "margin_called"
)

// warnThreshold is the fraction of the maximum loan at which debtors get a
// warning instead of a margin call.
const warnThreshold = 0.95

// StateFor derives a debtor's state from their debt and maximum loan.
func StateFor(debt, maxLoan float64) State {
	if debt <= 0 {
		return StateCurrent
	}
	if debt >= maxLoan {
		return StateMarginCalled
	}
	if debt >= maxLoan*warnThreshold {
		return StateWarned
	}
	return StateCurrent
}
