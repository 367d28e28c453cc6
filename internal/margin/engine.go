package margin

import (
	"context"
	"fmt"

	"commodity-market-go/internal/config"
	"commodity-market-go/internal/ledger"
	"commodity-market-go/internal/notify"
	"commodity-market-go/internal/portfolio"
	"commodity-market-go/internal/userlock"
	"commodity-market-go/internal/wallet"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine tracks per-user debt against portfolio collateral, accrues daily
// interest and forces liquidation when debt reaches the maximum loan.
//
// All mutations for one user run under that user's lock, so a margin check,
// an interest charge and a manually triggered margin call can never
// interleave for the same debtor.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Loans
	store     *ledger.Store
	portfolio *portfolio.Manager
	wallet    wallet.Wallet
	notifier  notify.Notifier
	locks     *userlock.Locker
}

// NewEngine wires the margin engine to its collaborators.
func NewEngine(logger *zap.Logger, cfg *config.Loans, store *ledger.Store, pf *portfolio.Manager, w wallet.Wallet, n notify.Notifier, locks *userlock.Locker) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		store:     store,
		portfolio: pf,
		wallet:    w,
		notifier:  n,
		locks:     locks,
	}
}

// MaxLoan computes how much a user may borrow right now: the conservative
// liquidation value of their portfolio less the security margin. Always
// recomputed from live prices, never cached across ticks.
func (e *Engine) MaxLoan(user uuid.UUID) float64 {
	return e.portfolio.GetValue(user) * (1 - e.cfg.SecurityMargin)
}

// Debt returns a user's outstanding debt; store failures degrade to zero
// with a log line.
func (e *Engine) Debt(user uuid.UUID) float64 {
	debt, err := e.store.Debt(user)
	if err != nil {
		e.logger.Warn("Failed to load debt, treating as zero",
			zap.String("user", user.String()), zap.Error(err))
		return 0
	}
	return debt
}

// StateOf derives a user's margin state from live collateral.
func (e *Engine) StateOf(user uuid.UUID) State {
	return StateFor(e.Debt(user), e.MaxLoan(user))
}

// TakeLoan lends amount to a user, bounded by their maximum loan and the
// absolute loan cap, and credits their wallet.
func (e *Engine) TakeLoan(ctx context.Context, user uuid.UUID, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("loan amount must be > 0, got %f", amount)
	}

	e.locks.Lock(user)
	defer e.locks.Unlock(user)

	debt := e.Debt(user)
	maxLoan := e.MaxLoan(user)

	if debt+amount > maxLoan {
		return fmt.Errorf("loan of %f exceeds maximum loan %f (current debt %f)", amount, maxLoan, debt)
	}
	if debt+amount > e.cfg.MaxSize {
		return fmt.Errorf("loan of %f exceeds absolute loan cap %f", amount, e.cfg.MaxSize)
	}

	if err := e.store.IncreaseDebt(user, amount); err != nil {
		return fmt.Errorf("failed to record loan: %w", err)
	}
	if err := e.wallet.Deposit(ctx, user, amount); err != nil {
		// The debt row was written; roll it back so the user does not owe
		// money they never received.
		if rbErr := e.store.DecreaseDebt(user, amount); rbErr != nil {
			e.logger.Error("Failed to roll back loan after deposit failure",
				zap.String("user", user.String()), zap.Error(rbErr))
		}
		return fmt.Errorf("failed to deposit loan: %w", err)
	}

	e.logger.Info("Loan granted",
		zap.String("user", user.String()),
		zap.Float64("amount", amount),
		zap.Float64("debt", debt+amount),
	)
	return nil
}

// RepayDebt withdraws amount from the user's wallet and reduces their debt.
// Repaying more than is owed repays exactly the outstanding debt.
func (e *Engine) RepayDebt(ctx context.Context, user uuid.UUID, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("repayment must be > 0, got %f", amount)
	}

	e.locks.Lock(user)
	defer e.locks.Unlock(user)

	debt := e.Debt(user)
	if debt <= 0 {
		return fmt.Errorf("user %s has no outstanding debt", user)
	}
	if amount > debt {
		amount = debt
	}

	if err := e.wallet.Withdraw(ctx, user, amount); err != nil {
		return fmt.Errorf("failed to withdraw repayment: %w", err)
	}
	if err := e.store.DecreaseDebt(user, amount); err != nil {
		return fmt.Errorf("failed to record repayment: %w", err)
	}

	e.logger.Info("Debt repaid",
		zap.String("user", user.String()),
		zap.Float64("amount", amount),
		zap.Float64("debt", debt-amount),
	)
	return nil
}

// CheckMarginsPass recomputes collateral for every debtor and either forces
// a margin call, warns, or leaves them alone. One debtor's failure never
// aborts the pass.
func (e *Engine) CheckMarginsPass(ctx context.Context) {
	debtors, err := e.store.AllDebtors()
	if err != nil {
		e.logger.Error("Failed to load debtors for margin check", zap.Error(err))
		return
	}

	for user, debt := range debtors {
		e.locks.Lock(user)

		maxLoan := e.MaxLoan(user)
		switch StateFor(debt, maxLoan) {
		case StateMarginCalled:
			e.forceMarginCallLocked(ctx, user)
		case StateWarned:
			e.notifier.Notify(user, fmt.Sprintf(
				"Margin warning: your debt of %.2f is close to your maximum loan of %.2f. Repay or add collateral to avoid liquidation.",
				debt, maxLoan))
		}

		e.locks.Unlock(user)
	}
}

// InterestPass charges every debtor one day of interest. Per debtor, exactly
// one of two things happens: the interest is withdrawn from the wallet and
// added to lifetime interest paid, or it is capitalized onto the debt.
func (e *Engine) InterestPass(ctx context.Context) {
	debtors, err := e.store.AllDebtors()
	if err != nil {
		e.logger.Error("Failed to load debtors for interest collection", zap.Error(err))
		return
	}

	for user, debt := range debtors {
		e.locks.Lock(user)
		e.collectInterestLocked(ctx, user, debt)
		e.locks.Unlock(user)
	}
}

func (e *Engine) collectInterestLocked(ctx context.Context, user uuid.UUID, debt float64) {
	interest := debt * e.cfg.DailyInterest
	if interest < e.cfg.MinimumInterest {
		interest = e.cfg.MinimumInterest
	}

	// The withdrawal doubles as the balance check: the wallet service
	// rejects overdrafts. A successful withdrawal commits the paid branch;
	// a rejected one commits the capitalize branch. Never both.
	if err := e.wallet.Withdraw(ctx, user, interest); err == nil {
		if err := e.store.AddInterestPaid(user, interest); err != nil {
			e.logger.Error("Interest withdrawn but not recorded",
				zap.String("user", user.String()),
				zap.Float64("interest", interest),
				zap.Error(err))
		}
		e.notifier.Notify(user, fmt.Sprintf("Interest of %.2f charged on your loan.", interest))
		return
	}

	if err := e.store.IncreaseDebt(user, interest); err != nil {
		e.logger.Error("Failed to capitalize interest",
			zap.String("user", user.String()),
			zap.Float64("interest", interest),
			zap.Error(err))
		return
	}
	e.notifier.Notify(user, fmt.Sprintf("Interest of %.2f added to your debt: insufficient balance.", interest))
}

// ForceMarginCall reduces a user's debt back under their maximum loan, from
// their wallet if it covers the difference, otherwise by liquidating the
// portfolio.
func (e *Engine) ForceMarginCall(ctx context.Context, user uuid.UUID) {
	e.locks.Lock(user)
	defer e.locks.Unlock(user)
	e.forceMarginCallLocked(ctx, user)
}

func (e *Engine) forceMarginCallLocked(ctx context.Context, user uuid.UUID) {
	debt := e.Debt(user)
	if debt <= 0 {
		return
	}
	maxLoan := e.MaxLoan(user)

	toPay := debt - maxLoan
	if debt > e.cfg.MaxSize && debt-e.cfg.MaxSize > toPay {
		toPay = debt - e.cfg.MaxSize
	}
	if toPay <= 0 {
		return
	}

	l := e.logger.With(
		zap.String("user", user.String()),
		zap.Float64("debt", debt),
		zap.Float64("max_loan", maxLoan),
		zap.Float64("to_pay", toPay),
	)
	l.Info("Forcing margin call")

	// Cheapest path first: cover the call from the wallet, no market impact.
	if err := e.wallet.Withdraw(ctx, user, toPay); err == nil {
		if err := e.store.DecreaseDebt(user, toPay); err != nil {
			l.Error("Margin call withdrawal succeeded but debt not reduced", zap.Error(err))
			return
		}
		e.notifier.Notify(user, fmt.Sprintf("Margin call: %.2f charged from your balance.", toPay))
		return
	}

	// Liquidation targets the full debt; proceeds land in the wallet and
	// min(debt, realized) is taken back, so any surplus above the debt stays
	// on the user's balance.
	realized := e.portfolio.Liquidate(ctx, user, debt)

	pay := realized
	if debt < pay {
		pay = debt
	}
	if pay > 0 {
		if err := e.wallet.Withdraw(ctx, user, pay); err != nil {
			l.Error("Failed to collect liquidation proceeds from wallet", zap.Error(err))
		}
		if err := e.store.DecreaseDebt(user, pay); err != nil {
			l.Error("Failed to reduce debt after liquidation", zap.Error(err))
			return
		}
	}

	l.Info("Margin call resolved by liquidation",
		zap.Float64("realized", realized),
		zap.Float64("paid", pay),
	)
	e.notifier.Notify(user, fmt.Sprintf("Margin call: your portfolio was liquidated for %.2f.", realized))
}

// TotalOutstandingDebt sums debt across all users, for the ops surface.
func (e *Engine) TotalOutstandingDebt() float64 {
	total, err := e.store.TotalOutstandingDebt()
	if err != nil {
		e.logger.Warn("Failed to sum outstanding debt", zap.Error(err))
		return 0
	}
	return total
}
