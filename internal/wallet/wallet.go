package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Wallet is the host game server's currency ledger as seen by the core.
// Implementations are external; the core only checks, withdraws and
// deposits.
type Wallet interface {
	Balance(ctx context.Context, user uuid.UUID) (float64, error)
	Withdraw(ctx context.Context, user uuid.UUID, amount float64) error
	Deposit(ctx context.Context, user uuid.UUID, amount float64) error
}
