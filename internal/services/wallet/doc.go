/*
Package wallet implements the wallet ledger.

One balance record per user, mutated only through three operations:

  - Fund: unconditional additive credit, creates the wallet if absent
  - Debit: conditional decrement, serializable against concurrent debits
  - Refund: same as Fund, used by the payment saga for compensation

Debit uses optimistic concurrency: the balance write is guarded by the
wallet's version counter, and a conflicting writer causes a bounded
re-read-and-retry rather than a lock wait. Two concurrent debits of 6
against a balance of 10 resolve to exactly one success and one
ErrInsufficientFunds; neither balance loss nor double spend is possible.

Usage:

	svc := wallet.NewService(repo, cache, charger, wallet.Config{}, logger)

	w, err := svc.Fund(ctx, userID, 100)
	w, err = svc.Debit(ctx, userID, 40)
	w, err = svc.Refund(ctx, userID, 40)

Error Handling:

  - ErrInvalidAmount: non-positive amount, rejected before any write
  - ErrWalletNotFound: debit or balance read against an absent wallet
  - ErrInsufficientFunds: debit larger than the current balance
  - ErrConcurrentModification: version conflicts persisted past the
    bounded retry count
*/
package wallet
