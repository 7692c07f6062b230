// Package bill orchestrates bill payments as a three-phase saga over the
// wallet ledger, the transaction state machine, and the work queue.
//
// Phase 1 (PayBill, synchronous): create a PENDING transaction, debit the
// wallet, move to PROCESSING, enqueue a process-payment job. Any failure
// after the debit refunds the wallet inline before surfacing the error, so
// an initiation never exits with money taken and no job queued.
//
// Phase 2 (process-payment worker): call the external gateway. Success
// completes the transaction; any decline, timeout or transport error marks
// it FAILED and enqueues a process-reversal job. Compensation is pushed
// through the queue rather than done inline so it survives a worker crash
// between the gateway call and the refund.
//
// Phase 3 (process-reversal worker): create a REVERSAL transaction, refund
// the wallet, complete the reversal, and mark the original REVERSED. The
// reversal transaction id is derived from the original ("rev-<id>"), which
// is what makes redelivered reversal jobs safe: the duplicate create is
// detected and the refund is not applied twice.
package bill
