/*
Package wallet owns per-user balances and the transaction ledger.

Every balance mutation runs inside a database transaction together with its
paired Transaction record; partial application is never a terminal state.
The package exposes two layers:

  - Service: the request-facing operations (top-up requests and approvals,
    withdrawal requests and approvals, manual credits, history).
  - Ledger: the Apply primitive other services use to move money inside
    their own database transactions, e.g. the gig ledger's escrow debit
    and completion payout.

Approval operations are idempotent: the PENDING -> settled transition is a
conditional update, so a duplicate approval finds no PENDING row and applies
nothing.
*/
package wallet
