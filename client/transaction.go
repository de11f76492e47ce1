package client

import (
	"context"

	"github.com/google/uuid"

	"stompclient/frame"
)

// Transaction is a handle on a BEGIN'd STOMP transaction. Every SEND
// issued through it carries the `transaction` header; Commit/Abort send
// COMMIT/ABORT for the same id.
type Transaction struct {
	id     string
	client *Client
}

// ID returns the transaction identifier used as the `transaction` header.
func (t *Transaction) ID() string { return t.id }

// Begin sends BEGIN and returns a handle scoping the transaction. Callers
// that want automatic commit-on-success/abort-on-error should prefer
// WithTransaction.
func (c *Client) Begin(ctx context.Context) (*Transaction, error) {
	id := uuid.NewString()
	if err := c.manager.WriteFrameReconnecting(ctx, frame.New(frame.CommandBegin, frame.Headers{"transaction": id})); err != nil {
		return nil, err
	}
	return &Transaction{id: id, client: c}, nil
}

// Send issues a SEND within the transaction, overriding any
// opts.Transaction the caller set.
func (t *Transaction) Send(ctx context.Context, destination string, body []byte, opts SendOptions) error {
	opts.Transaction = t.id
	return t.client.Send(ctx, destination, body, opts)
}

// Commit sends COMMIT for this transaction.
func (t *Transaction) Commit(ctx context.Context) error {
	return t.client.manager.WriteFrameReconnecting(ctx, frame.New(frame.CommandCommit, frame.Headers{"transaction": t.id}))
}

// Abort sends ABORT for this transaction, best-effort: a lost connection
// mid-abort is not worth reconnecting over, since the broker already
// discards an in-doubt transaction when its owning connection drops.
func (t *Transaction) Abort(ctx context.Context) error {
	return t.client.manager.MaybeWriteFrame(frame.New(frame.CommandAbort, frame.Headers{"transaction": t.id}))
}

// WithTransaction is the Go shape of spec §4.7's begin() scope: fn runs
// inside a freshly BEGIN'd transaction that COMMITs on a nil return and
// ABORTs on a non-nil return or a panic, re-panicking after the abort so
// the caller's stack trace is preserved.
func (c *Client) WithTransaction(ctx context.Context, fn func(txn *Transaction) error) (err error) {
	txn, err := c.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = txn.Abort(ctx)
			panic(p)
		}
		if err != nil {
			_ = txn.Abort(ctx)
			return
		}
		err = txn.Commit(ctx)
	}()

	err = fn(txn)
	return err
}
