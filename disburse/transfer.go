// Package disburse moves withdrawn value to recipients, relayers and the pool owner.
package disburse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindRelayerFee  Kind = "relayer_fee"
	KindWithdrawal  Kind = "withdrawal"
	KindProtocolFee Kind = "protocol_fee"
)

type Transfer struct {
	ID        string
	Kind      Kind
	To        string
	Amount    big.Int
	Currency  string
	Reference string
	CreatedAt time.Time
}

func NewTransfer(kind Kind, to string, amount *big.Int, currency, reference string) Transfer {
	t := Transfer{
		ID:        uuid.New().String(),
		Kind:      kind,
		To:        to,
		Currency:  currency,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
	t.Amount.Set(amount)
	return t
}

type transferJSON struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Transfer) MarshalJSON() ([]byte, error) {
	return json.Marshal(transferJSON{
		ID:        t.ID,
		Kind:      t.Kind,
		To:        t.To,
		Amount:    t.Amount.String(),
		Currency:  t.Currency,
		Reference: t.Reference,
		CreatedAt: t.CreatedAt,
	})
}

func (t *Transfer) UnmarshalJSON(data []byte) error {
	var raw transferJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := t.Amount.SetString(raw.Amount, 10); !ok {
		return fmt.Errorf("invalid transfer amount %q", raw.Amount)
	}
	t.ID = raw.ID
	t.Kind = raw.Kind
	t.To = raw.To
	t.Currency = raw.Currency
	t.Reference = raw.Reference
	t.CreatedAt = raw.CreatedAt
	return nil
}

func (t *Transfer) validate() error {
	if t.To == "" {
		return errors.New("transfer has no destination")
	}
	if t.Amount.Sign() <= 0 {
		return fmt.Errorf("transfer amount must be positive, got %s", t.Amount.String())
	}
	return nil
}

// Disburser hands transfers to whatever moves the funds. Transfers are issued in the order given.
type Disburser interface {
	Disburse(ctx context.Context, transfers ...Transfer) error
}

// SyncDisburser credits the ledger inline and stops at the first failure.
type SyncDisburser struct {
	Ledger Ledger
}

func (d *SyncDisburser) Disburse(ctx context.Context, transfers ...Transfer) error {
	for i := range transfers {
		if err := apply(ctx, d.Ledger, &transfers[i]); err != nil {
			return err
		}
	}
	return nil
}

// QueueDisburser defers transfers to a Worker reading the same queue.
type QueueDisburser struct {
	Queue *TransferQueue
}

func (d *QueueDisburser) Disburse(ctx context.Context, transfers ...Transfer) error {
	for i := range transfers {
		if err := transfers[i].validate(); err != nil {
			return err
		}
		if err := d.Queue.Enqueue(ctx, &transfers[i]); err != nil {
			return err
		}
	}
	return nil
}

func apply(ctx context.Context, ledger Ledger, t *Transfer) error {
	if err := t.validate(); err != nil {
		return err
	}
	if err := ledger.Credit(ctx, t.To, &t.Amount); err != nil {
		return fmt.Errorf("transfer %s to %s: %w", t.ID, t.To, err)
	}
	return nil
}
