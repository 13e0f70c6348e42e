package disburse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"hyc/hyc-node/kv"
	"hyc/hyc-node/logging"
)

// TransferQueue is a Redis list of pending transfers plus a list of the ones that failed.
type TransferQueue struct {
	Client *redis.Client
	Prefix string
}

func (q *TransferQueue) pendingKey() string { return kv.Key(q.Prefix, "transfer_queue") }
func (q *TransferQueue) failedKey() string  { return kv.Key(q.Prefix, "transfer_failed_queue") }

type FailedTransfer struct {
	Transfer Transfer  `json:"transfer"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

func (q *TransferQueue) Enqueue(ctx context.Context, t *Transfer) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer: %w", err)
	}
	if err := q.Client.RPush(ctx, q.pendingKey(), data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue transfer: %w", err)
	}
	logging.Logger().Info().
		Str("transfer_id", t.ID).
		Str("kind", string(t.Kind)).
		Str("to", t.To).
		Str("queue", q.pendingKey()).
		Msg("Transfer enqueued")
	return nil
}

// Dequeue blocks up to timeout. It returns nil, nil when nothing arrived.
func (q *TransferQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Transfer, error) {
	result, err := q.Client.BLPop(ctx, timeout, q.pendingKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue transfer: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("invalid result from Redis")
	}
	var t Transfer
	if err := json.Unmarshal([]byte(result[1]), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfer: %w", err)
	}
	return &t, nil
}

func (q *TransferQueue) Fail(ctx context.Context, t *Transfer, cause error) error {
	data, err := json.Marshal(FailedTransfer{Transfer: *t, Error: cause.Error(), FailedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return q.Client.RPush(ctx, q.failedKey(), data).Err()
}

func (q *TransferQueue) Pending(ctx context.Context) (int64, error) {
	return q.Client.LLen(ctx, q.pendingKey()).Result()
}

func (q *TransferQueue) Failed(ctx context.Context) ([]FailedTransfer, error) {
	items, err := q.Client.LRange(ctx, q.failedKey(), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]FailedTransfer, 0, len(items))
	for _, item := range items {
		var f FailedTransfer
		if err := json.Unmarshal([]byte(item), &f); err != nil {
			return nil, fmt.Errorf("failed to unmarshal failed transfer: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
