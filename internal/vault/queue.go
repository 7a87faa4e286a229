package vault

import (
	"fmt"

	sdkmath "cosmossdk.io/math"
)

// requestQueue is an ordered depositor -> pending amount mapping. The key
// list preserves insertion order so settlement is deterministic.
type requestQueue struct {
	order   []string
	amounts map[string]sdkmath.Int
	total   sdkmath.Int
}

func newRequestQueue() *requestQueue {
	return &requestQueue{
		order:   make([]string, 0),
		amounts: make(map[string]sdkmath.Int),
		total:   sdkmath.ZeroInt(),
	}
}

func (q *requestQueue) add(who string, amount sdkmath.Int) {
	if existing, ok := q.amounts[who]; ok {
		q.amounts[who] = existing.Add(amount)
	} else {
		q.order = append(q.order, who)
		q.amounts[who] = amount
	}
	q.total = q.total.Add(amount)
}

// reduce decrements a pending entry, removing it entirely when it reaches
// zero.
func (q *requestQueue) reduce(who string, amount sdkmath.Int) error {
	existing, ok := q.amounts[who]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNothingQueued, who)
	}
	if amount.GT(existing) {
		return fmt.Errorf("%w: queued %s, requested %s", ErrInsufficientQueued, existing, amount)
	}
	remaining := existing.Sub(amount)
	if remaining.IsZero() {
		delete(q.amounts, who)
		for i, key := range q.order {
			if key == who {
				q.order = append(q.order[:i], q.order[i+1:]...)
				break
			}
		}
	} else {
		q.amounts[who] = remaining
	}
	q.total = q.total.Sub(amount)
	return nil
}

// drain visits every entry in insertion order and then resets the queue.
func (q *requestQueue) drain(visit func(who string, amount sdkmath.Int) error) error {
	for _, who := range q.order {
		if err := visit(who, q.amounts[who]); err != nil {
			return err
		}
	}
	q.order = make([]string, 0)
	q.amounts = make(map[string]sdkmath.Int)
	q.total = sdkmath.ZeroInt()
	return nil
}

func (q *requestQueue) pending(who string) sdkmath.Int {
	if amount, ok := q.amounts[who]; ok {
		return amount
	}
	return sdkmath.ZeroInt()
}

func (q *requestQueue) len() int {
	return len(q.order)
}
