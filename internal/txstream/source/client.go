package source

import (
	"context"
	"errors"

	"github.com/chenzhangda16/web3-txstream/internal/txstream/model"
)

var (
	// ErrUnavailable covers network, auth and service failures. Callers retry.
	ErrUnavailable = errors.New("remote source unavailable")
	// ErrMalformed means the remote answered but the body failed validation.
	ErrMalformed = errors.New("malformed remote response")
)

// RangeResult is the outcome of one range query.
// HighestBlock is the highest block the remote actually scanned, which may
// be below the requested `to` (the remote clamps to its own head) and may
// cover blocks that carried no matching transactions.
type RangeResult struct {
	Txs          []model.Tx
	HighestBlock int64
	NextBlock    int64 // remote's suggested continuation point; 0 if absent
}

// Client is the remote fetch contract. Both calls are network round-trips.
type Client interface {
	Height(ctx context.Context) (int64, error)
	Range(ctx context.Context, from, to int64) (RangeResult, error)
}
