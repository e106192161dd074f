package exchange

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/jmallek/escrowdex/pkg/storage"
)

// OrderStatus is the lifecycle state of an order. Open is the only
// non-terminal state; the transition out of it happens at most once.
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderFilled
	OrderCancelled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderFilled:
		return "filled"
	case OrderCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Order is an entry in the append-only book. Every field except Status is
// immutable after creation; orders are never deleted.
type Order struct {
	ID         uint64         // unique, strictly increasing from 1
	User       common.Address // maker
	TokenGet   common.Address // asset the maker wants to receive
	AmountGet  uint64
	TokenGive  common.Address // asset the maker offers
	AmountGive uint64
	Timestamp  int64 // creation time, unix seconds
	Status     OrderStatus
}

func (o *Order) record() storage.OrderRecord {
	return storage.OrderRecord{
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  o.Timestamp,
		Status:     int8(o.Status),
	}
}

func orderFromRecord(rec storage.OrderRecord) *Order {
	return &Order{
		ID:         rec.ID,
		User:       rec.User,
		TokenGet:   rec.TokenGet,
		AmountGet:  rec.AmountGet,
		TokenGive:  rec.TokenGive,
		AmountGive: rec.AmountGive,
		Timestamp:  rec.Timestamp,
		Status:     OrderStatus(rec.Status),
	}
}
