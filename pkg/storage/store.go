package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/jmallek/escrowdex/pkg/events"
)

// OrderRecord is the persisted form of an order. The exchange maps between
// this and its in-memory representation so the two packages stay decoupled.
type OrderRecord struct {
	ID         uint64         `json:"id"`
	User       common.Address `json:"user"`
	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  uint64         `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive uint64         `json:"amountGive"`
	Timestamp  int64          `json:"timestamp"`
	Status     int8           `json:"status"`
}

// Store provides pebble-backed persistence for custody balances, orders and
// the event log. Mutations go through Batch so every ledger operation
// commits atomically.
type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the database at path.
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// LoadBalances reads every custody balance, keyed token -> user -> amount.
func (s *Store) LoadBalances() (map[common.Address]map[common.Address]uint64, error) {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	balances := make(map[common.Address]map[common.Address]uint64)
	for iter.First(); iter.Valid(); iter.Next() {
		token, user, err := balanceKeyAddrs(iter.Key())
		if err != nil {
			return nil, err
		}
		if len(iter.Value()) != 8 {
			return nil, fmt.Errorf("invalid balance value for %s", iter.Key())
		}
		amount := binary.BigEndian.Uint64(iter.Value())
		if balances[token] == nil {
			balances[token] = make(map[common.Address]uint64)
		}
		balances[token][user] = amount
	}
	return balances, iter.Error()
}

// LoadOrders reads every order record in id order.
func (s *Store) LoadOrders() ([]OrderRecord, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var orders []OrderRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec OrderRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("unmarshal order %s: %w", iter.Key(), err)
		}
		orders = append(orders, rec)
	}
	return orders, iter.Error()
}

// LastEventSeq returns the sequence number of the newest logged event, or 0
// if the log is empty.
func (s *Store) LastEventSeq() (uint64, error) {
	prefix := []byte(prefixEvent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	var env events.Envelope
	if err := json.Unmarshal(iter.Value(), &env); err != nil {
		return 0, fmt.Errorf("unmarshal event %s: %w", iter.Key(), err)
	}
	return env.Seq, nil
}

// Events returns up to limit envelopes with Seq >= from, oldest first.
// Payloads come back as generic JSON values.
func (s *Store) Events(from uint64, limit int) ([]events.Envelope, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: keyUpperBound([]byte(prefixEvent)),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []events.Envelope
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		var env events.Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			return nil, fmt.Errorf("unmarshal event %s: %w", iter.Key(), err)
		}
		out = append(out, env)
	}
	return out, iter.Error()
}

// RecentEvents returns up to limit of the newest envelopes carrying name,
// oldest first. The log is scanned backwards, so old history never pushes
// recent entries out of the window.
func (s *Store) RecentEvents(name string, limit int) ([]events.Envelope, error) {
	prefix := []byte(prefixEvent)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []events.Envelope
	for ok := iter.Last(); ok && len(out) < limit; ok = iter.Prev() {
		var env events.Envelope
		if err := json.Unmarshal(iter.Value(), &env); err != nil {
			return nil, fmt.Errorf("unmarshal event %s: %w", iter.Key(), err)
		}
		if env.Name != name {
			continue
		}
		out = append(out, env)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, iter.Error()
}

// Batch accumulates writes that must land atomically: a fill's balance
// moves, the order's status flip and the Trade envelope all ride one commit.
// Commit writes durably and atomically; Close discards staged writes.
type Batch interface {
	SetBalance(token, user common.Address, amount uint64) error
	PutOrder(rec OrderRecord) error
	AppendEvent(env events.Envelope) error
	Commit() error
	Close() error
}

type pebbleBatch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() Batch {
	return &pebbleBatch{batch: s.db.NewBatch()}
}

// SetBalance stages a custody balance write.
func (b *pebbleBatch) SetBalance(token, user common.Address, amount uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], amount)
	return b.batch.Set(balanceKey(token, user), buf[:], nil)
}

// PutOrder stages an order record write (creation or status change).
func (b *pebbleBatch) PutOrder(rec OrderRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal order %d: %w", rec.ID, err)
	}
	return b.batch.Set(orderKey(rec.ID), data, nil)
}

// AppendEvent stages an event envelope write.
func (b *pebbleBatch) AppendEvent(env events.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event %d: %w", env.Seq, err)
	}
	return b.batch.Set(eventKey(env.Seq), data, nil)
}

func (b *pebbleBatch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

func (b *pebbleBatch) Close() error {
	return b.batch.Close()
}
