package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jmallek/escrowdex/pkg/events"
	"github.com/jmallek/escrowdex/pkg/storage"
)

var (
	tokenA = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB = common.HexToAddress("0x1000000000000000000000000000000000000002")
	alice  = common.HexToAddress("0xAA00000000000000000000000000000000000000")
	bob    = common.HexToAddress("0xBB00000000000000000000000000000000000000")
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func commit(t *testing.T, b storage.Batch) {
	t.Helper()
	if err := b.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	b.Close()
}

func TestBalanceRoundTrip(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	if err := b.SetBalance(tokenA, alice, 100); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := b.SetBalance(tokenA, bob, 50); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := b.SetBalance(tokenB, alice, 7); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	commit(t, b)

	balances, err := s.LoadBalances()
	if err != nil {
		t.Fatalf("load balances: %v", err)
	}
	if got := balances[tokenA][alice]; got != 100 {
		t.Errorf("tokenA/alice: got %d, want 100", got)
	}
	if got := balances[tokenA][bob]; got != 50 {
		t.Errorf("tokenA/bob: got %d, want 50", got)
	}
	if got := balances[tokenB][alice]; got != 7 {
		t.Errorf("tokenB/alice: got %d, want 7", got)
	}
}

func TestBalanceOverwrite(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	b.SetBalance(tokenA, alice, 100)
	commit(t, b)

	b = s.NewBatch()
	b.SetBalance(tokenA, alice, 40)
	commit(t, b)

	balances, err := s.LoadBalances()
	if err != nil {
		t.Fatalf("load balances: %v", err)
	}
	if got := balances[tokenA][alice]; got != 40 {
		t.Errorf("tokenA/alice: got %d, want 40", got)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	s := newTestStore(t)

	recs := []storage.OrderRecord{
		{ID: 1, User: alice, TokenGet: tokenB, AmountGet: 10, TokenGive: tokenA, AmountGive: 20, Timestamp: 1700000000, Status: 0},
		{ID: 2, User: bob, TokenGet: tokenA, AmountGet: 5, TokenGive: tokenB, AmountGive: 5, Timestamp: 1700000001, Status: 2},
	}
	b := s.NewBatch()
	for _, rec := range recs {
		if err := b.PutOrder(rec); err != nil {
			t.Fatalf("put order: %v", err)
		}
	}
	commit(t, b)

	got, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("order count: got %d, want 2", len(got))
	}
	for i := range recs {
		if got[i] != recs[i] {
			t.Errorf("order %d: got %+v, want %+v", i, got[i], recs[i])
		}
	}
}

// Order keys are zero-padded so id order and key order agree past id 9.
func TestOrdersLoadInIDOrder(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	for _, id := range []uint64{12, 2, 100, 9} {
		if err := b.PutOrder(storage.OrderRecord{ID: id, User: alice}); err != nil {
			t.Fatalf("put order: %v", err)
		}
	}
	commit(t, b)

	got, err := s.LoadOrders()
	if err != nil {
		t.Fatalf("load orders: %v", err)
	}
	want := []uint64{2, 9, 12, 100}
	if len(got) != len(want) {
		t.Fatalf("order count: got %d, want %d", len(got), len(want))
	}
	for i, rec := range got {
		if rec.ID != want[i] {
			t.Errorf("position %d: got id %d, want %d", i, rec.ID, want[i])
		}
	}
}

func TestEventLog(t *testing.T) {
	s := newTestStore(t)

	if seq, err := s.LastEventSeq(); err != nil || seq != 0 {
		t.Fatalf("empty log: got seq %d, err %v", seq, err)
	}

	for seq := uint64(1); seq <= 5; seq++ {
		b := s.NewBatch()
		env := events.Envelope{Seq: seq, Name: events.NameDeposit, Time: 1700000000 + int64(seq)}
		if err := b.AppendEvent(env); err != nil {
			t.Fatalf("append event: %v", err)
		}
		commit(t, b)
	}

	if seq, err := s.LastEventSeq(); err != nil || seq != 5 {
		t.Fatalf("last seq: got %d, err %v", seq, err)
	}

	got, err := s.Events(2, 2)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 2 || got[1].Seq != 3 {
		t.Errorf("range scan from 2 limit 2: got %+v", got)
	}

	got, err = s.Events(4, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 4 || got[1].Seq != 5 {
		t.Errorf("tail scan: got %+v", got)
	}

	got, err = s.Events(6, 10)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("scan past end: got %d envelopes", len(got))
	}
}

// RecentEvents scans backwards, so the newest matches survive no matter how
// much older history precedes them.
func TestRecentEvents(t *testing.T) {
	s := newTestStore(t)

	// Trades at seqs 2, 5 and 9, buried in other events.
	names := map[uint64]string{2: events.NameTrade, 5: events.NameTrade, 9: events.NameTrade}
	for seq := uint64(1); seq <= 10; seq++ {
		name := names[seq]
		if name == "" {
			name = events.NameDeposit
		}
		b := s.NewBatch()
		if err := b.AppendEvent(events.Envelope{Seq: seq, Name: name}); err != nil {
			t.Fatalf("append event: %v", err)
		}
		commit(t, b)
	}

	got, err := s.RecentEvents(events.NameTrade, 2)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(got) != 2 || got[0].Seq != 5 || got[1].Seq != 9 {
		t.Errorf("newest two trades oldest-first: got %+v", got)
	}

	got, err = s.RecentEvents(events.NameTrade, 10)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(got) != 3 || got[0].Seq != 2 || got[1].Seq != 5 || got[2].Seq != 9 {
		t.Errorf("all trades oldest-first: got %+v", got)
	}

	got, err = s.RecentEvents(events.NameCancel, 5)
	if err != nil {
		t.Fatalf("recent events: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("no cancels expected, got %+v", got)
	}
}

// A closed batch must leave no trace; only Commit makes writes visible.
func TestBatchDiscard(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	if err := b.SetBalance(tokenA, alice, 999); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close batch: %v", err)
	}

	balances, err := s.LoadBalances()
	if err != nil {
		t.Fatalf("load balances: %v", err)
	}
	if len(balances) != 0 {
		t.Errorf("discarded batch leaked writes: %v", balances)
	}
}

func TestBatchAtomicVisibility(t *testing.T) {
	s := newTestStore(t)

	b := s.NewBatch()
	b.SetBalance(tokenA, alice, 10)
	b.PutOrder(storage.OrderRecord{ID: 1, User: alice})
	b.AppendEvent(events.Envelope{Seq: 1, Name: events.NameOrder})

	// Nothing is visible before the commit.
	if balances, _ := s.LoadBalances(); len(balances) != 0 {
		t.Errorf("uncommitted balance visible: %v", balances)
	}
	if orders, _ := s.LoadOrders(); len(orders) != 0 {
		t.Errorf("uncommitted order visible: %v", orders)
	}

	commit(t, b)

	balances, _ := s.LoadBalances()
	orders, _ := s.LoadOrders()
	seq, _ := s.LastEventSeq()
	if balances[tokenA][alice] != 10 || len(orders) != 1 || seq != 1 {
		t.Errorf("committed batch incomplete: balances=%v orders=%v seq=%d", balances, orders, seq)
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")

	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	b := s.NewBatch()
	b.SetBalance(tokenA, alice, 77)
	b.AppendEvent(events.Envelope{Seq: 1, Name: events.NameDeposit})
	commit(t, b)
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = storage.Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	balances, err := s.LoadBalances()
	if err != nil {
		t.Fatalf("load balances: %v", err)
	}
	if got := balances[tokenA][alice]; got != 77 {
		t.Errorf("tokenA/alice after reopen: got %d, want 77", got)
	}
	if seq, _ := s.LastEventSeq(); seq != 1 {
		t.Errorf("event seq after reopen: got %d, want 1", seq)
	}
}
