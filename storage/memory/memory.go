// Package memory implements storage.Store as an in-process, mutex-guarded
// map of tables. It gives every other package's tests the same
// conditional/transactional semantics as the DynamoDB adapter without a
// live AWS account, and backs the single-process dev/test binaries.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/storage"
)

type table map[string]storage.Item // primary key string -> item

// Store is an in-memory storage.Store.
type Store struct {
	mu     sync.Mutex
	tables map[string]table
}

// New returns an empty Store.
func New() *Store {
	return &Store{tables: map[string]table{}}
}

func (s *Store) tableFor(name string) table {
	t, ok := s.tables[name]
	if !ok {
		t = table{}
		s.tables[name] = t
	}
	return t
}

func keyString(key storage.Item) string {
	// Every entity in this platform uses a single-attribute primary key
	// (taskId, assignmentId, submissionId, ...), so the first (only)
	// value is the row identity.
	for _, v := range key {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

func clone(it storage.Item) storage.Item {
	if it == nil {
		return nil
	}
	out := make(storage.Item, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

func (s *Store) Get(_ context.Context, tableName string, key storage.Item) (storage.Item, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(tableName)
	it, ok := t[keyString(key)]
	return clone(it), ok, nil
}

func (s *Store) Put(_ context.Context, spec storage.PutSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(spec.Table)
	ks := keyString(spec.Key)
	existing := t[ks]
	if !spec.Condition.Eval(existing) {
		return &storage.ConditionFailedError{Table: spec.Table}
	}
	t[ks] = clone(spec.Item)
	return nil
}

func (s *Store) Update(_ context.Context, spec storage.UpdateSpec) (storage.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyUpdate(s.tableFor(spec.Table), spec)
}

// applyUpdate performs the condition check + Set/Add mutation, used both
// by the single-item Update call and by TransactWrite.
func applyUpdate(t table, spec storage.UpdateSpec) (storage.Item, error) {
	ks := keyString(spec.Key)
	existing := t[ks]
	if !spec.Condition.Eval(existing) {
		return nil, &storage.ConditionFailedError{Table: spec.Table}
	}
	merged := clone(existing)
	if merged == nil {
		merged = storage.Item{}
		for k, v := range spec.Key {
			merged[k] = v
		}
	}
	for k, v := range spec.Set {
		merged[k] = v
	}
	for k, delta := range spec.Add {
		merged[k] = addNumeric(merged[k], delta)
	}
	t[ks] = merged
	return clone(merged), nil
}

func addNumeric(current, delta interface{}) interface{} {
	// Money attributes round-trip through mapping.go as decimal strings
	// (decStr/decFrom), never as float64/int64, so route those through
	// shopspring/decimal arithmetic instead of the lossy float path below
	// — the Wallet ledger and Payment Engine both depend on ADD not
	// drifting a balance by floating-point error.
	if isDecimalLike(current) || isDecimalLike(delta) {
		return asDecimal(current).Add(asDecimal(delta)).String()
	}
	cf, df := toFloat(current), toFloat(delta)
	sum := cf + df
	// Preserve int64 when both operands were integral, matching
	// DynamoDB's numeric-type-agnostic ADD semantics closely enough for
	// counters (tasksSubmitted, tasksApproved) that are always integers.
	if isIntegral(current) && isIntegral(delta) {
		return int64(sum)
	}
	return sum
}

func isDecimalLike(v interface{}) bool {
	switch v.(type) {
	case decimal.Decimal, string:
		return true
	default:
		return false
	}
}

func asDecimal(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case decimal.Decimal:
		return n
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int64:
		return decimal.NewFromInt(n)
	case int:
		return decimal.NewFromInt(int64(n))
	default:
		return decimal.Zero
	}
}

func isIntegral(v interface{}) bool {
	switch v.(type) {
	case nil, int, int64:
		return true
	default:
		return false
	}
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case nil:
		return 0
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}

func (s *Store) Query(_ context.Context, spec storage.QuerySpec) ([]storage.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tableFor(spec.Table)
	var out []storage.Item
	for _, it := range t {
		if v, ok := it[spec.KeyAttr]; !ok || fmt.Sprintf("%v", v) != fmt.Sprintf("%v", spec.KeyValue) {
			continue
		}
		if spec.Filter != nil && !spec.Filter(it) {
			continue
		}
		out = append(out, clone(it))
	}
	sortKey := "createdAt"
	sort.SliceStable(out, func(i, j int) bool {
		a, b := toFloat(out[i][sortKey]), toFloat(out[j][sortKey])
		if spec.ScanForward {
			return a < b
		}
		return a > b
	})
	if spec.Limit > 0 && len(out) > spec.Limit {
		out = out[:spec.Limit]
	}
	return out, nil
}

func (s *Store) TransactWrite(_ context.Context, items []storage.TxItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate every condition against the current snapshot before
	// mutating anything, so the transaction is all-or-nothing.
	for i, txi := range items {
		switch {
		case txi.Put != nil:
			t := s.tableFor(txi.Put.Table)
			existing := t[keyString(txi.Put.Key)]
			if !txi.Put.Condition.Eval(existing) {
				return &storage.ConditionFailedError{Index: i, Table: txi.Put.Table}
			}
		case txi.Update != nil:
			t := s.tableFor(txi.Update.Table)
			existing := t[keyString(txi.Update.Key)]
			if !txi.Update.Condition.Eval(existing) {
				return &storage.ConditionFailedError{Index: i, Table: txi.Update.Table}
			}
		}
	}

	for _, txi := range items {
		switch {
		case txi.Put != nil:
			t := s.tableFor(txi.Put.Table)
			t[keyString(txi.Put.Key)] = clone(txi.Put.Item)
		case txi.Update != nil:
			t := s.tableFor(txi.Update.Table)
			_, _ = applyUpdate(t, *txi.Update)
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)
