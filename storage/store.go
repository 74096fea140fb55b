// Package storage defines the narrow persistence port every component
// writes through: conditional single-item Get/Put/Update, secondary-index
// Query, and multi-item transactional writes, Items
// travel as attribute maps (the shape DynamoDB itself uses) so the port
// can be satisfied by a real DynamoDB adapter or an in-memory one without
// either adapter knowing about domain types; individual components still
// work with the explicit structs in package domain, converted at the
// boundary by the Marshal/Unmarshal helpers in mapping.go.
package storage

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/crowdtask-platform/engine/common"
)

// Item is a single row's attribute map, the DynamoDB-style shape the
// original Python platform's tables used.
type Item map[string]interface{}

// Op is a condition comparison operator.
type Op string

const (
	OpEq Op = "EQ"
	OpNotEq Op = "NEQ"
	OpGte Op = "GTE"
	OpLte Op = "LTE"
	OpExists Op = "EXISTS"
	OpNotExists Op = "NOT_EXISTS"
)

// Condition is a single-attribute guard evaluated against the item's
// current stored state before a Put/Update/transact item commits — the
// sole concurrency primitive: every state transition is encoded as a
// conditional transition.
type Condition struct {
	Attr string
	Op Op
	Value interface{}
}

// Eval reports whether the condition holds against item (nil item means
// the row does not exist).
func (c *Condition) Eval(item Item) bool {
	if c == nil {
		return true
	}
	switch c.Op {
	case OpExists:
		return item != nil
	case OpNotExists:
		return item == nil
	}
	if item == nil {
		return false
	}
	current, ok := item[c.Attr]
	if !ok {
		return false
	}
	switch c.Op {
	case OpEq:
		return compareEq(current, c.Value)
	case OpNotEq:
		return !compareEq(current, c.Value)
	case OpGte:
		return compareNum(current, c.Value) >= 0
	case OpLte:
		return compareNum(current, c.Value) <= 0
	}
	return false
}

func compareEq(a, b interface{}) bool {
	fa, aok := toFloat(a)
	fb, bok := toFloat(b)
	if aok && bok {
		return fa == fb
	}
	return a == b
}

func compareNum(a, b interface{}) int {
	fa, _ := toFloat(a)
	fb, _ := toFloat(b)
	switch {
	case fa < fb:
		return -1
	case fa > fb:
		return 1
	default:
		return 0
	}
}

// toFloat attempts a numeric reading of v, reporting false for values
// (status strings, ids) that aren't numbers at all, so compareEq never
// treats two distinct non-numeric strings as equal just because neither
// parses.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case decimal.Decimal:
		f, _ := n.Float64()
		return f, true
	case string:
		// Money attributes are stored as decimal strings (mapping.go's
		// decStr), so a condition like "balance >= amount" compares here.
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// PutSpec describes a conditional Put.
type PutSpec struct {
	Table string
	Key Item // primary key, used only to evaluate Condition against any existing row
	Item Item
	Condition *Condition
}

// UpdateSpec describes a conditional Update. Set assigns attributes
// unconditionally given the guard passes; Add performs an atomic
// increment (DynamoDB ADD semantics), used by the Payment and
// Gamification engines' upsert-and-increment writes.
type UpdateSpec struct {
	Table string
	Key Item
	Set Item
	Add Item
	Condition *Condition
}

// TxItem is one item of a multi-item transactional write. Exactly one
// of Put/Update must be set.
type TxItem struct {
	Put *PutSpec
	Update *UpdateSpec
}

// QuerySpec describes a single secondary-index query with one key
// predicate and an optional in-memory filter, and the
// original dynamo.py's query surface.
type QuerySpec struct {
	Table string
	Index string
	KeyAttr string
	KeyValue interface{}
	Filter func(Item) bool
	Limit int
	ScanForward bool // false = most-recent-first
}

// Store is the persistence port. Every component depends on this
// interface, never on a concrete adapter.
type Store interface {
	Get(ctx context.Context, table string, key Item) (Item, bool, error)
	Put(ctx context.Context, spec PutSpec) error
	// Update applies spec and returns the item's state after the write,
	// so ADD-style upserts (Gamification, wallet credit) can read back
	// the post-increment counters without a second round trip.
	Update(ctx context.Context, spec UpdateSpec) (Item, error)
	Query(ctx context.Context, spec QuerySpec) ([]Item, error)
	// TransactWrite commits every item or none. On a condition failure it
	// returns a *ConditionFailedError identifying which item failed.
	TransactWrite(ctx context.Context, items []TxItem) error
}

// ConditionFailedError identifies which transact item's precondition
// did not hold, so callers can map it to the error
// kind (PreconditionFailed, InsufficientFunds,...) instead of guessing.
type ConditionFailedError struct {
	Index int
	Table string
}

func (e *ConditionFailedError) Error() string {
	return "condition failed on transact item"
}

// AsConditionFailed extracts a *ConditionFailedError from err, if any.
func AsConditionFailed(err error) (*ConditionFailedError, bool) {
	cfe, ok := err.(*ConditionFailedError)
	return cfe, ok
}

// ErrNotFound is a convenience constructor for a missing row.
func ErrNotFound(table, id string) error {
	return common.Newf(common.NotFound, "%s/%s not found", table, id)
}
