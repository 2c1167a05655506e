// Package transport defines the boundary between the chat engine and the
// managed backend: authenticated CRUD against two logical tables, a
// table-wide change stream and file uploads.
package transport

import (
	"context"
	"time"
)

// Row is one backend record keyed by column name.
type Row map[string]any

// Session is the authenticated identity.
type Session struct {
	UserID      string
	AccessToken string
	ExpiresAt   time.Time
}

type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpIn  Op = "in"
)

// Cond is a single column predicate. For OpIn, Value is a []string.
type Cond struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, value any) Cond  { return Cond{Column: column, Op: OpEq, Value: value} }
func Neq(column string, value any) Cond { return Cond{Column: column, Op: OpNeq, Value: value} }
func In(column string, values []string) Cond {
	return Cond{Column: column, Op: OpIn, Value: values}
}

// Filter selects rows matching every condition in All and, when Any is not
// empty, at least one of the AND-groups in Any.
type Filter struct {
	All []Cond
	Any [][]Cond
}

// Order sorts and bounds a query. Zero Limit means unbounded.
type Order struct {
	Column string
	Desc   bool
	Limit  int
	Offset int
}

type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// ChangeEvent is one row-level notification from the change stream.
type ChangeEvent struct {
	Type  EventType
	Table string
	Row   Row
}

// StreamHandle is a live subscription. Events is closed when the stream
// ends; Err then reports why (nil after Close). Close is idempotent.
type StreamHandle interface {
	Events() <-chan ChangeEvent
	Err() error
	Close() error
}

// Adapter is everything the engine needs from the backend. Implementations
// must be safe for concurrent use.
type Adapter interface {
	// GetSession returns the current identity or nil when signed out.
	GetSession(ctx context.Context) (*Session, error)
	Query(ctx context.Context, table string, filter Filter, order Order) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Update(ctx context.Context, table string, filter Filter, patch Row) error
	// Subscribe returns once the backend has acknowledged the stream.
	// No per-row filtering is applied server-side.
	Subscribe(ctx context.Context, table string, events []EventType) (StreamHandle, error)
	// UploadFile stores data and returns its public URL.
	UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error)
}
