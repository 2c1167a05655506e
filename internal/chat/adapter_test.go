package chat

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/transport"

	"github.com/google/uuid"
)

// fakeAdapter is an in-memory backend. Streams receive every change to the
// messages table; like the real backend it applies no per-row filter.
type fakeAdapter struct {
	mu sync.Mutex

	session *transport.Session
	rows    []transport.Row

	queryErr     error
	insertErr    error
	uploadErr    error
	// uploadGate, when set, holds every upload until it is closed.
	uploadGate chan struct{}
	subscribeErr error
	// failSubscribes makes the next n Subscribe calls fail.
	failSubscribes int
	// emitOnInsert broadcasts inserted rows before Insert returns.
	emitOnInsert bool

	streams   []*fakeStream
	open      int
	maxOpen   int
	log       []string
	queries   int
	updates   []transport.Filter
	uploads   []string
	subscribe int
}

func newFakeAdapter(me string) *fakeAdapter {
	return &fakeAdapter{session: &transport.Session{UserID: me, AccessToken: "token"}}
}

func (f *fakeAdapter) GetSession(ctx context.Context) (*transport.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return nil, nil
	}
	s := *f.session
	return &s, nil
}

// seed stores n messages alternating direction between a and b, one second
// apart, starting an hour ago.
func (f *fakeAdapter) seed(a, b string, n int) []transport.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := time.Now().Add(-time.Hour)
	out := make([]transport.Row, 0, n)
	for i := 0; i < n; i++ {
		from, to := a, b
		if i%2 == 1 {
			from, to = b, a
		}
		row := transport.Row{
			message.ColID:         uuid.NewString(),
			message.ColCreatedAt:  base.Add(time.Duration(i) * time.Second),
			message.ColSenderID:   from,
			message.ColReceiverID: to,
			message.ColContent:    fmt.Sprintf("message %d", i),
			message.ColRead:       false,
		}
		f.rows = append(f.rows, row)
		out = append(out, copyRow(row))
	}
	return out
}

func (f *fakeAdapter) Query(ctx context.Context, table string, filter transport.Filter, order transport.Order) ([]transport.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}

	var out []transport.Row
	for _, r := range f.rows {
		if matches(r, filter) {
			out = append(out, copyRow(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti := out[i][message.ColCreatedAt].(time.Time)
		tj := out[j][message.ColCreatedAt].(time.Time)
		if order.Desc {
			return ti.After(tj)
		}
		return ti.Before(tj)
	})
	if order.Offset >= len(out) {
		return nil, nil
	}
	out = out[order.Offset:]
	if order.Limit > 0 && len(out) > order.Limit {
		out = out[:order.Limit]
	}
	return out, nil
}

func (f *fakeAdapter) Insert(ctx context.Context, table string, row transport.Row) (transport.Row, error) {
	f.mu.Lock()
	if f.insertErr != nil {
		err := f.insertErr
		f.mu.Unlock()
		return nil, err
	}
	stored := copyRow(row)
	stored[message.ColID] = uuid.NewString()
	stored[message.ColCreatedAt] = time.Now()
	f.rows = append(f.rows, stored)
	emit := f.emitOnInsert
	f.mu.Unlock()

	if emit {
		f.broadcast(transport.ChangeEvent{Type: transport.EventInsert, Table: table, Row: copyRow(stored)})
	}
	return copyRow(stored), nil
}

func (f *fakeAdapter) Update(ctx context.Context, table string, filter transport.Filter, patch transport.Row) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, filter)
	for _, r := range f.rows {
		if matches(r, filter) {
			for k, v := range patch {
				r[k] = v
			}
		}
	}
	return nil
}

func (f *fakeAdapter) Subscribe(ctx context.Context, table string, events []transport.EventType) (transport.StreamHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribe++
	if f.failSubscribes > 0 {
		f.failSubscribes--
		return nil, fmt.Errorf("subscribe refused")
	}
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	s := &fakeStream{owner: f, events: make(chan transport.ChangeEvent, 256)}
	f.streams = append(f.streams, s)
	f.open++
	if f.open > f.maxOpen {
		f.maxOpen = f.open
	}
	f.log = append(f.log, "subscribe")
	return s, nil
}

func (f *fakeAdapter) UploadFile(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	f.mu.Lock()
	gate := f.uploadGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	f.uploads = append(f.uploads, bucket+"/"+path)
	return "https://files.test/" + bucket + "/" + path, nil
}

// broadcast delivers ev to every open stream.
func (f *fakeAdapter) broadcast(ev transport.ChangeEvent) {
	f.mu.Lock()
	streams := slices.Clone(f.streams)
	f.mu.Unlock()
	for _, s := range streams {
		s.emit(ev)
	}
}

func (f *fakeAdapter) insertEvent(row transport.Row) {
	f.broadcast(transport.ChangeEvent{Type: transport.EventInsert, Table: message.TableName, Row: row})
}

// dropStreams fails every open stream.
func (f *fakeAdapter) dropStreams(err error) {
	f.mu.Lock()
	streams := slices.Clone(f.streams)
	f.mu.Unlock()
	for _, s := range streams {
		s.fail(err)
	}
}

func (f *fakeAdapter) openStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

func (f *fakeAdapter) maxOpenStreams() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxOpen
}

func (f *fakeAdapter) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribe
}

func (f *fakeAdapter) updateFilters() []transport.Filter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.updates)
}

func (f *fakeAdapter) set(fn func(f *fakeAdapter)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

type fakeStream struct {
	owner  *fakeAdapter
	mu     sync.Mutex
	events chan transport.ChangeEvent
	err    error
	closed bool
}

func (s *fakeStream) Events() <-chan transport.ChangeEvent { return s.events }

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Close() error {
	s.finish(nil)
	return nil
}

func (s *fakeStream) fail(err error) {
	s.finish(err)
}

func (s *fakeStream) finish(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	close(s.events)
	s.mu.Unlock()

	f := s.owner
	f.mu.Lock()
	f.open--
	f.log = append(f.log, "close")
	f.streams = slices.DeleteFunc(f.streams, func(o *fakeStream) bool { return o == s })
	f.mu.Unlock()
}

func (s *fakeStream) emit(ev transport.ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.events <- ev
}

func matches(row transport.Row, filter transport.Filter) bool {
	for _, c := range filter.All {
		if !matchCond(row, c) {
			return false
		}
	}
	if len(filter.Any) == 0 {
		return true
	}
	for _, group := range filter.Any {
		ok := true
		for _, c := range group {
			if !matchCond(row, c) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func matchCond(row transport.Row, c transport.Cond) bool {
	got := fmt.Sprint(row[c.Column])
	switch c.Op {
	case transport.OpEq:
		return got == fmt.Sprint(c.Value)
	case transport.OpNeq:
		return got != fmt.Sprint(c.Value)
	case transport.OpIn:
		values, _ := c.Value.([]string)
		return slices.Contains(values, got)
	}
	return false
}

func copyRow(r transport.Row) transport.Row {
	out := make(transport.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// durableRow builds a confirmed message row for stream events.
func durableRow(id, from, to, content string, at time.Time) transport.Row {
	return transport.Row{
		message.ColID:         id,
		message.ColCreatedAt:  at,
		message.ColSenderID:   from,
		message.ColReceiverID: to,
		message.ColContent:    content,
		message.ColRead:       false,
	}
}
