package backend

import (
	"encoding/json"

	"hola-chat/internal/events"
	"hola-chat/internal/transport"
)

// stream adapts a table socket to transport.StreamHandle.
type stream struct {
	*socket
	table  string
	accept map[transport.EventType]bool
	events chan transport.ChangeEvent
}

func newStream(s *socket, table string, types []transport.EventType) *stream {
	st := &stream{
		socket: s,
		table:  table,
		accept: make(map[transport.EventType]bool, len(types)),
		events: make(chan transport.ChangeEvent, 64),
	}
	for _, t := range types {
		st.accept[t] = true
	}
	go s.run(st.handle, func() { close(st.events) })
	return st
}

func (st *stream) Events() <-chan transport.ChangeEvent {
	return st.events
}

func (st *stream) handle(data []byte) error {
	if ok, err := control(data); ok {
		return err
	}
	change, err := events.DecodeChange(data)
	if err != nil || change.Table != st.table {
		return nil
	}
	ev := transport.ChangeEvent{
		Type:  transport.EventType(change.Type),
		Table: change.Table,
		Row:   transport.Row(change.Record),
	}
	if len(st.accept) > 0 && !st.accept[ev.Type] {
		return nil
	}
	select {
	case st.events <- ev:
	case <-st.done:
	}
	return nil
}

// TypingWatch streams the peer's typing events of one conversation.
type TypingWatch struct {
	*socket
	self   string
	events chan events.TypingEvent
}

func newTypingWatch(s *socket, self string) *TypingWatch {
	w := &TypingWatch{socket: s, self: self, events: make(chan events.TypingEvent, 16)}
	go s.run(w.handle, func() { close(w.events) })
	return w
}

// Events is closed when the watch ends.
func (w *TypingWatch) Events() <-chan events.TypingEvent {
	return w.events
}

func (w *TypingWatch) handle(data []byte) error {
	if ok, err := control(data); ok {
		return err
	}
	var ev events.TypingEvent
	if err := json.Unmarshal(data, &ev); err != nil || ev.UserID == "" || ev.UserID == w.self {
		return nil
	}
	select {
	case w.events <- ev:
	case <-w.done:
	}
	return nil
}
