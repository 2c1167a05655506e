package realtime

import (
	"fmt"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/events"
	hola_errors "hola-chat/pkg/errors"
)

// ChannelAuthorizer decides which Redis channel a stream request maps to.
// Table feeds are open to every signed-in user for the whitelisted tables;
// a typing feed only to the two participants of the conversation.
type ChannelAuthorizer struct {
	tables map[string]bool
}

func NewChannelAuthorizer(tables ...string) *ChannelAuthorizer {
	a := &ChannelAuthorizer{tables: make(map[string]bool, len(tables))}
	for _, t := range tables {
		a.tables[t] = true
	}
	return a
}

// Resolve returns the channel and the label echoed in the subscribe ack.
func (a *ChannelAuthorizer) Resolve(userID, table, typingPeer string) (channel, label string, err error) {
	switch {
	case userID == "":
		return "", "", hola_errors.ErrUnauthorized
	case table != "" && typingPeer != "":
		return "", "", fmt.Errorf("%w: table and typing are exclusive", hola_errors.ErrInvalidInput)
	case table != "":
		if !a.tables[table] {
			return "", "", fmt.Errorf("%w: unknown table %q", hola_errors.ErrInvalidInput, table)
		}
		return events.TableChannel(table), table, nil
	case typingPeer != "":
		if typingPeer == userID {
			return "", "", fmt.Errorf("%w: cannot watch yourself typing", hola_errors.ErrInvalidInput)
		}
		key := message.NewConversationKey(userID, typingPeer)
		return events.TypingChannel(key.String()), "typing", nil
	default:
		return "", "", fmt.Errorf("%w: table or typing is required", hola_errors.ErrInvalidInput)
	}
}
