package message

// ConversationKey identifies a 1:1 chat as an unordered pair of participant
// ids. The pair is normalised so that {a,b} and {b,a} compare equal.
type ConversationKey struct {
	A string
	B string
}

func NewConversationKey(x, y string) ConversationKey {
	if y < x {
		x, y = y, x
	}
	return ConversationKey{A: x, B: y}
}

// IsZero reports whether the key is unset.
func (k ConversationKey) IsZero() bool {
	return k.A == "" && k.B == ""
}

// Has reports whether userID is one of the two participants.
func (k ConversationKey) Has(userID string) bool {
	return userID != "" && (k.A == userID || k.B == userID)
}

// Peer returns the participant that is not userID.
func (k ConversationKey) Peer(userID string) string {
	if k.A == userID {
		return k.B
	}
	return k.A
}

// String renders the key as "a:b"; used for channel and cache names.
func (k ConversationKey) String() string {
	return k.A + ":" + k.B
}
