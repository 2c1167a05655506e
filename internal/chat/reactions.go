package chat

import (
	"sort"
	"sync"
)

// Palette is the set of quick reactions offered by clients.
var Palette = []string{"👍", "❤️", "😂", "😮", "😢", "👏", "🎉", "🙏", "🔥", "💯"}

type Reaction struct {
	Emoji  string
	UserID string
}

// EmojiCount is one line of a reaction summary.
type EmojiCount struct {
	Emoji string
	Count int
}

// Reactions holds client-side reactions keyed by message id. They are not
// persisted and do not survive a conversation switch.
type Reactions struct {
	mu    sync.RWMutex
	byMsg map[string]map[Reaction]struct{}
}

func NewReactions() *Reactions {
	return &Reactions{byMsg: make(map[string]map[Reaction]struct{})}
}

// Toggle adds the reaction, or removes it when the same user already left
// the same emoji. It reports whether the reaction is now present.
func (r *Reactions) Toggle(messageID, emoji, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := Reaction{Emoji: emoji, UserID: userID}
	set, ok := r.byMsg[messageID]
	if !ok {
		set = make(map[Reaction]struct{})
		r.byMsg[messageID] = set
	}
	if _, exists := set[key]; exists {
		delete(set, key)
		if len(set) == 0 {
			delete(r.byMsg, messageID)
		}
		return false
	}
	set[key] = struct{}{}
	return true
}

// For lists the reactions on a message ordered by emoji then user.
func (r *Reactions) For(messageID string) []Reaction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.byMsg[messageID]
	out := make([]Reaction, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Emoji != out[j].Emoji {
			return out[i].Emoji < out[j].Emoji
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// Summary counts reactions per emoji, most used first.
func (r *Reactions) Summary(messageID string) []EmojiCount {
	counts := make(map[string]int)
	for _, re := range r.For(messageID) {
		counts[re.Emoji]++
	}
	out := make([]EmojiCount, 0, len(counts))
	for e, n := range counts {
		out = append(out, EmojiCount{Emoji: e, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out
}

// Forget drops every reaction on a message.
func (r *Reactions) Forget(messageID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byMsg, messageID)
}
