package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReactions_Toggle(t *testing.T) {
	r := NewReactions()

	assert.True(t, r.Toggle("m1", "👍", alice))
	assert.True(t, r.Toggle("m1", "👍", bob))
	assert.True(t, r.Toggle("m1", "🔥", alice))
	assert.Equal(t, []EmojiCount{{Emoji: "👍", Count: 2}, {Emoji: "🔥", Count: 1}}, r.Summary("m1"))

	assert.False(t, r.Toggle("m1", "👍", alice))
	assert.Equal(t, []Reaction{{Emoji: "👍", UserID: bob}, {Emoji: "🔥", UserID: alice}}, r.For("m1"))

	r.Forget("m1")
	assert.Empty(t, r.For("m1"))
	assert.Empty(t, r.Summary("m2"))
}

func TestReactions_PaletteIsUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, e := range Palette {
		assert.False(t, seen[e], e)
		seen[e] = true
	}
	assert.Len(t, Palette, 10)
}
