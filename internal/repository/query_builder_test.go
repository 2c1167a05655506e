package repository

import (
	"testing"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func messagesTable(t *testing.T) *table {
	t.Helper()
	tbl, err := lookupTable(message.TableName)
	require.NoError(t, err)
	return tbl
}

func TestBuildSelect_ConversationPage(t *testing.T) {
	tbl := messagesTable(t)
	filter := transport.Filter{Any: [][]transport.Cond{
		{transport.Eq("sender_id", "a"), transport.Eq("receiver_id", "b")},
		{transport.Eq("sender_id", "b"), transport.Eq("receiver_id", "a")},
	}}

	query, args, err := buildSelect(tbl, filter, transport.Order{Column: "created_at", Desc: true, Limit: 20, Offset: 40})
	require.NoError(t, err)
	assert.Contains(t, query, "id::text AS id")
	assert.Contains(t, query, " FROM messages WHERE ((sender_id::text = $1 AND receiver_id::text = $2) OR (sender_id::text = $3 AND receiver_id::text = $4))")
	assert.Contains(t, query, " ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6")
	assert.Equal(t, []any{"a", "b", "b", "a", 20, 40}, args)
}

func TestBuildWhere_Operators(t *testing.T) {
	tbl := messagesTable(t)
	tests := []struct {
		name  string
		conds []transport.Cond
		want  string
		args  []any
	}{
		{"eq bool", []transport.Cond{transport.Eq("read", false)}, " WHERE read = $1", []any{false}},
		{"neq", []transport.Cond{transport.Neq("content", "")}, " WHERE content <> $1", []any{""}},
		{"in", []transport.Cond{transport.In("id", []string{"x", "y"})}, " WHERE id::text = ANY($1)", []any{[]string{"x", "y"}}},
		{"empty in", []transport.Cond{transport.In("id", nil)}, " WHERE FALSE", nil},
		{"null", []transport.Cond{transport.Eq("file_url", nil)}, " WHERE file_url IS NULL", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var a args
			got, err := buildWhere(tbl, transport.Filter{All: tt.conds}, &a)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.args, []any(a))
		})
	}
}

func TestBuildWhere_RejectsUnknownColumnsAndOps(t *testing.T) {
	tbl := messagesTable(t)
	var a args
	_, err := buildWhere(tbl, transport.Filter{All: []transport.Cond{transport.Eq("password", "x")}}, &a)
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)

	_, err = buildWhere(tbl, transport.Filter{All: []transport.Cond{{Column: "id", Op: "like", Value: "x"}}}, &a)
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)

	_, err = buildWhere(tbl, transport.Filter{All: []transport.Cond{{Column: "id", Op: transport.OpIn, Value: "x"}}}, &a)
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}

func TestBuildInsert(t *testing.T) {
	tbl := messagesTable(t)
	query, args, err := buildInsert(tbl, transport.Row{"sender_id": "a", "receiver_id": "b", "content": "hi"})
	require.NoError(t, err)
	assert.Contains(t, query, "INSERT INTO messages (content, receiver_id, sender_id) VALUES ($1,$2,$3) RETURNING ")
	assert.Equal(t, []any{"hi", "b", "a"}, args)

	_, _, err = buildInsert(tbl, transport.Row{"id": "forged"})
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
	_, _, err = buildInsert(tbl, transport.Row{})
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}

func TestBuildUpdate(t *testing.T) {
	tbl := messagesTable(t)
	filter := transport.Filter{All: []transport.Cond{transport.In("id", []string{"m1"}), transport.Eq("receiver_id", "me")}}
	query, args, err := buildUpdate(tbl, filter, transport.Row{"read": true})
	require.NoError(t, err)
	assert.Contains(t, query, "UPDATE messages SET read = $1 WHERE id::text = ANY($2) AND receiver_id::text = $3 RETURNING ")
	assert.Equal(t, []any{true, []string{"m1"}, "me"}, args)

	_, _, err = buildUpdate(tbl, transport.Filter{}, transport.Row{"read": true})
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}

func TestLookupTable_Unknown(t *testing.T) {
	_, err := lookupTable("users")
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}
