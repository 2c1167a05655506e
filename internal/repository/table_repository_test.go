package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/domain/profile"
	"hola-chat/internal/events"
	"hola-chat/internal/testutil/testpg"
	"hola-chat/internal/transport"
	"hola-chat/pkg/database"
	hola_errors "hola-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu      sync.Mutex
	changes []events.Change
}

func (p *recordingPublisher) PublishChange(ctx context.Context, change events.Change) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.changes = append(p.changes, change)
	return nil
}

func setupRepository(t *testing.T) (*TableRepository, *recordingPublisher, map[string]string) {
	t.Helper()
	ctx := context.Background()

	pool, err := database.Connect(ctx, testpg.StartPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, InitSchema(ctx, pool))
	require.NoError(t, InitSchema(ctx, pool))

	pub := &recordingPublisher{}
	repo := NewTableRepository(pool, pub, nil)

	ids := map[string]string{}
	for _, name := range []string{"alice", "bob", "carol"} {
		row, err := repo.Insert(ctx, profile.TableName, transport.Row{profile.ColUsername: name})
		require.NoError(t, err)
		ids[name] = row[profile.ColID].(string)
	}
	return repo, pub, ids
}

func TestTableRepository_RoundTrip(t *testing.T) {
	repo, pub, ids := setupRepository(t)
	ctx := context.Background()
	alice, bob, carol := ids["alice"], ids["bob"], ids["carol"]

	send := func(from, to, content string) message.Message {
		row, err := repo.Insert(ctx, message.TableName, message.Message{SenderID: from, ReceiverID: to, Content: content}.InsertRow())
		require.NoError(t, err)
		m, err := message.FromRow(row)
		require.NoError(t, err)
		return m
	}

	first := send(alice, bob, "hello")
	send(bob, alice, "hi")
	send(alice, carol, "elsewhere")
	assert.Equal(t, alice, first.SenderID)
	assert.WithinDuration(t, time.Now(), first.CreatedAt, time.Minute)

	rows, err := repo.Query(ctx, message.TableName, transport.Filter{Any: [][]transport.Cond{
		{transport.Eq(message.ColSenderID, alice), transport.Eq(message.ColReceiverID, bob)},
		{transport.Eq(message.ColSenderID, bob), transport.Eq(message.ColReceiverID, alice)},
	}}, transport.Order{Column: message.ColCreatedAt, Desc: true, Limit: 20})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	latest, err := message.FromRow(rows[0])
	require.NoError(t, err)
	assert.Equal(t, "hi", latest.Content)

	err = repo.Update(ctx, message.TableName, transport.Filter{All: []transport.Cond{
		transport.In(message.ColID, []string{first.ID}),
		transport.Eq(message.ColReceiverID, bob),
	}}, transport.Row{message.ColRead: true})
	require.NoError(t, err)

	rows, err = repo.Query(ctx, message.TableName, transport.Filter{All: []transport.Cond{transport.Eq(message.ColID, first.ID)}}, transport.Order{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, true, rows[0][message.ColRead])

	pub.mu.Lock()
	defer pub.mu.Unlock()
	var inserts, updates int
	for _, c := range pub.changes {
		switch c.Type {
		case events.ChangeInsert:
			inserts++
		case events.ChangeUpdate:
			updates++
			assert.Equal(t, first.ID, c.Record[message.ColID])
		}
	}
	assert.Equal(t, 6, inserts)
	assert.Equal(t, 1, updates)
}

func TestTableRepository_Errors(t *testing.T) {
	repo, _, ids := setupRepository(t)
	ctx := context.Background()

	_, err := repo.Insert(ctx, profile.TableName, transport.Row{profile.ColUsername: "alice"})
	assert.ErrorIs(t, err, hola_errors.ErrAlreadyExists)

	_, err = repo.Insert(ctx, message.TableName, transport.Row{
		message.ColSenderID:   "not-a-uuid",
		message.ColReceiverID: ids["bob"],
		message.ColContent:    "x",
	})
	assert.Error(t, err)

	rows, err := repo.Query(ctx, message.TableName, transport.Filter{All: []transport.Cond{transport.Eq(message.ColID, "local-123")}}, transport.Order{})
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSeedDevelopment(t *testing.T) {
	ctx := context.Background()
	pool, err := database.Connect(ctx, testpg.StartPostgres(t))
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, InitSchema(ctx, pool))

	first, err := database.SeedDevelopment(ctx, pool)
	require.NoError(t, err)
	assert.Len(t, first.Profiles, len(database.DevelopmentProfiles))
	assert.Equal(t, 3, first.Messages)

	again, err := database.SeedDevelopment(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, first.Profiles, again.Profiles)

	count, err := database.TableCount(ctx, pool, profile.TableName)
	require.NoError(t, err)
	assert.Equal(t, int64(len(database.DevelopmentProfiles)), count)

	repo := NewTableRepository(pool, nil, nil)
	rows, err := repo.Query(ctx, message.TableName,
		transport.Filter{All: []transport.Cond{transport.Eq(message.ColSenderID, first.Profiles["bob"])}},
		transport.Order{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}
