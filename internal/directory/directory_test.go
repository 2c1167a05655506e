package directory

import (
	"context"
	"sync"
	"testing"
	"time"

	"hola-chat/internal/domain/profile"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// profileAdapter serves a fixed profiles table and counts queries.
type profileAdapter struct {
	transport.Adapter
	mu      sync.Mutex
	me      string
	rows    []transport.Row
	queries int
}

func (a *profileAdapter) GetSession(ctx context.Context) (*transport.Session, error) {
	if a.me == "" {
		return nil, nil
	}
	return &transport.Session{UserID: a.me}, nil
}

func (a *profileAdapter) Query(ctx context.Context, table string, filter transport.Filter, order transport.Order) ([]transport.Row, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.queries++
	var out []transport.Row
	for _, row := range a.rows {
		ok := true
		for _, c := range filter.All {
			switch c.Op {
			case transport.OpEq:
				ok = ok && row[c.Column] == c.Value
			case transport.OpNeq:
				ok = ok && row[c.Column] != c.Value
			}
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (a *profileAdapter) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.queries
}

func newAdapter() *profileAdapter {
	return &profileAdapter{
		me: "u1",
		rows: []transport.Row{
			{"id": "u1", "username": "alice", "full_name": "Alice"},
			{"id": "u2", "username": "bob"},
			{"id": "u3", "username": "carol", "full_name": "Carol C"},
		},
	}
}

func TestService_ContactsExcludesMe(t *testing.T) {
	svc, err := NewService(newAdapter(), time.Minute, nil)
	require.NoError(t, err)
	defer svc.Close()

	contacts, err := svc.Contacts(context.Background())
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	assert.Equal(t, "bob", contacts[0].DisplayName())
	assert.Equal(t, "Carol C", contacts[1].DisplayName())
}

func TestService_ProfileIsCached(t *testing.T) {
	a := newAdapter()
	svc, err := NewService(a, time.Minute, nil)
	require.NoError(t, err)
	defer svc.Close()
	ctx := context.Background()

	p, err := svc.ByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "u2", p.ID)
	svc.cache.Wait()

	before := a.count()
	p, err = svc.Profile(ctx, "u2")
	require.NoError(t, err)
	assert.Equal(t, profile.Profile{ID: "u2", Username: "bob"}, p)
	assert.Equal(t, before, a.count())
}

func TestService_MissingProfile(t *testing.T) {
	svc, err := NewService(newAdapter(), time.Minute, nil)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Profile(context.Background(), "nobody")
	assert.ErrorIs(t, err, hola_errors.ErrNotFound)
	_, err = svc.ByUsername(context.Background(), "")
	assert.ErrorIs(t, err, hola_errors.ErrInvalidInput)
}

func TestService_SignedOut(t *testing.T) {
	a := newAdapter()
	a.me = ""
	svc, err := NewService(a, time.Minute, nil)
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.Contacts(context.Background())
	assert.ErrorIs(t, err, hola_errors.ErrAuth)
	_, err = svc.Me(context.Background())
	assert.ErrorIs(t, err, hola_errors.ErrAuth)
}
