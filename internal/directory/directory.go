// Package directory lists and resolves user profiles for the contact picker
// and conversation headers, with a short-lived in-process cache.
package directory

import (
	"context"
	"fmt"
	"time"

	"hola-chat/internal/domain/profile"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/dgraph-io/ristretto/v2"
	"go.uber.org/zap"
)

const defaultTTL = 5 * time.Minute

type Service struct {
	adapter transport.Adapter
	cache   *ristretto.Cache[string, profile.Profile]
	ttl     time.Duration
	log     *logger.Logger
}

func NewService(adapter transport.Adapter, ttl time.Duration, l *logger.Logger) (*Service, error) {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if l == nil {
		l = logger.Nop()
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, profile.Profile]{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("profile cache: %w", err)
	}
	return &Service{adapter: adapter, cache: cache, ttl: ttl, log: l.Named("directory")}, nil
}

// Contacts lists every profile except the signed-in user's, by username.
func (s *Service) Contacts(ctx context.Context) ([]profile.Profile, error) {
	me, err := s.me(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.adapter.Query(ctx, profile.TableName,
		transport.Filter{All: []transport.Cond{transport.Neq(profile.ColID, me)}},
		transport.Order{Column: profile.ColUsername})
	if err != nil {
		return nil, err
	}
	out := make([]profile.Profile, 0, len(rows))
	for _, row := range rows {
		p, err := profile.FromRow(row)
		if err != nil {
			s.log.Debug("skipping malformed profile", zap.Error(err))
			continue
		}
		s.remember(p)
		out = append(out, p)
	}
	return out, nil
}

// Profile resolves one user; a missing profile is ErrNotFound.
func (s *Service) Profile(ctx context.Context, id string) (profile.Profile, error) {
	if p, ok := s.cache.Get(cacheKey(profile.ColID, id)); ok {
		return p, nil
	}
	return s.lookup(ctx, profile.ColID, id)
}

// ByUsername resolves a user by handle; a missing profile is ErrNotFound.
func (s *Service) ByUsername(ctx context.Context, username string) (profile.Profile, error) {
	if p, ok := s.cache.Get(cacheKey(profile.ColUsername, username)); ok {
		return p, nil
	}
	return s.lookup(ctx, profile.ColUsername, username)
}

// Me is the signed-in user's own profile.
func (s *Service) Me(ctx context.Context) (profile.Profile, error) {
	me, err := s.me(ctx)
	if err != nil {
		return profile.Profile{}, err
	}
	return s.Profile(ctx, me)
}

func (s *Service) Close() {
	s.cache.Close()
}

func (s *Service) lookup(ctx context.Context, column, value string) (profile.Profile, error) {
	if value == "" {
		return profile.Profile{}, hola_errors.ErrInvalidInput
	}
	rows, err := s.adapter.Query(ctx, profile.TableName,
		transport.Filter{All: []transport.Cond{transport.Eq(column, value)}},
		transport.Order{Limit: 1})
	if err != nil {
		return profile.Profile{}, err
	}
	if len(rows) == 0 {
		return profile.Profile{}, fmt.Errorf("profile %s=%s: %w", column, value, hola_errors.ErrNotFound)
	}
	p, err := profile.FromRow(rows[0])
	if err != nil {
		return profile.Profile{}, hola_errors.Transport(err)
	}
	s.remember(p)
	return p, nil
}

func (s *Service) remember(p profile.Profile) {
	s.cache.SetWithTTL(cacheKey(profile.ColID, p.ID), p, 1, s.ttl)
	if p.Username != "" {
		s.cache.SetWithTTL(cacheKey(profile.ColUsername, p.Username), p, 1, s.ttl)
	}
}

func (s *Service) me(ctx context.Context) (string, error) {
	session, err := s.adapter.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", hola_errors.ErrAuth
	}
	return session.UserID, nil
}

func cacheKey(column, value string) string {
	return column + ":" + value
}
