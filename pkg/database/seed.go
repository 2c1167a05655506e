package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SeedProfile is one development account.
type SeedProfile struct {
	Username string
	FullName string
}

var DevelopmentProfiles = []SeedProfile{
	{Username: "alice", FullName: "Alice Liddell"},
	{Username: "bob", FullName: "Bob Builder"},
	{Username: "carol", FullName: "Carol Danvers"},
}

// SeedResult maps each seeded username to its profile id.
type SeedResult struct {
	Profiles map[string]string
	Messages int
}

// SeedDevelopment inserts the development profiles, skipping existing
// usernames, and a short greeting thread between the first two.
func SeedDevelopment(ctx context.Context, pool *pgxpool.Pool) (*SeedResult, error) {
	result := &SeedResult{Profiles: make(map[string]string, len(DevelopmentProfiles))}

	for _, p := range DevelopmentProfiles {
		var id string
		err := pool.QueryRow(ctx, `
			INSERT INTO profiles (username, full_name) VALUES ($1, $2)
			ON CONFLICT (username) DO UPDATE SET full_name = EXCLUDED.full_name
			RETURNING id::text`, p.Username, p.FullName).Scan(&id)
		if err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", p.Username, err)
		}
		result.Profiles[p.Username] = id
	}

	alice, bob := result.Profiles["alice"], result.Profiles["bob"]
	thread := []struct {
		from, to, content string
	}{
		{alice, bob, "hey bob"},
		{bob, alice, "hi alice, how are you?"},
		{alice, bob, "great, trying out the new client"},
	}
	start := time.Now().Add(-time.Hour)
	for i, m := range thread {
		_, err := pool.Exec(ctx, `
			INSERT INTO messages (sender_id, receiver_id, content, created_at, read)
			VALUES ($1, $2, $3, $4, TRUE)`, m.from, m.to, m.content, start.Add(time.Duration(i)*time.Minute))
		if err != nil {
			return nil, fmt.Errorf("seed message %d: %w", i, err)
		}
		result.Messages++
	}
	return result, nil
}
