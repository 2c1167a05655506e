package profile

import (
	"fmt"
	"time"
)

// TableName is the logical backend table holding user profiles.
const TableName = "profiles"

const (
	ColID        = "id"
	ColCreatedAt = "created_at"
	ColUsername  = "username"
	ColFullName  = "full_name"
	ColAvatarURL = "avatar_url"
)

var Columns = []string{ColID, ColCreatedAt, ColUsername, ColFullName, ColAvatarURL}

// Profile represents the profiles table
type Profile struct {
	ID        string
	Username  string
	FullName  string
	AvatarURL string
	CreatedAt time.Time
}

// DisplayName prefers the full name and falls back to the username.
func (p Profile) DisplayName() string {
	if p.FullName != "" {
		return p.FullName
	}
	return p.Username
}

func FromRow(row map[string]any) (Profile, error) {
	p := Profile{
		ID:        str(row[ColID]),
		Username:  str(row[ColUsername]),
		FullName:  str(row[ColFullName]),
		AvatarURL: str(row[ColAvatarURL]),
	}
	if p.ID == "" {
		return Profile{}, fmt.Errorf("profile row without id")
	}
	if t, ok := row[ColCreatedAt].(time.Time); ok {
		p.CreatedAt = t
	}
	return p, nil
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case *string:
		if t != nil {
			return *t
		}
	}
	return ""
}
