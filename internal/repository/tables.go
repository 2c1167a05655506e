package repository

import (
	"fmt"
	"strings"

	"hola-chat/internal/domain/message"
	"hola-chat/internal/domain/profile"
	hola_errors "hola-chat/pkg/errors"
)

type columnKind int

const (
	kindText columnKind = iota
	kindUUID
	kindBool
	kindTime
)

type column struct {
	name string
	kind columnKind
	// writable columns may be supplied on insert or patched on update.
	writable bool
}

// table whitelists the columns reachable through the generic row API.
type table struct {
	name    string
	columns []column
	byName  map[string]column
}

func newTable(name string, columns ...column) *table {
	t := &table{name: name, columns: columns, byName: make(map[string]column, len(columns))}
	for _, c := range columns {
		t.byName[c.name] = c
	}
	return t
}

var tables = map[string]*table{
	message.TableName: newTable(message.TableName,
		column{name: message.ColID, kind: kindUUID},
		column{name: message.ColCreatedAt, kind: kindTime},
		column{name: message.ColSenderID, kind: kindUUID, writable: true},
		column{name: message.ColReceiverID, kind: kindUUID, writable: true},
		column{name: message.ColContent, kind: kindText, writable: true},
		column{name: message.ColRead, kind: kindBool, writable: true},
		column{name: message.ColFileURL, kind: kindText, writable: true},
		column{name: message.ColFileType, kind: kindText, writable: true},
		column{name: message.ColReplyToID, kind: kindUUID, writable: true},
		column{name: message.ColReplyToContent, kind: kindText, writable: true},
	),
	profile.TableName: newTable(profile.TableName,
		column{name: profile.ColID, kind: kindUUID, writable: true},
		column{name: profile.ColCreatedAt, kind: kindTime},
		column{name: profile.ColUsername, kind: kindText, writable: true},
		column{name: profile.ColFullName, kind: kindText, writable: true},
		column{name: profile.ColAvatarURL, kind: kindText, writable: true},
	),
}

func lookupTable(name string) (*table, error) {
	t, ok := tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown table %q", hola_errors.ErrInvalidInput, name)
	}
	return t, nil
}

func (t *table) column(name string) (column, error) {
	c, ok := t.byName[name]
	if !ok {
		return column{}, fmt.Errorf("%w: unknown column %s.%s", hola_errors.ErrInvalidInput, t.name, name)
	}
	return c, nil
}

// ref is the column as used in predicates. uuid columns compare as text so
// that callers can pass plain strings, including provisional ids.
func (c column) ref() string {
	if c.kind == kindUUID {
		return c.name + "::text"
	}
	return c.name
}

// selectList renders every column, uuid columns cast to text.
func (t *table) selectList() string {
	parts := make([]string, len(t.columns))
	for i, c := range t.columns {
		if c.kind == kindUUID {
			parts[i] = fmt.Sprintf("%s::text AS %s", c.name, c.name)
		} else {
			parts[i] = c.name
		}
	}
	return strings.Join(parts, ", ")
}
