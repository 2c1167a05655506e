package repository

import (
	"context"
	"fmt"

	"hola-chat/internal/events"
	"hola-chat/internal/transport"
	hola_errors "hola-chat/pkg/errors"
	"hola-chat/pkg/logger"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// ChangePublisher fans committed row changes out to stream subscribers.
type ChangePublisher interface {
	PublishChange(ctx context.Context, change events.Change) error
}

// TableRepository serves the generic row API over the whitelisted tables
// and announces every write on the change feed.
type TableRepository struct {
	db        DBTX
	publisher ChangePublisher
	log       *logger.Logger
}

func NewTableRepository(db DBTX, publisher ChangePublisher, l *logger.Logger) *TableRepository {
	if l == nil {
		l = logger.Nop()
	}
	return &TableRepository{db: db, publisher: publisher, log: l.Named("repository")}
}

func (r *TableRepository) Query(ctx context.Context, tableName string, filter transport.Filter, order transport.Order) ([]transport.Row, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	query, args, err := buildSelect(t, filter, order)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	return collect(rows)
}

func (r *TableRepository) Insert(ctx context.Context, tableName string, row transport.Row) (transport.Row, error) {
	t, err := lookupTable(tableName)
	if err != nil {
		return nil, err
	}
	query, args, err := buildInsert(t, row)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, translate(err)
	}
	inserted, err := collect(rows)
	if err != nil {
		return nil, err
	}
	if len(inserted) != 1 {
		return nil, fmt.Errorf("insert into %s returned %d rows", tableName, len(inserted))
	}
	r.publish(ctx, events.ChangeInsert, tableName, inserted)
	return inserted[0], nil
}

func (r *TableRepository) Update(ctx context.Context, tableName string, filter transport.Filter, patch transport.Row) error {
	t, err := lookupTable(tableName)
	if err != nil {
		return err
	}
	query, args, err := buildUpdate(t, filter, patch)
	if err != nil {
		return err
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return translate(err)
	}
	updated, err := collect(rows)
	if err != nil {
		return err
	}
	r.publish(ctx, events.ChangeUpdate, tableName, updated)
	return nil
}

// publish is best effort: a committed write is never reported as failed
// because the feed was unreachable.
func (r *TableRepository) publish(ctx context.Context, changeType, tableName string, rows []transport.Row) {
	if r.publisher == nil {
		return
	}
	for _, row := range rows {
		change := events.NewChange(changeType, tableName, row)
		if err := r.publisher.PublishChange(ctx, change); err != nil {
			r.log.Warn("publish change failed",
				zap.String("table", tableName),
				zap.String("type", changeType),
				zap.Error(err))
		}
	}
}

func collect(rows pgx.Rows) ([]transport.Row, error) {
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, translate(err)
	}
	out := make([]transport.Row, len(maps))
	for i, m := range maps {
		out[i] = transport.Row(m)
	}
	return out, nil
}

func translate(err error) error {
	switch {
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %w", hola_errors.ErrAlreadyExists, err)
	case isInvalidText(err):
		return fmt.Errorf("%w: %w", hola_errors.ErrInvalidInput, err)
	default:
		return err
	}
}
