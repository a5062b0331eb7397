package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

// querier покрывает общее подмножество *sql.DB и *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// pgTx открывает репозитории поверх одной SQL-транзакции.
type pgTx struct {
	q querier
}

func (t *pgTx) Members() domain.MemberRepository { return memberRepository{t.q} }
func (t *pgTx) Items() domain.ItemRepository     { return itemRepository{t.q} }
func (t *pgTx) Tags() domain.TagRepository       { return tagRepository{t.q} }
func (t *pgTx) Orders() domain.OrderRepository   { return orderRepository{t.q} }
func (t *pgTx) Carts() domain.CartRepository     { return cartRepository{t.q} }
func (t *pgTx) Outbox() domain.OutboxWriter      { return outboxWriter{t.q} }

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFound переводит sql.ErrNoRows в NotFoundError.
func notFound(err error, kind string, id any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewNotFound(kind, id)
	}
	return err
}

func nullTime(t *sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// requireAffected возвращает NotFoundError, если UPDATE/DELETE не затронул строк.
func requireAffected(res sql.Result, kind string, id any) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.NewNotFound(kind, id)
	}
	return nil
}
