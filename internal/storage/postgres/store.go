// Package postgres реализует хранилище магазина поверх PostgreSQL (pgx stdlib).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/shop/internal/domain"
)

const (
	pingTimeout         = 5 * time.Second
	DefaultMaxConns     = 25
	defaultConnLifetime = 30 * time.Minute
	defaultConnIdleTime = 5 * time.Minute
)

var errNotInitialized = errors.New("postgres store is not initialized")

// Store оборачивает пул соединений и открывает единицы работы.
type Store struct {
	db *sql.DB
}

type poolSettings struct {
	maxConns     int
	connLifetime time.Duration
}

// Option настраивает пул соединений.
type Option func(*poolSettings)

// WithMaxConns ограничивает число открытых соединений; idle-пул того же размера.
func WithMaxConns(n int) Option {
	return func(p *poolSettings) {
		if n > 0 {
			p.maxConns = n
		}
	}
}

// WithConnLifetime задаёт максимальное время жизни соединения.
func WithConnLifetime(d time.Duration) Option {
	return func(p *poolSettings) {
		if d > 0 {
			p.connLifetime = d
		}
	}
}

// Open подключается через pgx stdlib и пингует базу до возврата.
func Open(ctx context.Context, dsn string, options ...Option) (*Store, error) {
	pool := poolSettings{maxConns: DefaultMaxConns, connLifetime: defaultConnLifetime}
	for _, option := range options {
		option(&pool)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(pool.maxConns)
	db.SetMaxIdleConns(pool.maxConns)
	db.SetConnMaxLifetime(pool.connLifetime)
	db.SetConnMaxIdleTime(defaultConnIdleTime)

	store := &Store{db: db}
	if err := store.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return store, nil
}

// DB возвращает пул для низкоуровневого доступа (миграции, тесты).
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает пул.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// WithinTx выполняет fn в READ COMMITTED транзакции. Строки участника и заказа
// блокируются через SELECT ... FOR UPDATE внутри репозиториев.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.within(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted}, fn)
}

// WithinReadTx выполняет fn в read-only REPEATABLE READ транзакции: все чтения видят один снимок.
func (s *Store) WithinReadTx(ctx context.Context, fn func(ctx context.Context, tx domain.Tx) error) error {
	return s.within(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}, fn)
}

func (s *Store) within(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context, tx domain.Tx) error) (err error) {
	if s == nil || s.db == nil {
		return errNotInitialized
	}

	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = sqlTx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = sqlTx.Rollback()
		}
	}()

	if err = fn(ctx, &pgTx{q: sqlTx}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

var (
	_ domain.UnitOfWork        = (*Store)(nil)
	_ domain.CatalogRepository = (*Store)(nil)
	_ domain.ImageLookup       = (*Store)(nil)
	_ domain.OutboxRepository  = (*Store)(nil)
)
