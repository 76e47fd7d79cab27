package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute

	opTimeout = 5 * time.Second
)

var errStoreNotInitialized = errors.New("postgres store is not initialized")

// dbtx: общее подмножество *sql.DB, *sql.Tx и *sql.Conn.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store оборачивает SQL-подключение к PostgreSQL и реализует domain.Store.
type Store struct {
	db *sql.DB
}

// Open открывает подключение к PostgreSQL и проверяет доступность базы.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres connection: %w", err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &Store{db: db}, nil
}

// DB возвращает raw SQL DB, когда нужен низкоуровневый доступ.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping проверяет доступность подключения.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Close закрывает подключение к БД.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Users() domain.UserRepository {
	return userRepository{q: s.db}
}

func (s *Store) Categories() domain.CategoryRepository {
	return categoryRepository{q: s.db}
}

func (s *Store) Products() domain.ProductRepository {
	return productRepository{q: s.db}
}

func (s *Store) Carts() domain.CartRepository {
	return cartRepository{q: s.db}
}

func (s *Store) Orders() domain.OrderRepository {
	return orderRepository{q: s.db}
}

func (s *Store) Timeline() domain.TimelineRepository {
	return timelineRepository{q: s.db}
}

func (s *Store) Outbox() domain.OutboxRepository {
	return outboxRepository{q: s.db}
}

// WithinTx выполняет fn в транзакции READ COMMITTED.
// Строки товаров и заказов блокируются явно через SELECT ... FOR UPDATE.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx domain.Repositories) error) (err error) {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		_ = tx.Rollback()
	}()

	if err = fn(ctx, txRepositories{q: tx}); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	committed = true
	return nil
}

// txRepositories привязывает репозитории к открытой транзакции.
type txRepositories struct {
	q dbtx
}

func (r txRepositories) Users() domain.UserRepository {
	return userRepository{q: r.q}
}

func (r txRepositories) Categories() domain.CategoryRepository {
	return categoryRepository{q: r.q}
}

func (r txRepositories) Products() domain.ProductRepository {
	return productRepository{q: r.q}
}

func (r txRepositories) Carts() domain.CartRepository {
	return cartRepository{q: r.q}
}

func (r txRepositories) Orders() domain.OrderRepository {
	return orderRepository{q: r.q}
}

func (r txRepositories) Timeline() domain.TimelineRepository {
	return timelineRepository{q: r.q}
}

func (r txRepositories) Outbox() domain.OutboxRepository {
	return outboxRepository{q: r.q}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, opTimeout)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23514"
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func nullTime(v time.Time) sql.NullTime {
	return sql.NullTime{Time: v, Valid: !v.IsZero()}
}

// expectAffected превращает «0 затронутых строк» в notFound.
func expectAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return notFound
	}
	return nil
}

var (
	_ domain.Store        = (*Store)(nil)
	_ domain.Repositories = txRepositories{}
)
