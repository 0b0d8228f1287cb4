package repository

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/SergeiKhy/site-analytics/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrAdminNotConfigured повышенные привилегии не настроены
var ErrAdminNotConfigured = errors.New("admin database credentials not configured")

type PostgresDB struct {
	Pool *pgxpool.Pool
}

func NewPostgresDB(cfg config.DBConfig) (*PostgresDB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DB config: %w", err)
	}

	// Настройка пула соединений
	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Проверка подключения
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresDB{Pool: pool}, nil
}

func (db *PostgresDB) Close() {
	db.Pool.Close()
}

// Migrate применяет встроенные SQL миграции по порядку имён файлов
func (db *PostgresDB) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("failed to list migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		script, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(script)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", name, err)
		}
	}

	return nil
}

// AdminDB лениво открывает пул с повышенными привилегиями.
// Пул создаётся при первом обращении, то есть только после успешной аутентификации.
type AdminDB struct {
	cfg      config.DBConfig
	fallback *PostgresDB
	connect  func(config.DBConfig) (*PostgresDB, error)

	mu sync.Mutex
	db *PostgresDB
}

// NewAdminDB создаёт ленивый пул. Если повышенные привилегии не настроены,
// запросы на чтение идут через fallback.
func NewAdminDB(cfg config.DBConfig, fallback *PostgresDB) *AdminDB {
	return &AdminDB{
		cfg:      cfg,
		fallback: fallback,
		connect:  NewPostgresDB,
	}
}

// Get возвращает пул администратора, создавая его при необходимости
func (a *AdminDB) Get() (*PostgresDB, error) {
	if !a.cfg.HasAdminCredentials() {
		return nil, ErrAdminNotConfigured
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.db != nil {
		return a.db, nil
	}

	db, err := a.connect(a.cfg.AsAdmin())
	if err != nil {
		return nil, err
	}
	a.db = db
	return db, nil
}

// Reader возвращает пул администратора или fallback для чтения
func (a *AdminDB) Reader() (*PostgresDB, error) {
	db, err := a.Get()
	if errors.Is(err, ErrAdminNotConfigured) && a.fallback != nil {
		return a.fallback, nil
	}
	return db, err
}

func (a *AdminDB) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// Conn источник пула соединений для репозиториев
type Conn interface {
	Conn() (*pgxpool.Pool, error)
}

func (db *PostgresDB) Conn() (*pgxpool.Pool, error) {
	return db.Pool, nil
}

// Conn пул для чтения: администратор, если настроен, иначе fallback
func (a *AdminDB) Conn() (*pgxpool.Pool, error) {
	db, err := a.Reader()
	if err != nil {
		return nil, err
	}
	return db.Pool, nil
}

// Elevated источник, требующий повышенных привилегий (без fallback)
func (a *AdminDB) Elevated() Conn {
	return elevatedConn{admin: a}
}

type elevatedConn struct {
	admin *AdminDB
}

func (e elevatedConn) Conn() (*pgxpool.Pool, error) {
	db, err := e.admin.Get()
	if err != nil {
		return nil, err
	}
	return db.Pool, nil
}
