package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // driver "sqlite", sin cgo

	notificationDomain "github.com/davicafu/tasknotify/internal/notification/domain"
	sharedDomain "github.com/davicafu/tasknotify/internal/shared/domain"
	sharedQuery "github.com/davicafu/tasknotify/internal/shared/infra/platform/query"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Columnas por las que se permite ordenar.
var sortableColumns = map[string]bool{
	"created_at": true,
	"task_id":    true,
	"event_type": true,
	"id":         true,
}

// NotificationRepoSQL implementa NotificationRepository con sqlx.
// Las consultas se escriben con '?' y se adaptan al driver con Rebind.
type NotificationRepoSQL struct {
	db *sqlx.DB
}

var _ notificationDomain.NotificationRepository = (*NotificationRepoSQL)(nil)

// Open abre la base de datos para el driver indicado ("sqlite" o "pgx") y crea el esquema.
func Open(ctx context.Context, driver, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening %s db: %w", driver, err)
	}

	if driver == DriverSQLite {
		// SQLite admite un único escritor; con ":memory:" cada conexión sería otra base de datos.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging %s db: %w", driver, err)
	}

	if err := InitSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

// InitSchema crea la tabla notifications y sus índices si no existen.
// created_at se guarda en nanosegundos unix para que el orden sea idéntico en ambos motores.
func InitSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS notifications (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			title TEXT NOT NULL,
			message TEXT NOT NULL,
			task_id TEXT NOT NULL,
			read BOOLEAN NOT NULL DEFAULT FALSE,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_task_id ON notifications (task_id)`,
		`CREATE INDEX IF NOT EXISTS idx_notifications_created_at ON notifications (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func NewNotificationRepoSQL(db *sqlx.DB) *NotificationRepoSQL {
	return &NotificationRepoSQL{db: db}
}

type notificationRow struct {
	ID        string `db:"id"`
	Kind      string `db:"event_type"`
	Title     string `db:"title"`
	Message   string `db:"message"`
	TaskID    string `db:"task_id"`
	Read      bool   `db:"read"`
	CreatedAt int64  `db:"created_at"`
}

const selectColumns = `SELECT id, event_type, title, message, task_id, read, created_at FROM notifications`

// ------------------ Escritura ------------------

func (r *NotificationRepoSQL) Save(ctx context.Context, n *notificationDomain.Notification) (string, error) {
	query := r.db.Rebind(`INSERT INTO notifications (id, event_type, title, message, task_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`)

	_, err := r.db.ExecContext(ctx, query,
		n.ID, string(n.Kind), n.Title, n.Message, n.TaskID, n.Read, n.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("saving notification %s: %w", n.ID, err)
	}
	return n.ID, nil
}

func (r *NotificationRepoSQL) MarkRead(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE notifications SET read = ? WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("marking notification %s as read: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return notificationDomain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepoSQL) MarkAllRead(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE notifications SET read = ? WHERE read = ?`), true, false)
	if err != nil {
		return 0, fmt.Errorf("marking all notifications as read: %w", err)
	}
	return res.RowsAffected()
}

func (r *NotificationRepoSQL) DeleteByID(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM notifications WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("deleting notification %s: %w", id, err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return notificationDomain.ErrNotificationNotFound
	}
	return nil
}

func (r *NotificationRepoSQL) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	where, args := applyCriteria(notificationDomain.CreatedBeforeCriteria{Before: cutoff})
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM notifications"+where), args...)
	if err != nil {
		return 0, fmt.Errorf("purging notifications: %w", err)
	}
	return res.RowsAffected()
}

// ------------------ Lectura ------------------

func (r *NotificationRepoSQL) GetByID(ctx context.Context, id string) (*notificationDomain.Notification, error) {
	var row notificationRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(selectColumns+` WHERE id = ?`), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notificationDomain.ErrNotificationNotFound
		}
		return nil, fmt.Errorf("getting notification %s: %w", id, err)
	}
	return row.toDomain(), nil
}

func (r *NotificationRepoSQL) ListByCriteria(ctx context.Context, criteria sharedDomain.Criteria, pagination sharedQuery.Pagination, sort sharedQuery.Sort) ([]*notificationDomain.Notification, error) {
	where, args := applyCriteria(criteria)
	query := selectColumns + where

	if sort.Field != "" && sortableColumns[sort.Field] {
		dir := "ASC"
		if sort.Desc {
			dir = "DESC"
		}
		query += fmt.Sprintf(" ORDER BY %s %s, id %s", sort.Field, dir, dir)
	}

	if p, ok := pagination.(sharedQuery.OffsetPagination); ok && (p.Limit > 0 || p.Offset > 0) {
		limit := p.Limit
		if limit <= 0 {
			limit = math.MaxInt32
		}
		query += " LIMIT ? OFFSET ?"
		args = append(args, limit, p.Offset)
	}

	var rows []notificationRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("querying notifications: %w", err)
	}

	out := make([]*notificationDomain.Notification, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toDomain())
	}
	return out, nil
}

func (r *NotificationRepoSQL) Count(ctx context.Context, criteria sharedDomain.Criteria) (int64, error) {
	where, args := applyCriteria(criteria)
	var count int64
	if err := r.db.GetContext(ctx, &count, r.db.Rebind("SELECT COUNT(*) FROM notifications"+where), args...); err != nil {
		return 0, fmt.Errorf("counting notifications: %w", err)
	}
	return count, nil
}

func (r *NotificationRepoSQL) CountByKind(ctx context.Context) (map[notificationDomain.EventKind]int64, error) {
	var rows []struct {
		Kind  string `db:"event_type"`
		Count int64  `db:"total"`
	}
	if err := r.db.SelectContext(ctx, &rows, `SELECT event_type, COUNT(*) AS total FROM notifications GROUP BY event_type`); err != nil {
		return nil, fmt.Errorf("counting notifications by type: %w", err)
	}

	out := make(map[notificationDomain.EventKind]int64, len(rows))
	for _, row := range rows {
		out[notificationDomain.EventKind(row.Kind)] = row.Count
	}
	return out, nil
}

func (r *NotificationRepoSQL) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ------------------ Helpers ------------------

func (row notificationRow) toDomain() *notificationDomain.Notification {
	return &notificationDomain.Notification{
		ID:        row.ID,
		Kind:      notificationDomain.EventKind(row.Kind),
		Title:     row.Title,
		Message:   row.Message,
		TaskID:    row.TaskID,
		Read:      row.Read,
		CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
	}
}

// applyCriteria traduce criterios neutrales a un WHERE con placeholders '?'.
// Los valores time.Time se convierten a nanosegundos como en la columna created_at.
func applyCriteria(criteria sharedDomain.Criteria) (string, []interface{}) {
	if criteria == nil {
		return "", nil
	}
	conds := criteria.ToConditions()
	if len(conds) == 0 {
		return "", nil
	}

	clauses := make([]string, 0, len(conds))
	args := make([]interface{}, 0, len(conds))
	for _, c := range conds {
		if !sortableColumns[c.Field] && c.Field != "read" {
			continue
		}
		op := c.Op
		if op == "" {
			op = sharedDomain.OpEq
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", c.Field, op))

		value := c.Value
		if ts, ok := value.(time.Time); ok {
			value = ts.UTC().UnixNano()
		}
		args = append(args, value)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}
