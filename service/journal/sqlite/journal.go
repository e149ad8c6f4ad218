// Package sqlite persists the journal in a SQLite database. The schema is
// applied with golang-migrate from migrations embedded in the binary.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3"
	"github.com/viant/shopfloor/internal/idgen"
	"github.com/viant/shopfloor/service/dao"
	"github.com/viant/shopfloor/service/journal"
)

//go:embed migrations/*.sql
var migrations embed.FS

var columns = map[string]string{
	journal.FieldSource:   "source",
	journal.FieldKind:     "kind",
	journal.FieldEntityID: "entity_id",
	journal.FieldStatus:   "status",
}

// Journal is a SQLite backed journal.Journal
type Journal struct {
	db *sql.DB
}

// Open opens the database at path and applies pending migrations
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}
	return &Journal{db: db}, nil
}

// Migrate applies the embedded migrations to db
func Migrate(db *sql.DB) error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return err
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return err
	}
	// m.Close would close db as well
	defer source.Close()
	if err = m.Up(); errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

func (j *Journal) Append(ctx context.Context, entry *journal.Entry) error {
	if entry == nil {
		return dao.ErrNilEntity
	}
	if entry.ID == "" {
		entry.ID = idgen.New()
	}
	result, err := j.db.ExecContext(ctx,
		`INSERT INTO journal (id, source, kind, entity_id, version, status, detail, at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Source, entry.Kind, entry.EntityID, entry.Version, entry.Status, entry.Detail,
		entry.At.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append journal entry %s: %w", entry.ID, err)
	}
	if entry.Seq, err = result.LastInsertId(); err != nil {
		return err
	}
	return nil
}

func (j *Journal) List(ctx context.Context, parameters ...*dao.Parameter) ([]*journal.Entry, error) {
	query := strings.Builder{}
	query.WriteString(`SELECT seq, id, source, kind, entity_id, version, status, detail, at FROM journal`)
	var conditions []string
	var args []any
	for _, parameter := range parameters {
		if parameter == nil {
			continue
		}
		column, ok := columns[parameter.Name]
		if !ok {
			continue
		}
		var values []string
		switch actual := parameter.Value.(type) {
		case string:
			values = []string{actual}
		case []string:
			values = actual
		default:
			return nil, fmt.Errorf("unsupported %s parameter type %T", parameter.Name, parameter.Value)
		}
		if len(values) == 0 {
			continue
		}
		conditions = append(conditions, column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(values)), ",")+")")
		for _, value := range values {
			args = append(args, value)
		}
	}
	if len(conditions) > 0 {
		query.WriteString(" WHERE " + strings.Join(conditions, " AND "))
	}
	query.WriteString(" ORDER BY seq")

	rows, err := j.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ret []*journal.Entry
	for rows.Next() {
		entry := &journal.Entry{}
		var at string
		if err := rows.Scan(&entry.Seq, &entry.ID, &entry.Source, &entry.Kind, &entry.EntityID, &entry.Version,
			&entry.Status, &entry.Detail, &at); err != nil {
			return nil, err
		}
		if entry.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("journal entry %s: %w", entry.ID, err)
		}
		ret = append(ret, entry)
	}
	return ret, rows.Err()
}

func (j *Journal) Close() error {
	return j.db.Close()
}
