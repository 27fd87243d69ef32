package database

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/movielogd/movielogd-importer/apperrors"
)

// InitSqliteDB opens (creating if needed) one of the pipeline's SQLite
// stores. The staging db and the data db share the same connection setup.
func InitSqliteDB(dbfile string) (*sqlx.DB, error) {
	if _, err := os.Stat(dbfile); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(dbfile), 0o755); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrClassFileSystem, "create database dir", err).For(dbfile)
		}
		f, err := os.Create(dbfile) // Create SQLite file
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrClassFileSystem, "create database file", err).For(dbfile)
		}
		f.Close()
	}
	db, err := sqlx.Connect("sqlite3", "file:"+dbfile+"?_fk=1&_mutex=no&_cslike=0")
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrClassDatabase, "open database", err).For(dbfile)
	}
	db.SetMaxIdleConns(15)
	db.SetMaxOpenConns(5)
	return db, nil
}

// UpgradeDB applies the migrations under schemadir to dbfile.
func UpgradeDB(schemadir string, dbfile string) error {
	m, err := migrate.New(
		"file://"+schemadir,
		"sqlite3://"+dbfile+"?cache=shared&_fk=1&_mutex=no&_cslike=0",
	)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrClassDatabase, "migration setup", err).For(dbfile)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return apperrors.Wrap(apperrors.ErrClassDatabase, "migration up", err).For(dbfile)
	}
	return nil
}

func CountRows(db *sqlx.DB, table string) (int, error) {
	var counter int
	err := db.Get(&counter, "select count(*) from "+table)
	if err != nil {
		return 0, errors.Wrap(err, "count "+table)
	}
	return counter, nil
}

type tableColumn struct {
	Cid          int            `db:"cid"`
	Name         string         `db:"name"`
	ColumnType   string         `db:"type"`
	NotNull      int            `db:"notnull"`
	DefaultValue interface{}    `db:"dflt_value"`
	PK           int            `db:"pk"`
}

// CheckSchema verifies that every expected table exists with at least the
// expected columns. Run against the data db before the loader writes anything.
func CheckSchema(db *sqlx.DB, expected map[string][]string) error {
	for table, wantcols := range expected {
		var cols []tableColumn
		err := db.Select(&cols, "PRAGMA table_info("+table+")")
		if err != nil {
			return apperrors.Wrap(apperrors.ErrClassSchema, "inspect table", err).For(table)
		}
		if len(cols) == 0 {
			return apperrors.New(apperrors.ErrClassSchema, "check table", "table missing").For(table)
		}
		have := make(map[string]struct{}, len(cols))
		for idx := range cols {
			have[strings.ToLower(cols[idx].Name)] = struct{}{}
		}
		for _, want := range wantcols {
			if _, ok := have[strings.ToLower(want)]; !ok {
				return apperrors.New(apperrors.ErrClassSchema, "check column", "column missing: "+want).For(table)
			}
		}
	}
	return nil
}
