package loader

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/movielogd/movielogd-importer/apperrors"
	"github.com/movielogd/movielogd-importer/database"
)

func newTestDB(t *testing.T, name string, schemafile string) *sqlx.DB {
	t.Helper()
	db, err := database.InitSqliteDB(filepath.Join(t.TempDir(), name))
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}
	t.Cleanup(func() { db.Close() })
	ddl, err := os.ReadFile(schemafile)
	if err != nil {
		t.Fatalf("read schema %s: %v", schemafile, err)
	}
	if _, err := db.Exec(string(ddl)); err != nil {
		t.Fatalf("apply schema %s: %v", schemafile, err)
	}
	return db
}

func newStagingDB(t *testing.T) *sqlx.DB {
	return newTestDB(t, "staging.db", "../schema/stagingdb/000001_init.up.sql")
}

func newDataDB(t *testing.T) *sqlx.DB {
	return newTestDB(t, "data.db", "../schema/db/000001_init.up.sql")
}

func seedStaging(t *testing.T, db *sqlx.DB) {
	t.Helper()
	stmts := []string{
		`insert into movies (tmdb_id, title, original_title, slug) values
			(101, 'First Film', 'First Film', 'first-film'),
			(102, 'Second Film', 'Second Film', 'second-film')`,
		`insert into movie_genres (genre_id, genre_name) values (18, 'Drama'), (80, 'Crime')`,
		`insert into movie_genre_links (movie_id, genre_id) values (101, 18), (102, 18), (102, 80)`,
		`insert into movie_spoken_languages (iso_639_1, name, english_name) values ('xx', NULL, 'Xxish')`,
		`insert into movie_language_links (movie_id, iso_639_1) values (101, 'xx')`,
		`insert into movie_production_companies (company_id, name) values (5, 'B Studio'), (3, 'A Studio')`,
		`insert into movie_company_links (movie_id, company_id, position) values (101, 5, 0), (101, 3, 1)`,
		`insert into movie_videos (video_id, key, site) values ('v1', 'abc', 'YouTube')`,
		`insert into movie_video_links (movie_id, video_id, position) values (102, 'v1', 0)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("seed staging: %v", err)
		}
	}
}

func countRows(t *testing.T, db *sqlx.DB, table string) int {
	t.Helper()
	n, err := database.CountRows(db, table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestLoaderRun(t *testing.T) {
	t.Run("loads staged rows in dependency order", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)

		res, err := New(staging, data, 2, 3).Run(context.Background(), false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if res.State != StateDone {
			t.Errorf("expected Done, got %s", res.State)
		}
		want := map[string]int{
			"movies": 2, "genres": 2, "movie_genres": 3,
			"spoken_languages": 1, "movie_spoken_languages": 1,
			"production_companies": 2, "movie_production_companies": 2,
			"videos": 1, "movie_videos": 1,
		}
		for table, n := range want {
			if res.Loaded[table] != n {
				t.Errorf("expected %d loaded into %s, got %d", n, table, res.Loaded[table])
			}
			if got := countRows(t, data, table); got != n {
				t.Errorf("expected %d rows in %s, got %d", n, table, got)
			}
		}
		if res.DroppedLinks != 0 {
			t.Errorf("expected no dropped links, got %d", res.DroppedLinks)
		}

		// every join row must resolve to loaded endpoints
		var joined int
		err = data.Get(&joined, `select count(*) from movie_genres mg
			join movies m on m.id = mg.movie_id
			join genres g on g.id = mg.genre_id`)
		if err != nil {
			t.Fatalf("join check: %v", err)
		}
		if joined != 3 {
			t.Errorf("expected 3 resolvable genre links, got %d", joined)
		}
	})

	t.Run("missing language name falls back to english name", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := New(staging, data, 100, 3).Run(context.Background(), false); err != nil {
			t.Fatalf("run: %v", err)
		}
		var name string
		if err := data.Get(&name, "select name from spoken_languages where iso_639_1 = 'xx'"); err != nil {
			t.Fatalf("read language: %v", err)
		}
		if name != "Xxish" {
			t.Errorf("expected english name fallback, got %q", name)
		}
	})

	t.Run("company link order survives the load", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := New(staging, data, 100, 3).Run(context.Background(), false); err != nil {
			t.Fatalf("run: %v", err)
		}
		var ids []int
		err := data.Select(&ids, `select pc.tmdb_id from movie_production_companies mpc
			join production_companies pc on pc.id = mpc.company_id
			join movies m on m.id = mpc.movie_id
			where m.tmdb_id = 101 order by mpc.position`)
		if err != nil {
			t.Fatalf("read companies: %v", err)
		}
		if len(ids) != 2 || ids[0] != 5 || ids[1] != 3 {
			t.Errorf("expected dump order 5,3 - got %v", ids)
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := New(staging, data, 100, 3).Run(context.Background(), false); err != nil {
			t.Fatalf("first run: %v", err)
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), false)
		if err != nil {
			t.Fatalf("second run: %v", err)
		}
		if res.State != StateNoOp {
			t.Errorf("expected NoOp, got %s", res.State)
		}
		if n := countRows(t, data, "movies"); n != 2 {
			t.Errorf("expected 2 movies untouched, got %d", n)
		}
	})

	t.Run("forced reload replaces existing rows", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := New(staging, data, 100, 3).Run(context.Background(), false); err != nil {
			t.Fatalf("first run: %v", err)
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), true)
		if err != nil {
			t.Fatalf("forced run: %v", err)
		}
		if res.State != StateDone {
			t.Errorf("expected Done, got %s", res.State)
		}
		if n := countRows(t, data, "movies"); n != 2 {
			t.Errorf("expected 2 movies after reload, got %d", n)
		}
		if n := countRows(t, data, "movie_genres"); n != 3 {
			t.Errorf("expected 3 genre links after reload, got %d", n)
		}
	})

	t.Run("dangling links are dropped, not written", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := staging.Exec("insert into movie_genre_links (movie_id, genre_id) values (999, 18)"); err != nil {
			t.Fatalf("seed dangling link: %v", err)
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if res.DroppedLinks != 1 {
			t.Errorf("expected 1 dropped link, got %d", res.DroppedLinks)
		}
		if n := countRows(t, data, "movie_genres"); n != 3 {
			t.Errorf("expected 3 genre links written, got %d", n)
		}
	})

	t.Run("duplicate staged links load once", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		stmts := []string{
			`insert into movies (tmdb_id, title, original_title, slug) values (101, 'First Film', 'First Film', 'first-film')`,
			`insert into movie_genres (genre_id, genre_name) values (18, 'Drama')`,
			`insert into movie_genre_links (movie_id, genre_id) values (101, 18), (101, 18)`,
		}
		for _, stmt := range stmts {
			if _, err := staging.Exec(stmt); err != nil {
				t.Fatalf("seed staging: %v", err)
			}
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), false)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		if res.State != StateDone {
			t.Errorf("expected Done, got %s", res.State)
		}
		if res.DroppedLinks != 1 {
			t.Errorf("expected 1 dropped duplicate link, got %d", res.DroppedLinks)
		}
		if n := countRows(t, data, "movie_genres"); n != 1 {
			t.Errorf("expected 1 genre link, got %d", n)
		}
	})

	t.Run("schema mismatch aborts before any write", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		if _, err := data.Exec("drop table videos"); err != nil {
			t.Fatalf("drop table: %v", err)
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), false)
		if err == nil {
			t.Fatal("expected schema error")
		}
		if !apperrors.IsClass(err, apperrors.ErrClassSchema) {
			t.Errorf("expected SCHEMA class, got %v", err)
		}
		if res.State != StateAborted {
			t.Errorf("expected Aborted, got %s", res.State)
		}
		if n := countRows(t, data, "movies"); n != 0 {
			t.Errorf("expected no movies written, got %d", n)
		}
	})

	t.Run("exhausted retries abort but keep committed batches", func(t *testing.T) {
		staging := newStagingDB(t)
		data := newDataDB(t)
		seedStaging(t, staging)
		_, err := data.Exec(`create trigger videos_fail before insert on videos
			begin select raise(ABORT, 'no space left'); end`)
		if err != nil {
			t.Fatalf("create trigger: %v", err)
		}
		res, err := New(staging, data, 100, 3).Run(context.Background(), false)
		if err == nil {
			t.Fatal("expected batch write error")
		}
		if !apperrors.IsClass(err, apperrors.ErrClassDatabase) {
			t.Errorf("expected DATABASE class, got %v", err)
		}
		if res.State != StateAborted {
			t.Errorf("expected Aborted, got %s", res.State)
		}
		if res.FailedTable != "videos" {
			t.Errorf("expected failed table videos, got %q", res.FailedTable)
		}
		// lookups committed before the failing table stay committed
		if n := countRows(t, data, "genres"); n != 2 {
			t.Errorf("expected committed genres kept, got %d", n)
		}
	})
}
