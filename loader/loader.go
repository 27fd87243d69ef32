package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/movielogd/movielogd-importer/apperrors"
	"github.com/movielogd/movielogd-importer/database"
	"github.com/movielogd/movielogd-importer/logger"
)

// State is the loader's position in its run lifecycle. NoOp, Done and
// Aborted are terminal.
type State string

const (
	StateIdle     State = "Idle"
	StateChecking State = "CheckingExisting"
	StateNoOp     State = "NoOp"
	StateClearing State = "Clearing"
	StateLoading  State = "Loading"
	StateDone     State = "Done"
	StateAborted  State = "Aborted"
)

// Loader runs phase two: move staged rows into the data store in dependency
// order. Single writer; never run two loaders against the same data db.
type Loader struct {
	staging    *sqlx.DB
	data       *sqlx.DB
	batchrows  int
	maxretries int
	state      State
	batches    int
	progress   *Progress
}

// Result is the outcome summary of one loader run.
type Result struct {
	State        State
	Loaded       map[string]int
	Batches      int
	DroppedLinks int
	FailedTable  string
}

func New(staging *sqlx.DB, data *sqlx.DB, batchrows int, maxretries int) *Loader {
	if batchrows <= 0 {
		batchrows = 1000
	}
	if maxretries <= 0 {
		maxretries = 3
	}
	return &Loader{
		staging:    staging,
		data:       data,
		batchrows:  batchrows,
		maxretries: maxretries,
		state:      StateIdle,
		progress:   NewProgress(nil),
	}
}

func (l *Loader) State() State {
	return l.state
}

var movieColumns = []string{
	"tmdb_id", "title", "original_title", "slug", "adult", "video",
	"budget", "revenue", "runtime", "status", "imdb_id", "tagline",
	"homepage", "overview", "popularity", "vote_count", "vote_average",
	"release_date", "original_language", "poster_path", "backdrop_path",
	"collection_id", "collection_name", "collection_poster_path",
	"collection_backdrop_path", "external_imdb_id", "external_twitter_id",
	"external_facebook_id", "external_wikidata_id", "external_instagram_id",
}

// ExpectedSchema is the destination contract this pipeline owns writes to.
// The application's data-access layer reads these tables by these names.
func ExpectedSchema() map[string][]string {
	return map[string][]string{
		"genres":                     {"id", "tmdb_id", "name"},
		"spoken_languages":           {"id", "iso_639_1", "name", "english_name"},
		"origin_countries":           {"id", "iso_3166_1"},
		"production_companies":       {"id", "tmdb_id", "name", "origin_country", "logo_path"},
		"production_countries":       {"id", "iso_3166_1", "name"},
		"videos":                     {"id", "video_id", "key", "name", "site", "size", "type", "official", "published_at"},
		"movies":                     append([]string{"id"}, movieColumns...),
		"movie_genres":               {"movie_id", "genre_id"},
		"movie_spoken_languages":     {"movie_id", "language_id"},
		"movie_origin_countries":     {"movie_id", "country_id"},
		"movie_production_companies": {"movie_id", "company_id", "position"},
		"movie_production_countries": {"movie_id", "country_id"},
		"movie_videos":               {"movie_id", "video_id", "position"},
	}
}

// destTablesInDeleteOrder respects the foreign keys: join tables first,
// movies next, lookup tables last.
var destTablesInDeleteOrder = []string{
	"movie_genres", "movie_spoken_languages", "movie_origin_countries",
	"movie_production_companies", "movie_production_countries", "movie_videos",
	"movies",
	"genres", "spoken_languages", "origin_countries",
	"production_companies", "production_countries", "videos",
}

type tableCopy struct {
	label        string
	stagingTable string
	selectSQL    string
	destTable    string
	destCols     []string
}

func lookupCopies() []tableCopy {
	return []tableCopy{
		{
			label:        "genres",
			stagingTable: "movie_genres",
			selectSQL:    "select genre_id, genre_name from movie_genres",
			destTable:    "genres",
			destCols:     []string{"tmdb_id", "name"},
		},
		{
			label:        "spoken_languages",
			stagingTable: "movie_spoken_languages",
			selectSQL:    "select iso_639_1, coalesce(name, english_name), english_name from movie_spoken_languages",
			destTable:    "spoken_languages",
			destCols:     []string{"iso_639_1", "name", "english_name"},
		},
		{
			label:        "origin_countries",
			stagingTable: "movie_origin_countries",
			selectSQL:    "select iso_3166_1 from movie_origin_countries",
			destTable:    "origin_countries",
			destCols:     []string{"iso_3166_1"},
		},
		{
			label:        "production_companies",
			stagingTable: "movie_production_companies",
			selectSQL:    "select company_id, name, origin_country, logo_path from movie_production_companies",
			destTable:    "production_companies",
			destCols:     []string{"tmdb_id", "name", "origin_country", "logo_path"},
		},
		{
			label:        "production_countries",
			stagingTable: "movie_production_countries",
			selectSQL:    "select iso_3166_1, name from movie_production_countries",
			destTable:    "production_countries",
			destCols:     []string{"iso_3166_1", "name"},
		},
		{
			label:        "videos",
			stagingTable: "movie_videos",
			selectSQL:    "select video_id, key, name, site, size, type, official, published_at from movie_videos",
			destTable:    "videos",
			destCols:     []string{"video_id", "key", "name", "site", "size", "type", "official", "published_at"},
		},
	}
}

func movieCopy() tableCopy {
	return tableCopy{
		label:        "movies",
		stagingTable: "movies",
		selectSQL:    "select " + strings.Join(movieColumns, ", ") + " from movies",
		destTable:    "movies",
		destCols:     movieColumns,
	}
}

type joinCopy struct {
	label        string
	stagingTable string
	selectSQL    string
	destTable    string
	destCols     []string
	lookupTable  string
	lookupKey    string
	hasPosition  bool
}

func joinCopies() []joinCopy {
	return []joinCopy{
		{
			label:        "movie_genres",
			stagingTable: "movie_genre_links",
			selectSQL:    "select movie_id, genre_id as natural_key from movie_genre_links",
			destTable:    "movie_genres",
			destCols:     []string{"movie_id", "genre_id"},
			lookupTable:  "genres",
			lookupKey:    "tmdb_id",
		},
		{
			label:        "movie_spoken_languages",
			stagingTable: "movie_language_links",
			selectSQL:    "select movie_id, iso_639_1 as natural_key from movie_language_links",
			destTable:    "movie_spoken_languages",
			destCols:     []string{"movie_id", "language_id"},
			lookupTable:  "spoken_languages",
			lookupKey:    "iso_639_1",
		},
		{
			label:        "movie_origin_countries",
			stagingTable: "movie_origin_country_links",
			selectSQL:    "select movie_id, iso_3166_1 as natural_key from movie_origin_country_links",
			destTable:    "movie_origin_countries",
			destCols:     []string{"movie_id", "country_id"},
			lookupTable:  "origin_countries",
			lookupKey:    "iso_3166_1",
		},
		{
			label:        "movie_production_companies",
			stagingTable: "movie_company_links",
			selectSQL:    "select movie_id, company_id as natural_key, position from movie_company_links",
			destTable:    "movie_production_companies",
			destCols:     []string{"movie_id", "company_id", "position"},
			lookupTable:  "production_companies",
			lookupKey:    "tmdb_id",
			hasPosition:  true,
		},
		{
			label:        "movie_production_countries",
			stagingTable: "movie_country_links",
			selectSQL:    "select movie_id, iso_3166_1 as natural_key from movie_country_links",
			destTable:    "movie_production_countries",
			destCols:     []string{"movie_id", "country_id"},
			lookupTable:  "production_countries",
			lookupKey:    "iso_3166_1",
		},
		{
			label:        "movie_videos",
			stagingTable: "movie_video_links",
			selectSQL:    "select movie_id, video_id as natural_key, position from movie_video_links",
			destTable:    "movie_videos",
			destCols:     []string{"movie_id", "video_id", "position"},
			lookupTable:  "videos",
			lookupKey:    "video_id",
			hasPosition:  true,
		},
	}
}

// Run executes the loader state machine. Committed batches stay committed on
// abort; the in-flight batch rolls back atomically.
func (l *Loader) Run(ctx context.Context, force bool) (*Result, error) {
	res := &Result{State: StateIdle, Loaded: make(map[string]int, 13)}

	l.state = StateChecking
	res.State = l.state
	if err := database.CheckSchema(l.data, ExpectedSchema()); err != nil {
		l.state = StateAborted
		res.State = l.state
		return res, err
	}
	existing, err := database.CountRows(l.data, "movies")
	if err != nil {
		l.state = StateAborted
		res.State = l.state
		return res, apperrors.Wrap(apperrors.ErrClassDatabase, "check existing", err)
	}
	if existing > 0 && !force {
		logger.Log.Infof("movies already present (%d rows) - skipping import", existing)
		l.state = StateNoOp
		res.State = l.state
		return res, nil
	}

	if force {
		l.state = StateClearing
		res.State = l.state
		logger.Log.Infoln("forced reload - clearing destination tables")
		if err := l.clearAll(ctx); err != nil {
			l.state = StateAborted
			res.State = l.state
			return res, err
		}
	}

	l.state = StateLoading
	res.State = l.state

	logger.Log.Infoln("importing lookup tables")
	for _, tc := range lookupCopies() {
		n, err := l.copyTable(ctx, tc)
		res.Loaded[tc.destTable] = n
		if err != nil {
			return l.abort(res, tc.destTable, err)
		}
	}

	logger.Log.Infoln("importing movies")
	mc := movieCopy()
	n, err := l.copyTable(ctx, mc)
	res.Loaded[mc.destTable] = n
	if err != nil {
		return l.abort(res, mc.destTable, err)
	}

	logger.Log.Infoln("linking many-to-many relations")
	movieIDs, err := l.idmap("movies", "tmdb_id")
	if err != nil {
		return l.abort(res, "movies", err)
	}
	for _, jc := range joinCopies() {
		n, dropped, err := l.copyJoin(ctx, jc, movieIDs)
		res.Loaded[jc.destTable] = n
		res.DroppedLinks += dropped
		if err != nil {
			return l.abort(res, jc.destTable, err)
		}
	}

	l.state = StateDone
	res.State = l.state
	res.Batches = l.batches
	return res, nil
}

func (l *Loader) abort(res *Result, table string, err error) (*Result, error) {
	l.state = StateAborted
	res.State = l.state
	res.Batches = l.batches
	res.FailedTable = table
	return res, err
}

func (l *Loader) clearAll(ctx context.Context) error {
	tx, err := l.data.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrClassDatabase, "begin clearing", err)
	}
	for _, table := range destTablesInDeleteOrder {
		if _, err := tx.ExecContext(ctx, "delete from "+table); err != nil {
			tx.Rollback()
			return apperrors.Wrap(apperrors.ErrClassDatabase, "clear table", err).For(table)
		}
	}
	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrClassDatabase, "commit clearing", err)
	}
	return nil
}

// writeBatch writes one batch inside its own transaction with bounded
// retries. The same batch is retried whole; exhausting retries aborts the run.
func (l *Loader) writeBatch(ctx context.Context, table string, columns []string, batch [][]interface{}) error {
	if len(batch) == 0 {
		return nil
	}
	params := "(?" + strings.Repeat(", ?", len(columns)-1) + ")"
	var sqlbuild strings.Builder
	sqlbuild.WriteString("insert into " + table + " (" + strings.Join(columns, ", ") + ") VALUES ")
	valueArgs := make([]interface{}, 0, len(batch)*len(columns))
	for idx := range batch {
		if idx > 0 {
			sqlbuild.WriteString(",")
		}
		sqlbuild.WriteString(params)
		valueArgs = append(valueArgs, batch[idx]...)
	}
	query := sqlbuild.String()

	var lasterr error
	for attempt := 1; attempt <= l.maxretries; attempt++ {
		if err := ctx.Err(); err != nil {
			return apperrors.Wrap(apperrors.ErrClassDatabase, "batch write cancelled", err).For(table)
		}
		tx, err := l.data.BeginTxx(ctx, nil)
		if err != nil {
			lasterr = err
			logger.Log.Warnf("batch write attempt %d/%d on %s failed: %v", attempt, l.maxretries, table, err)
			continue
		}
		if _, err = tx.ExecContext(ctx, query, valueArgs...); err == nil {
			if err = tx.Commit(); err == nil {
				l.batches++
				return nil
			}
		}
		tx.Rollback()
		lasterr = err
		logger.Log.Warnf("batch write attempt %d/%d on %s failed: %v", attempt, l.maxretries, table, err)
	}
	return apperrors.Wrap(apperrors.ErrClassDatabase, fmt.Sprintf("batch write retries exhausted (%d)", l.maxretries), lasterr).For(table)
}

func (l *Loader) copyTable(ctx context.Context, tc tableCopy) (int, error) {
	total, err := database.CountRows(l.staging, tc.stagingTable)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrClassDatabase, "count staged rows", err).For(tc.stagingTable)
	}
	rows, err := l.staging.Queryx(tc.selectSQL)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.ErrClassDatabase, "read staged rows", err).For(tc.stagingTable)
	}
	defer rows.Close()

	done := 0
	batch := make([][]interface{}, 0, l.batchrows)
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return done, apperrors.Wrap(apperrors.ErrClassDatabase, "scan staged row", err).For(tc.stagingTable)
		}
		batch = append(batch, vals)
		if len(batch) >= l.batchrows {
			if err := l.writeBatch(ctx, tc.destTable, tc.destCols, batch); err != nil {
				return done, err
			}
			done += len(batch)
			batch = batch[:0]
			l.progress.Step(tc.label, done, total)
		}
	}
	if err := rows.Err(); err != nil {
		return done, apperrors.Wrap(apperrors.ErrClassDatabase, "iterate staged rows", err).For(tc.stagingTable)
	}
	if err := l.writeBatch(ctx, tc.destTable, tc.destCols, batch); err != nil {
		return done, err
	}
	done += len(batch)
	l.progress.Finish(tc.label, done, total)
	return done, nil
}

// idmap resolves the surrogate id assigned to each natural key after the
// owning table is loaded. Integer keys are mapped by their decimal form.
func (l *Loader) idmap(table string, keycol string) (map[string]int64, error) {
	rows, err := l.data.Queryx("select id, " + keycol + " from " + table)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrClassDatabase, "read surrogate keys", err).For(table)
	}
	defer rows.Close()
	out := make(map[string]int64, 1000)
	for rows.Next() {
		var id int64
		var key interface{}
		if err := rows.Scan(&id, &key); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrClassDatabase, "scan surrogate key", err).For(table)
		}
		out[keyString(key)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrClassDatabase, "iterate surrogate keys", err).For(table)
	}
	return out, nil
}

func keyString(v interface{}) string {
	switch k := v.(type) {
	case string:
		return k
	case []byte:
		return string(k)
	case int64:
		return fmt.Sprintf("%d", k)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", k)
	}
}

func (l *Loader) copyJoin(ctx context.Context, jc joinCopy, movieIDs map[string]int64) (int, int, error) {
	entIDs, err := l.idmap(jc.lookupTable, jc.lookupKey)
	if err != nil {
		return 0, 0, err
	}
	total, err := database.CountRows(l.staging, jc.stagingTable)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrClassDatabase, "count staged links", err).For(jc.stagingTable)
	}
	rows, err := l.staging.Queryx(jc.selectSQL)
	if err != nil {
		return 0, 0, apperrors.Wrap(apperrors.ErrClassDatabase, "read staged links", err).For(jc.stagingTable)
	}
	defer rows.Close()

	done := 0
	dropped := 0
	// the destination join tables are unique per (movie, entity); a repeated
	// staged pair must not fail the batch
	written := make(map[[2]int64]struct{}, total)
	batch := make([][]interface{}, 0, l.batchrows)
	for rows.Next() {
		var link database.StageLink
		if err := rows.StructScan(&link); err != nil {
			return done, dropped, apperrors.Wrap(apperrors.ErrClassDatabase, "scan staged link", err).For(jc.stagingTable)
		}
		movieid, ok := movieIDs[fmt.Sprintf("%d", link.MovieID)]
		if !ok {
			dropped++
			logger.Log.Warnf("%s: movie %d not loaded, link dropped", jc.label, link.MovieID)
			continue
		}
		entid, ok := entIDs[link.NaturalKey]
		if !ok {
			dropped++
			logger.Log.Warnf("%s: %s %q not loaded, link dropped", jc.label, jc.lookupTable, link.NaturalKey)
			continue
		}
		pair := [2]int64{movieid, entid}
		if _, ok := written[pair]; ok {
			dropped++
			logger.Log.Warnf("%s: movie %d already linked to %s %q, link dropped", jc.label, link.MovieID, jc.lookupTable, link.NaturalKey)
			continue
		}
		written[pair] = struct{}{}
		args := []interface{}{movieid, entid}
		if jc.hasPosition {
			args = append(args, link.Position)
		}
		batch = append(batch, args)
		if len(batch) >= l.batchrows {
			if err := l.writeBatch(ctx, jc.destTable, jc.destCols, batch); err != nil {
				return done, dropped, err
			}
			done += len(batch)
			batch = batch[:0]
			l.progress.Step(jc.label, done, total)
		}
	}
	if err := rows.Err(); err != nil {
		return done, dropped, apperrors.Wrap(apperrors.ErrClassDatabase, "iterate staged links", err).For(jc.stagingTable)
	}
	if err := l.writeBatch(ctx, jc.destTable, jc.destCols, batch); err != nil {
		return done, dropped, err
	}
	done += len(batch)
	l.progress.Finish(jc.label, done, total)
	return done, dropped, nil
}
