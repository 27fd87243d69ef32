package extractor

import (
	"context"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/movielogd/movielogd-importer/apperrors"
	"github.com/movielogd/movielogd-importer/database"
	"github.com/movielogd/movielogd-importer/logger"
)

var movieColumns = []string{
	"tmdb_id", "title", "original_title", "slug", "adult", "video",
	"budget", "revenue", "runtime", "status", "imdb_id", "tagline",
	"homepage", "overview", "popularity", "vote_count", "vote_average",
	"release_date", "original_language", "poster_path", "backdrop_path",
	"collection_id", "collection_name", "collection_poster_path",
	"collection_backdrop_path", "external_imdb_id", "external_twitter_id",
	"external_facebook_id", "external_wikidata_id", "external_instagram_id",
}

// Extractor runs phase one: stream the dump, normalize and deduplicate, and
// append the staged rows in batches.
type Extractor struct {
	db         *sqlx.DB
	batchrows  int
	linebuffer int
}

func New(db *sqlx.DB, batchrows int, linebuffer int) *Extractor {
	if batchrows <= 0 {
		batchrows = 1000
	}
	return &Extractor{db: db, batchrows: batchrows, linebuffer: linebuffer}
}

type inserters struct {
	movies        *database.Inserter
	genres        *database.Inserter
	languages     *database.Inserter
	origincountries *database.Inserter
	companies     *database.Inserter
	countries     *database.Inserter
	videos        *database.Inserter
	genrelinks    *database.Inserter
	languagelinks *database.Inserter
	origincountrylinks *database.Inserter
	companylinks  *database.Inserter
	countrylinks  *database.Inserter
	videolinks    *database.Inserter
}

func (e *Extractor) newInserters() *inserters {
	b := e.batchrows
	return &inserters{
		movies:        database.NewInserter(e.db, "movies", movieColumns, b),
		genres:        database.NewInserter(e.db, "movie_genres", []string{"genre_id", "genre_name"}, b),
		languages:     database.NewInserter(e.db, "movie_spoken_languages", []string{"iso_639_1", "name", "english_name"}, b),
		origincountries: database.NewInserter(e.db, "movie_origin_countries", []string{"iso_3166_1"}, b),
		companies:     database.NewInserter(e.db, "movie_production_companies", []string{"company_id", "name", "origin_country", "logo_path"}, b),
		countries:     database.NewInserter(e.db, "movie_production_countries", []string{"iso_3166_1", "name"}, b),
		videos:        database.NewInserter(e.db, "movie_videos", []string{"video_id", "key", "name", "site", "size", "type", "official", "published_at"}, b),
		genrelinks:    database.NewInserter(e.db, "movie_genre_links", []string{"movie_id", "genre_id"}, b),
		languagelinks: database.NewInserter(e.db, "movie_language_links", []string{"movie_id", "iso_639_1"}, b),
		origincountrylinks: database.NewInserter(e.db, "movie_origin_country_links", []string{"movie_id", "iso_3166_1"}, b),
		companylinks:  database.NewInserter(e.db, "movie_company_links", []string{"movie_id", "company_id", "position"}, b),
		countrylinks:  database.NewInserter(e.db, "movie_country_links", []string{"movie_id", "iso_3166_1"}, b),
		videolinks:    database.NewInserter(e.db, "movie_video_links", []string{"movie_id", "video_id", "position"}, b),
	}
}

func (ins *inserters) all() map[string]*database.Inserter {
	return map[string]*database.Inserter{
		"movies":                     ins.movies,
		"movie_genres":               ins.genres,
		"movie_spoken_languages":     ins.languages,
		"movie_origin_countries":     ins.origincountries,
		"movie_production_companies": ins.companies,
		"movie_production_countries": ins.countries,
		"movie_videos":               ins.videos,
		"movie_genre_links":          ins.genrelinks,
		"movie_language_links":       ins.languagelinks,
		"movie_origin_country_links": ins.origincountrylinks,
		"movie_company_links":        ins.companylinks,
		"movie_country_links":        ins.countrylinks,
		"movie_video_links":          ins.videolinks,
	}
}

type keysets struct {
	movies          *KeySet
	genres          *KeySet
	languages       *KeySet
	origincountries *KeySet
	companies       *KeySet
	countries       *KeySet
	videos          *KeySet
}

func newKeysets() *keysets {
	return &keysets{
		movies:          NewKeySet(100000),
		genres:          NewKeySet(50),
		languages:       NewKeySet(200),
		origincountries: NewKeySet(300),
		companies:       NewKeySet(10000),
		countries:       NewKeySet(300),
		videos:          NewKeySet(100000),
	}
}

// Run extracts the whole dump into the staging store. Malformed lines are
// skipped and counted; only filesystem or staging store failures abort.
func (e *Extractor) Run(ctx context.Context, dumppath string) (*Counters, error) {
	c := NewCounters()
	// cancel unblocks the reader goroutine on every early return
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines, errc, err := StreamLines(ctx, dumppath, e.linebuffer)
	if err != nil {
		return c, err
	}

	ins := e.newInserters()
	keys := newKeysets()

	for line := range lines {
		c.Lines++
		rec, err := NormalizeLine(line, c)
		if err != nil {
			c.skip(c.Lines, err.Error())
			continue
		}
		first, _ := keys.movies.Seen(strconv.Itoa(rec.Movie.TmdbID), "")
		if !first {
			c.Conflicts++
			logger.Log.Warnf("movie %d staged before, record discarded", rec.Movie.TmdbID)
			continue
		}
		if err := stageRecord(ins, keys, rec, c); err != nil {
			return c, apperrors.Wrap(apperrors.ErrClassDatabase, "stage record", err)
		}
		c.Parsed++
		if c.Lines%10000 == 0 {
			logger.Log.Debugf("extracted %d lines, %d movies", c.Lines, c.Parsed)
		}
	}
	if err := <-errc; err != nil {
		return c, err
	}

	for table, inserter := range ins.all() {
		if err := inserter.Flush(); err != nil {
			return c, apperrors.Wrap(apperrors.ErrClassDatabase, "flush staging", err).For(table)
		}
		c.Staged[table] = inserter.Rows()
	}
	if _, err := e.db.ExecContext(ctx, "insert into extraction_done default values"); err != nil {
		return c, apperrors.Wrap(apperrors.ErrClassDatabase, "mark extraction complete", err)
	}
	return c, nil
}

// Completed reports whether a previous extraction ran to the end. Staged
// rows without the marker are leftovers of an aborted run and must not be
// loaded.
func Completed(db *sqlx.DB) (bool, error) {
	n, err := database.CountRows(db, "extraction_done")
	if err != nil {
		return false, apperrors.Wrap(apperrors.ErrClassDatabase, "check extraction marker", err)
	}
	return n > 0, nil
}

func stageRecord(ins *inserters, keys *keysets, rec *Record, c *Counters) error {
	m := &rec.Movie
	err := ins.movies.Add(
		m.TmdbID, m.Title, m.OriginalTitle, m.Slug, m.Adult, m.Video,
		m.Budget, m.Revenue, m.Runtime, m.Status, m.ImdbID, m.Tagline,
		m.Homepage, m.Overview, m.Popularity, m.VoteCount, m.VoteAverage,
		m.ReleaseDate, m.OriginalLanguage, m.PosterPath, m.BackdropPath,
		m.CollectionID, m.CollectionName, m.CollectionPosterPath,
		m.CollectionBackdropPath, m.ExternalImdbID, m.ExternalTwitterID,
		m.ExternalFacebookID, m.ExternalWikidataID, m.ExternalInstagramID,
	)
	if err != nil {
		return err
	}

	// dirty dumps repeat nested elements; one record links each entity once
	linked := newLinkSet()

	for idx := range rec.Genres {
		g := &rec.Genres[idx]
		key := strconv.Itoa(g.GenreID)
		if linked.repeat(linked.genres, key) {
			c.warn("genre", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, conflict := keys.genres.Seen(key, g.GenreName)
		if conflict {
			c.Conflicts++
		}
		if first {
			if err := ins.genres.Add(g.GenreID, g.GenreName); err != nil {
				return err
			}
		}
		if err := ins.genrelinks.Add(m.TmdbID, g.GenreID); err != nil {
			return err
		}
	}

	for idx := range rec.Languages {
		l := &rec.Languages[idx]
		if linked.repeat(linked.languages, l.Iso6391) {
			c.warn("spoken_language", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, conflict := keys.languages.Seen(l.Iso6391, l.Name.String+"|"+l.EnglishName)
		if conflict {
			c.Conflicts++
		}
		if first {
			if err := ins.languages.Add(l.Iso6391, l.Name, l.EnglishName); err != nil {
				return err
			}
		}
		if err := ins.languagelinks.Add(m.TmdbID, l.Iso6391); err != nil {
			return err
		}
	}

	for idx := range rec.OriginCountries {
		o := &rec.OriginCountries[idx]
		if linked.repeat(linked.origincountries, o.Iso31661) {
			c.warn("origin_country", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, _ := keys.origincountries.Seen(o.Iso31661, "")
		if first {
			if err := ins.origincountries.Add(o.Iso31661); err != nil {
				return err
			}
		}
		if err := ins.origincountrylinks.Add(m.TmdbID, o.Iso31661); err != nil {
			return err
		}
	}

	for idx := range rec.Companies {
		co := &rec.Companies[idx]
		key := strconv.Itoa(co.CompanyID)
		if linked.repeat(linked.companies, key) {
			c.warn("production_company", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, conflict := keys.companies.Seen(key, co.Name+"|"+co.OriginCountry.String+"|"+co.LogoPath.String)
		if conflict {
			c.Conflicts++
		}
		if first {
			if err := ins.companies.Add(co.CompanyID, co.Name, co.OriginCountry, co.LogoPath); err != nil {
				return err
			}
		}
		if err := ins.companylinks.Add(m.TmdbID, co.CompanyID, idx); err != nil {
			return err
		}
	}

	for idx := range rec.Countries {
		co := &rec.Countries[idx]
		if linked.repeat(linked.countries, co.Iso31661) {
			c.warn("production_country", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, conflict := keys.countries.Seen(co.Iso31661, co.Name)
		if conflict {
			c.Conflicts++
		}
		if first {
			if err := ins.countries.Add(co.Iso31661, co.Name); err != nil {
				return err
			}
		}
		if err := ins.countrylinks.Add(m.TmdbID, co.Iso31661); err != nil {
			return err
		}
	}

	for idx := range rec.Videos {
		v := &rec.Videos[idx]
		if linked.repeat(linked.videos, v.VideoID) {
			c.warn("video", int64(m.TmdbID), "repeated element, link dropped")
			continue
		}
		first, conflict := keys.videos.Seen(v.VideoID, v.Key+"|"+v.Site+"|"+v.Name.String)
		if conflict {
			c.Conflicts++
		}
		if first {
			if err := ins.videos.Add(v.VideoID, v.Key, v.Name, v.Site, v.Size, v.VideoType, v.Official, v.PublishedAt); err != nil {
				return err
			}
		}
		if err := ins.videolinks.Add(m.TmdbID, v.VideoID, idx); err != nil {
			return err
		}
	}
	return nil
}

type linkSet struct {
	genres          map[string]struct{}
	languages       map[string]struct{}
	origincountries map[string]struct{}
	companies       map[string]struct{}
	countries       map[string]struct{}
	videos          map[string]struct{}
}

func newLinkSet() *linkSet {
	return &linkSet{
		genres:          make(map[string]struct{}, 4),
		languages:       make(map[string]struct{}, 4),
		origincountries: make(map[string]struct{}, 4),
		companies:       make(map[string]struct{}, 4),
		countries:       make(map[string]struct{}, 4),
		videos:          make(map[string]struct{}, 8),
	}
}

func (ls *linkSet) repeat(kind map[string]struct{}, key string) bool {
	if _, ok := kind[key]; ok {
		return true
	}
	kind[key] = struct{}{}
	return false
}

// StagingTables lists every staged row kind plus the completion marker,
// join tables first.
var StagingTables = []string{
	"movie_genre_links", "movie_language_links", "movie_origin_country_links",
	"movie_company_links", "movie_country_links", "movie_video_links",
	"movies", "movie_genres", "movie_spoken_languages",
	"movie_origin_countries", "movie_production_companies",
	"movie_production_countries", "movie_videos", "extraction_done",
}

// ResetStaging clears every staging table. Only an explicit reset removes
// staged rows, never a completed load.
func ResetStaging(ctx context.Context, db *sqlx.DB) error {
	for _, table := range StagingTables {
		if _, err := db.ExecContext(ctx, "delete from "+table); err != nil {
			return apperrors.Wrap(apperrors.ErrClassDatabase, "reset staging", err).For(table)
		}
	}
	return nil
}
