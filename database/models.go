// models for the staged rows the extractor writes and the loader reads
package database

import (
	"database/sql"
)

type StageMovie struct {
	TmdbID                 int            `db:"tmdb_id"`
	Title                  string         `db:"title"`
	OriginalTitle          string         `db:"original_title"`
	Slug                   string         `db:"slug"`
	Adult                  bool           `db:"adult"`
	Video                  bool           `db:"video"`
	Budget                 sql.NullInt64  `db:"budget"`
	Revenue                sql.NullInt64  `db:"revenue"`
	Runtime                sql.NullInt64  `db:"runtime"`
	Status                 string         `db:"status"`
	ImdbID                 sql.NullString `db:"imdb_id"`
	Tagline                sql.NullString `db:"tagline"`
	Homepage               sql.NullString `db:"homepage"`
	Overview               sql.NullString `db:"overview"`
	Popularity             sql.NullFloat64 `db:"popularity"`
	VoteCount              sql.NullInt64  `db:"vote_count"`
	VoteAverage            sql.NullFloat64 `db:"vote_average"`
	ReleaseDate            sql.NullString `db:"release_date"`
	OriginalLanguage       string         `db:"original_language"`
	PosterPath             string         `db:"poster_path"`
	BackdropPath           sql.NullString `db:"backdrop_path"`
	CollectionID           sql.NullInt64  `db:"collection_id"`
	CollectionName         sql.NullString `db:"collection_name"`
	CollectionPosterPath   sql.NullString `db:"collection_poster_path"`
	CollectionBackdropPath sql.NullString `db:"collection_backdrop_path"`
	ExternalImdbID         sql.NullString `db:"external_imdb_id"`
	ExternalTwitterID      sql.NullString `db:"external_twitter_id"`
	ExternalFacebookID     sql.NullString `db:"external_facebook_id"`
	ExternalWikidataID     sql.NullString `db:"external_wikidata_id"`
	ExternalInstagramID    sql.NullString `db:"external_instagram_id"`
}

type StageGenre struct {
	GenreID   int    `db:"genre_id"`
	GenreName string `db:"genre_name"`
}

type StageLanguage struct {
	Iso6391     string         `db:"iso_639_1"`
	Name        sql.NullString `db:"name"`
	EnglishName string         `db:"english_name"`
}

type StageOriginCountry struct {
	Iso31661 string `db:"iso_3166_1"`
}

type StageCompany struct {
	CompanyID     int            `db:"company_id"`
	Name          string         `db:"name"`
	OriginCountry sql.NullString `db:"origin_country"`
	LogoPath      sql.NullString `db:"logo_path"`
}

type StageCountry struct {
	Iso31661 string `db:"iso_3166_1"`
	Name     string `db:"name"`
}

type StageVideo struct {
	VideoID     string         `db:"video_id"`
	Key         string         `db:"key"`
	Name        sql.NullString `db:"name"`
	Site        string         `db:"site"`
	Size        int            `db:"size"`
	VideoType   string         `db:"type"`
	Official    bool           `db:"official"`
	PublishedAt sql.NullString `db:"published_at"`
}

// StageLink is the generic shape of one staged join row. The loader selects
// the per-kind natural key column aliased to natural_key; database/sql
// converts integer keys to their decimal string form on scan.
type StageLink struct {
	MovieID    int            `db:"movie_id"`
	NaturalKey string         `db:"natural_key"`
	Position   sql.NullInt64  `db:"position"`
}
