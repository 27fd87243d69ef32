package extractor

import (
	"database/sql"
	"time"

	json "github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/movielogd/movielogd-importer/database"
	"github.com/movielogd/movielogd-importer/logger"
)

type rawGenre struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type rawLanguage struct {
	Iso6391     string `json:"iso_639_1"`
	Name        string `json:"name"`
	EnglishName string `json:"english_name"`
}

type rawCompany struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	OriginCountry string `json:"origin_country"`
	LogoPath      string `json:"logo_path"`
}

type rawCountry struct {
	Iso31661 string `json:"iso_3166_1"`
	Name     string `json:"name"`
}

type rawVideo struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	Site        string `json:"site"`
	Size        int    `json:"size"`
	Type        string `json:"type"`
	Official    bool   `json:"official"`
	PublishedAt string `json:"published_at"`
}

type rawCollection struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PosterPath   string `json:"poster_path"`
	BackdropPath string `json:"backdrop_path"`
}

type rawExternalIDs struct {
	ImdbID      string `json:"imdb_id"`
	TwitterID   string `json:"twitter_id"`
	FacebookID  string `json:"facebook_id"`
	WikidataID  string `json:"wikidata_id"`
	InstagramID string `json:"instagram_id"`
}

type rawRecord struct {
	ID                  int64          `json:"id"`
	Title               string         `json:"title"`
	OriginalTitle       string         `json:"original_title"`
	Adult               bool           `json:"adult"`
	Video               bool           `json:"video"`
	Budget              *int64         `json:"budget"`
	Revenue             *int64         `json:"revenue"`
	Runtime             *int64         `json:"runtime"`
	Status              string         `json:"status"`
	ImdbID              string         `json:"imdb_id"`
	Tagline             string         `json:"tagline"`
	Homepage            string         `json:"homepage"`
	Overview            string         `json:"overview"`
	Popularity          *float64       `json:"popularity"`
	VoteCount           *int64         `json:"vote_count"`
	VoteAverage         *float64       `json:"vote_average"`
	ReleaseDate         string         `json:"release_date"`
	OriginalLanguage    string         `json:"original_language"`
	PosterPath          string         `json:"poster_path"`
	BackdropPath        string         `json:"backdrop_path"`
	BelongsToCollection *rawCollection `json:"belongs_to_collection"`
	ExternalIDs         *rawExternalIDs `json:"external_ids"`
	Genres              []rawGenre     `json:"genres"`
	SpokenLanguages     []rawLanguage  `json:"spoken_languages"`
	OriginCountry       []string       `json:"origin_country"`
	ProductionCompanies []rawCompany   `json:"production_companies"`
	ProductionCountries []rawCountry   `json:"production_countries"`
	Videos              struct {
		Results []rawVideo `json:"results"`
	} `json:"videos"`
}

// Record is the normalized form of one dump line: one movie row plus the
// entity and join candidates of its nested collections. Company and video
// lists keep input order; the extractor turns slice indexes into the staged
// join ordinal.
type Record struct {
	Movie           database.StageMovie
	Genres          []database.StageGenre
	Languages       []database.StageLanguage
	OriginCountries []database.StageOriginCountry
	Companies       []database.StageCompany
	Countries       []database.StageCountry
	Videos          []database.StageVideo
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// nullDate keeps a date string only when it parses; an unparseable value
// becomes null with a warning, a missing one becomes null silently.
func nullDate(s string, layout string, field string, tmdbid int64, c *Counters) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	if _, err := time.Parse(layout, s); err != nil {
		c.warn(field, tmdbid, "unparseable, set to null")
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// NormalizeLine parses one dump line into a Record. A parse failure or a
// missing/non-numeric external id is a malformed record; field problems are
// recovered locally and only counted.
func NormalizeLine(line []byte, c *Counters) (*Record, error) {
	var raw rawRecord
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, errors.Wrap(err, "parse record")
	}
	if raw.ID <= 0 {
		return nil, errors.New("missing or non-numeric movie id")
	}

	voteavg := raw.VoteAverage
	if voteavg != nil {
		if *voteavg < 0 {
			clamped := 0.0
			voteavg = &clamped
			c.warn("vote_average", raw.ID, "below 0, clamped")
		} else if *voteavg > 10 {
			clamped := 10.0
			voteavg = &clamped
			c.warn("vote_average", raw.ID, "above 10, clamped")
		}
	}

	rec := &Record{
		Movie: database.StageMovie{
			TmdbID:           int(raw.ID),
			Title:            raw.Title,
			OriginalTitle:    raw.OriginalTitle,
			Slug:             logger.StringToSlug(raw.Title),
			Adult:            raw.Adult,
			Video:            raw.Video,
			Budget:           nullInt(raw.Budget),
			Revenue:          nullInt(raw.Revenue),
			Runtime:          nullInt(raw.Runtime),
			Status:           raw.Status,
			ImdbID:           nullString(raw.ImdbID),
			Tagline:          nullString(raw.Tagline),
			Homepage:         nullString(raw.Homepage),
			Overview:         nullString(raw.Overview),
			Popularity:       nullFloat(raw.Popularity),
			VoteCount:        nullInt(raw.VoteCount),
			VoteAverage:      nullFloat(voteavg),
			ReleaseDate:      nullDate(raw.ReleaseDate, "2006-01-02", "release_date", raw.ID, c),
			OriginalLanguage: raw.OriginalLanguage,
			PosterPath:       raw.PosterPath,
			BackdropPath:     nullString(raw.BackdropPath),
		},
	}
	if raw.BelongsToCollection != nil {
		rec.Movie.CollectionID = sql.NullInt64{Int64: raw.BelongsToCollection.ID, Valid: true}
		rec.Movie.CollectionName = nullString(raw.BelongsToCollection.Name)
		rec.Movie.CollectionPosterPath = nullString(raw.BelongsToCollection.PosterPath)
		rec.Movie.CollectionBackdropPath = nullString(raw.BelongsToCollection.BackdropPath)
	}
	if raw.ExternalIDs != nil {
		rec.Movie.ExternalImdbID = nullString(raw.ExternalIDs.ImdbID)
		rec.Movie.ExternalTwitterID = nullString(raw.ExternalIDs.TwitterID)
		rec.Movie.ExternalFacebookID = nullString(raw.ExternalIDs.FacebookID)
		rec.Movie.ExternalWikidataID = nullString(raw.ExternalIDs.WikidataID)
		rec.Movie.ExternalInstagramID = nullString(raw.ExternalIDs.InstagramID)
	}

	for idx := range raw.Genres {
		if raw.Genres[idx].ID <= 0 {
			c.warn("genre", raw.ID, "missing id, element dropped")
			continue
		}
		rec.Genres = append(rec.Genres, database.StageGenre{
			GenreID:   int(raw.Genres[idx].ID),
			GenreName: raw.Genres[idx].Name,
		})
	}
	for idx := range raw.SpokenLanguages {
		if raw.SpokenLanguages[idx].Iso6391 == "" {
			c.warn("spoken_language", raw.ID, "missing code, element dropped")
			continue
		}
		rec.Languages = append(rec.Languages, database.StageLanguage{
			Iso6391:     raw.SpokenLanguages[idx].Iso6391,
			Name:        nullString(raw.SpokenLanguages[idx].Name),
			EnglishName: raw.SpokenLanguages[idx].EnglishName,
		})
	}
	for idx := range raw.OriginCountry {
		if raw.OriginCountry[idx] == "" {
			c.warn("origin_country", raw.ID, "missing code, element dropped")
			continue
		}
		rec.OriginCountries = append(rec.OriginCountries, database.StageOriginCountry{
			Iso31661: raw.OriginCountry[idx],
		})
	}
	for idx := range raw.ProductionCompanies {
		if raw.ProductionCompanies[idx].ID <= 0 {
			c.warn("production_company", raw.ID, "missing id, element dropped")
			continue
		}
		rec.Companies = append(rec.Companies, database.StageCompany{
			CompanyID:     int(raw.ProductionCompanies[idx].ID),
			Name:          raw.ProductionCompanies[idx].Name,
			OriginCountry: nullString(raw.ProductionCompanies[idx].OriginCountry),
			LogoPath:      nullString(raw.ProductionCompanies[idx].LogoPath),
		})
	}
	for idx := range raw.ProductionCountries {
		if raw.ProductionCountries[idx].Iso31661 == "" {
			c.warn("production_country", raw.ID, "missing code, element dropped")
			continue
		}
		rec.Countries = append(rec.Countries, database.StageCountry{
			Iso31661: raw.ProductionCountries[idx].Iso31661,
			Name:     raw.ProductionCountries[idx].Name,
		})
	}
	for idx := range raw.Videos.Results {
		if raw.Videos.Results[idx].ID == "" {
			c.warn("video", raw.ID, "missing id, element dropped")
			continue
		}
		rec.Videos = append(rec.Videos, database.StageVideo{
			VideoID:     raw.Videos.Results[idx].ID,
			Key:         raw.Videos.Results[idx].Key,
			Name:        nullString(raw.Videos.Results[idx].Name),
			Site:        raw.Videos.Results[idx].Site,
			Size:        raw.Videos.Results[idx].Size,
			VideoType:   raw.Videos.Results[idx].Type,
			Official:    raw.Videos.Results[idx].Official,
			PublishedAt: nullDate(raw.Videos.Results[idx].PublishedAt, time.RFC3339, "published_at", raw.ID, c),
		})
	}
	return rec, nil
}
