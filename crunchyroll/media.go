package crunchyroll

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"crunchy-cli/internal"
)

// Version is one audio variant of a media
type Version struct {
	AudioLocale Locale `json:"audio_locale"`
	GUID        string `json:"guid"`
	Original    bool   `json:"original"`
}

// Media is an episode or a movie
type Media struct {
	ID             string
	Type           string
	Title          string
	SeriesID       string
	SeriesTitle    string
	SeasonID       string
	SeasonNumber   int
	EpisodeNumber  int
	SequenceNumber float64
	AudioLocale    Locale
	Versions       []Version
}

// VersionFor returns the id of the variant with the given audio locale
func (m *Media) VersionFor(locale Locale) (string, bool) {
	if m.AudioLocale == locale {
		return m.ID, true
	}
	for _, version := range m.Versions {
		if version.AudioLocale == locale {
			return version.GUID, true
		}
	}
	return "", false
}

// AudioLocales lists every audio locale the media is available in
func (m *Media) AudioLocales() []Locale {
	seen := map[Locale]bool{}
	var locales []Locale
	add := func(l Locale) {
		if l != "" && !seen[l] {
			seen[l] = true
			locales = append(locales, l)
		}
	}
	add(m.AudioLocale)
	for _, version := range m.Versions {
		add(version.AudioLocale)
	}
	return locales
}

type episodeMetadata struct {
	SeriesID       string    `json:"series_id"`
	SeriesTitle    string    `json:"series_title"`
	SeasonID       string    `json:"season_id"`
	SeasonNumber   int       `json:"season_number"`
	EpisodeNumber  int       `json:"episode_number"`
	SequenceNumber float64   `json:"sequence_number"`
	AudioLocale    Locale    `json:"audio_locale"`
	Versions       []Version `json:"versions"`
}

type objectResponse struct {
	ID              string           `json:"id"`
	Type            string           `json:"type"`
	Title           string           `json:"title"`
	EpisodeMetadata *episodeMetadata `json:"episode_metadata"`
	MovieMetadata   *struct {
		MovieListingID    string `json:"movie_listing_id"`
		MovieListingTitle string `json:"movie_listing_title"`
	} `json:"movie_metadata"`
}

type episodeResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	episodeMetadata
}

type seasonResponse struct {
	ID                   string   `json:"id"`
	Title                string   `json:"title"`
	SeasonNumber         int      `json:"season_number"`
	SeasonSequenceNumber int      `json:"season_sequence_number"`
	AudioLocale          Locale   `json:"audio_locale"`
	AudioLocales         []Locale `json:"audio_locales"`
}

type listResponse[T any] struct {
	Total int `json:"total"`
	Data  []T `json:"data"`
}

func (e *episodeMetadata) media(id, title string) Media {
	return Media{
		ID:             id,
		Type:           "episode",
		Title:          title,
		SeriesID:       e.SeriesID,
		SeriesTitle:    e.SeriesTitle,
		SeasonID:       e.SeasonID,
		SeasonNumber:   e.SeasonNumber,
		EpisodeNumber:  e.EpisodeNumber,
		SequenceNumber: e.SequenceNumber,
		AudioLocale:    e.AudioLocale,
		Versions:       e.Versions,
	}
}

// Media fetches a single episode or movie by id
func (c *Crunchyroll) Media(ctx context.Context, id string) (*Media, error) {
	var response listResponse[objectResponse]
	endpoint := fmt.Sprintf("%s/content/v2/cms/objects/%s", c.baseURL, url.PathEscape(id))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	if len(response.Data) == 0 {
		return nil, internal.NewNotFoundError(endpoint)
	}

	object := response.Data[0]
	switch {
	case object.EpisodeMetadata != nil:
		media := object.EpisodeMetadata.media(object.ID, object.Title)
		c.stabilizeLocale(&media, "")
		return &media, nil
	case object.MovieMetadata != nil:
		media := Media{
			ID:          object.ID,
			Type:        "movie",
			Title:       object.Title,
			SeriesID:    object.MovieMetadata.MovieListingID,
			SeriesTitle: object.MovieMetadata.MovieListingTitle,
		}
		return &media, nil
	default:
		return nil, internal.NewCrunchyError(0, fmt.Sprintf("%s is a %s, not an episode or movie", id, object.Type), internal.ErrRequest).
			WithSuggestion("Use a series url to download all episodes of a series")
	}
}

// SeriesEpisodes returns every episode of a series ordered by season and episode
func (c *Crunchyroll) SeriesEpisodes(ctx context.Context, seriesID string) ([]Media, error) {
	var seasons listResponse[seasonResponse]
	endpoint := fmt.Sprintf("%s/content/v2/cms/series/%s/seasons", c.baseURL, url.PathEscape(seriesID))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &seasons); err != nil {
		return nil, err
	}

	selected := c.selectSeasons(seasons.Data)

	var episodes []Media
	for _, season := range selected {
		var response listResponse[episodeResponse]
		endpoint := fmt.Sprintf("%s/content/v2/cms/seasons/%s/episodes", c.baseURL, url.PathEscape(season.ID))
		if err := c.request(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
			return nil, err
		}

		for _, episode := range response.Data {
			media := episode.media(episode.ID, episode.Title)
			media.SeasonNumber = season.SeasonNumber
			c.stabilizeLocale(&media, season.Title)
			episodes = append(episodes, media)
		}
	}

	return episodes, nil
}

// selectSeasons orders seasons, applies the season number fix and the audio preference
func (c *Crunchyroll) selectSeasons(seasons []seasonResponse) []seasonResponse {
	sort.SliceStable(seasons, func(i, j int) bool {
		return seasons[i].SeasonSequenceNumber < seasons[j].SeasonSequenceNumber
	})

	if c.stabilizationSeasonNumber {
		// Some series report every season (or every dub of it) as season 1
		number := 0
		for i := range seasons {
			if i == 0 || !sameSeason(seasons[i-1], seasons[i]) {
				number++
			}
			seasons[i].SeasonNumber = number
		}
	}

	if c.preferredAudioLocale == "" {
		return seasons
	}

	// One season per number: the preferred dub when there is one
	var selected []seasonResponse
	byNumber := map[int][]seasonResponse{}
	var order []int
	for _, season := range seasons {
		if _, ok := byNumber[season.SeasonNumber]; !ok {
			order = append(order, season.SeasonNumber)
		}
		byNumber[season.SeasonNumber] = append(byNumber[season.SeasonNumber], season)
	}
	for _, number := range order {
		group := byNumber[number]
		preferred := group
		for _, season := range group {
			if season.AudioLocale == c.preferredAudioLocale {
				preferred = []seasonResponse{season}
				break
			}
		}
		selected = append(selected, preferred...)
	}
	return selected
}

func sameSeason(a, b seasonResponse) bool {
	return a.SeasonSequenceNumber == b.SeasonSequenceNumber
}

// stabilizeLocale fills in the audio locale of media whose listing left it empty or wrong
func (c *Crunchyroll) stabilizeLocale(media *Media, seasonTitle string) {
	if !c.stabilizationLocales {
		return
	}

	if seasonTitle != "" {
		for _, locale := range AllLocales() {
			if strings.Contains(seasonTitle, "("+locale.Name()+" Dub)") {
				media.AudioLocale = locale
				return
			}
		}
	}

	if media.AudioLocale == "" {
		for _, version := range media.Versions {
			if version.GUID == media.ID {
				media.AudioLocale = version.AudioLocale
				return
			}
		}
		media.AudioLocale = JaJP
	}
}

// Stream describes the playable resource of one media variant
type Stream struct {
	MediaID     string
	URL         string
	Token       string
	AudioLocale Locale
	HardSubs    map[Locale]string
	Subtitles   map[Locale]Subtitle

	session *Crunchyroll
}

// Subtitle is a soft subtitle track of a stream
type Subtitle struct {
	Locale Locale `json:"language"`
	URL    string `json:"url"`
	Format string `json:"format"`
}

type streamResponse struct {
	URL         string `json:"url"`
	Token       string `json:"token"`
	AudioLocale Locale `json:"audioLocale"`
	HardSubs    map[Locale]struct {
		URL string `json:"url"`
	} `json:"hardSubs"`
	Subtitles map[Locale]Subtitle `json:"subtitles"`
}

// Stream requests the playback information of a media variant. Call Invalidate
// when the stream is no longer needed, the service limits concurrent streams.
func (c *Crunchyroll) Stream(ctx context.Context, mediaID string) (*Stream, error) {
	var response streamResponse
	endpoint := fmt.Sprintf("%s/v1/%s/web/firefox/play", c.playURL, url.PathEscape(mediaID))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &response); err != nil {
		return nil, err
	}
	if response.URL == "" {
		return nil, internal.NewCrunchyError(0, fmt.Sprintf("no stream available for %s", mediaID), internal.ErrNotFound)
	}

	stream := &Stream{
		MediaID:     mediaID,
		URL:         response.URL,
		Token:       response.Token,
		AudioLocale: response.AudioLocale,
		HardSubs:    make(map[Locale]string, len(response.HardSubs)),
		Subtitles:   response.Subtitles,
		session:     c,
	}
	for locale, hardSub := range response.HardSubs {
		stream.HardSubs[locale] = hardSub.URL
	}
	return stream, nil
}

// Invalidate releases the stream token
func (s *Stream) Invalidate(ctx context.Context) error {
	if s.Token == "" {
		return nil
	}
	endpoint := fmt.Sprintf("%s/v1/token/%s/%s", s.session.playURL, url.PathEscape(s.MediaID), url.PathEscape(s.Token))
	return s.session.request(ctx, http.MethodDelete, endpoint, nil, nil)
}
