package crunchyroll

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"crunchy-cli/internal"
)

func serveJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestCrunchyroll_Media_Episode(t *testing.T) {
	api := newFakeAPI(t)
	var gotLocale string
	api.routes["/content/v2/cms/objects/GRDQPM1ZY"] = func(w http.ResponseWriter, r *http.Request) {
		gotLocale = r.URL.Query().Get("locale")
		serveJSON(`{"total":1,"data":[{"id":"GRDQPM1ZY","type":"episode","title":"Alone and Lonesome",
			"episode_metadata":{"series_id":"GY8VEQ95Y","series_title":"DARLING in the FRANXX","season_number":1,
			"episode_number":1,"sequence_number":1,"audio_locale":"ja-JP",
			"versions":[{"audio_locale":"ja-JP","guid":"GRDQPM1ZY","original":true},{"audio_locale":"de-DE","guid":"G14U4PZ3Q"}]}}]}`)(w, r)
	}

	cr, err := api.builder().Locale(DeDE).LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	media, err := cr.Media(context.Background(), "GRDQPM1ZY")
	if err != nil {
		t.Fatalf("Media() error: %v", err)
	}

	if gotLocale != "de-DE" {
		t.Errorf("locale query = %q, want de-DE", gotLocale)
	}
	if media.Type != "episode" || media.SeriesTitle != "DARLING in the FRANXX" || media.EpisodeNumber != 1 {
		t.Errorf("unexpected media: %+v", media)
	}
	if id, ok := media.VersionFor(DeDE); !ok || id != "G14U4PZ3Q" {
		t.Errorf("VersionFor(de-DE) = %q, %t", id, ok)
	}
	if id, ok := media.VersionFor(JaJP); !ok || id != "GRDQPM1ZY" {
		t.Errorf("VersionFor(ja-JP) = %q, %t", id, ok)
	}
	if _, ok := media.VersionFor(FrFR); ok {
		t.Error("VersionFor(fr-FR) should not exist")
	}
	if got := media.AudioLocales(); len(got) != 2 {
		t.Errorf("AudioLocales() = %v", got)
	}
}

func TestCrunchyroll_Media_Movie(t *testing.T) {
	api := newFakeAPI(t)
	api.routes["/content/v2/cms/objects/G25FVD45Q"] = serveJSON(`{"data":[{"id":"G25FVD45Q","type":"movie","title":"Movie",
		"movie_metadata":{"movie_listing_id":"GY1XNQ9","movie_listing_title":"Listing"}}]}`)

	cr, err := api.builder().LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	media, err := cr.Media(context.Background(), "G25FVD45Q")
	if err != nil {
		t.Fatalf("Media() error: %v", err)
	}
	if media.Type != "movie" || media.SeriesTitle != "Listing" {
		t.Errorf("unexpected media: %+v", media)
	}
}

func TestCrunchyroll_Media_NotFound(t *testing.T) {
	api := newFakeAPI(t)
	api.routes["/content/v2/cms/objects/MISSING"] = serveJSON(`{"total":0,"data":[]}`)

	cr, err := api.builder().LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	_, err = cr.Media(context.Background(), "MISSING")
	if internal.KindOf(err) != internal.KindRemote {
		t.Fatalf("expected remote error, got %v", err)
	}
}

func seriesAPI(t *testing.T) *fakeAPI {
	api := newFakeAPI(t)
	api.routes["/content/v2/cms/series/GY8VEQ95Y/seasons"] = serveJSON(`{"data":[
		{"id":"S2","title":"Season 2","season_number":1,"season_sequence_number":2,"audio_locale":"ja-JP"},
		{"id":"S1","title":"Season 1","season_number":1,"season_sequence_number":1,"audio_locale":"ja-JP"},
		{"id":"S1DE","title":"Season 1 (German Dub)","season_number":1,"season_sequence_number":1,"audio_locale":"ja-JP"}]}`)
	api.routes["/content/v2/cms/seasons/S1/episodes"] = serveJSON(`{"data":[
		{"id":"E1","title":"One","series_title":"Series","season_number":1,"episode_number":1,"audio_locale":"ja-JP"},
		{"id":"E2","title":"Two","series_title":"Series","season_number":1,"episode_number":2,"audio_locale":"ja-JP"}]}`)
	api.routes["/content/v2/cms/seasons/S1DE/episodes"] = serveJSON(`{"data":[
		{"id":"D1","title":"One","series_title":"Series","season_number":1,"episode_number":1,"audio_locale":"ja-JP"}]}`)
	api.routes["/content/v2/cms/seasons/S2/episodes"] = serveJSON(`{"data":[
		{"id":"E3","title":"Three","series_title":"Series","season_number":1,"episode_number":1}]}`)
	return api
}

func TestCrunchyroll_SeriesEpisodes(t *testing.T) {
	api := seriesAPI(t)

	cr, err := api.builder().LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	episodes, err := cr.SeriesEpisodes(context.Background(), "GY8VEQ95Y")
	if err != nil {
		t.Fatalf("SeriesEpisodes() error: %v", err)
	}

	var ids []string
	for _, episode := range episodes {
		ids = append(ids, episode.ID)
	}
	if got := strings.Join(ids, ","); got != "E1,E2,D1,E3" {
		t.Errorf("episode order = %s, want E1,E2,D1,E3", got)
	}
	if episodes[3].SeasonNumber != 1 {
		t.Error("season numbers must be untouched without the stabilization flag")
	}
	if episodes[2].AudioLocale != JaJP {
		t.Error("audio locales must be untouched without the stabilization flag")
	}
}

func TestCrunchyroll_SeriesEpisodes_Stabilization(t *testing.T) {
	api := seriesAPI(t)

	cr, err := api.builder().
		StabilizationLocales(true).
		StabilizationSeasonNumber(true).
		LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	episodes, err := cr.SeriesEpisodes(context.Background(), "GY8VEQ95Y")
	if err != nil {
		t.Fatalf("SeriesEpisodes() error: %v", err)
	}

	byID := map[string]Media{}
	for _, episode := range episodes {
		byID[episode.ID] = episode
	}
	if byID["E3"].SeasonNumber != 2 {
		t.Errorf("second season should be renumbered to 2, got %d", byID["E3"].SeasonNumber)
	}
	if byID["D1"].SeasonNumber != 1 {
		t.Errorf("a dub shares the number of its season, got %d", byID["D1"].SeasonNumber)
	}
	if byID["D1"].AudioLocale != DeDE {
		t.Errorf("dub locale should be taken from the season title, got %s", byID["D1"].AudioLocale)
	}
	if byID["E3"].AudioLocale != JaJP {
		t.Errorf("missing audio locale should default to ja-JP, got %s", byID["E3"].AudioLocale)
	}
}

func TestCrunchyroll_SeriesEpisodes_PreferredAudio(t *testing.T) {
	api := seriesAPI(t)
	api.routes["/content/v2/cms/series/GY8VEQ95Y/seasons"] = serveJSON(`{"data":[
		{"id":"S1","title":"Season 1","season_number":1,"season_sequence_number":1,"audio_locale":"ja-JP"},
		{"id":"S1DE","title":"Season 1 (German Dub)","season_number":1,"season_sequence_number":1,"audio_locale":"de-DE"},
		{"id":"S2","title":"Season 2","season_number":2,"season_sequence_number":2,"audio_locale":"ja-JP"}]}`)

	cr, err := api.builder().PreferredAudioLocale(DeDE).LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	episodes, err := cr.SeriesEpisodes(context.Background(), "GY8VEQ95Y")
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	for _, episode := range episodes {
		ids = append(ids, episode.ID)
	}
	if got := strings.Join(ids, ","); got != "D1,E3" {
		t.Errorf("episodes = %s, want the German season 1 and the only season 2", got)
	}
}

func TestCrunchyroll_Stream(t *testing.T) {
	api := newFakeAPI(t)
	api.routes["/v1/GRDQPM1ZY/web/firefox/play"] = serveJSON(`{"url":"https://cdn.example/manifest.mpd","token":"tok-1",
		"audioLocale":"ja-JP","hardSubs":{"de-DE":{"url":"https://cdn.example/de.mpd"}},
		"subtitles":{"en-US":{"language":"en-US","url":"https://cdn.example/en.ass","format":"ass"}}}`)

	var invalidated bool
	api.routes["/v1/token/GRDQPM1ZY/tok-1"] = func(w http.ResponseWriter, r *http.Request) {
		invalidated = r.Method == http.MethodDelete
		w.WriteHeader(http.StatusNoContent)
	}

	cr, err := api.builder().LoginAnonymously(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	stream, err := cr.Stream(context.Background(), "GRDQPM1ZY")
	if err != nil {
		t.Fatalf("Stream() error: %v", err)
	}
	if stream.URL != "https://cdn.example/manifest.mpd" || stream.AudioLocale != JaJP {
		t.Errorf("unexpected stream: %+v", stream)
	}
	if stream.HardSubs[DeDE] != "https://cdn.example/de.mpd" {
		t.Errorf("HardSubs = %v", stream.HardSubs)
	}
	if stream.Subtitles[EnUS].Format != "ass" {
		t.Errorf("Subtitles = %v", stream.Subtitles)
	}

	if err := stream.Invalidate(context.Background()); err != nil {
		t.Fatalf("Invalidate() error: %v", err)
	}
	if !invalidated {
		t.Error("stream token was not released")
	}
}
