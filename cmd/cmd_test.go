package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
	"crunchy-cli/session"
	"crunchy-cli/utils"
)

// testService fakes the API, the play service and the CDN on one server
type testService struct {
	server      *httptest.Server
	sessionFile string
	content     []byte
	tokenCalls  atomic.Int32
	streams     atomic.Value
	invalidated atomic.Int32
	errorLog    bytes.Buffer
}

const episodeObject = `{"total":1,"data":[{"id":"GRDQPM1ZY","type":"episode","title":"Alone and Lonesome",
	"episode_metadata":{"series_id":"GY8VEQ95Y","series_title":"DARLING in the FRANXX","season_number":1,
	"episode_number":1,"sequence_number":1,"audio_locale":"ja-JP",
	"versions":[{"audio_locale":"ja-JP","guid":"GRDQPM1ZY","original":true},{"audio_locale":"de-DE","guid":"G14U4PZ3Q"}]}}]}`

func newTestService(t *testing.T) *testService {
	t.Helper()

	svc := &testService{
		sessionFile: filepath.Join(t.TempDir(), "crunchy-cli", "session"),
		content:     bytes.Repeat([]byte("0123456789"), 4096),
	}
	svc.streams.Store("")

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		svc.tokenCalls.Add(1)
		_ = r.ParseForm()
		refreshToken := "refresh"
		if r.PostForm.Get("grant_type") == "client_id" {
			refreshToken = ""
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access",
			"refresh_token": refreshToken,
			"expires_in":    300,
		})
	})
	mux.HandleFunc("/content/v2/discover/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"type":"series","count":1,"items":[{"id":"GY8VEQ95Y","title":"DARLING in the FRANXX"}]}]}`))
	})
	mux.HandleFunc("/content/v2/cms/objects/GRDQPM1ZY", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(episodeObject))
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		if r.Method == http.MethodDelete && len(parts) == 4 && parts[1] == "token" {
			svc.invalidated.Add(1)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if len(parts) == 5 && parts[4] == "play" {
			id := parts[1]
			svc.streams.Store(svc.streams.Load().(string) + id + ",")
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"url":         svc.server.URL + "/media/" + id + ".bin",
				"token":       "stream-token",
				"audioLocale": "de-DE",
			})
			return
		}
		http.NotFound(w, r)
	})
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "media.bin", time.Time{}, bytes.NewReader(svc.content))
	})

	svc.server = httptest.NewServer(mux)
	t.Cleanup(svc.server.Close)

	t.Setenv("TMPDIR", t.TempDir())
	for _, name := range []string{"CRUNCHY_CLI_PROXY", "CRUNCHY_CLI_USER_AGENT", "CRUNCHY_CLI_SPEED_LIMIT", "CRUNCHY_CLI_LANG", "CRUNCHY_CLI_THREADS", "CRUNCHY_CLI_TIMEOUT"} {
		t.Setenv(name, "")
	}
	return svc
}

func (svc *testService) environment(stdout *bytes.Buffer) *environment {
	return &environment{
		stdout: stdout,
		logError: func(format string, args ...interface{}) {
			fmt.Fprintf(&svc.errorLog, format+"\n", args...)
		},
		newManager: func() (*session.Manager, error) {
			manager := session.NewManagerWithSessionFile(svc.sessionFile)
			manager.UseBuilder(func() *crunchyroll.Builder {
				return crunchyroll.NewBuilder().BaseURL(svc.server.URL).PlayURL(svc.server.URL)
			})
			return manager, nil
		},
		newShutdown: utils.NewShutdownHandler,
	}
}

func (svc *testService) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout bytes.Buffer
	err := execute(append([]string{"--lang", "en-US"}, args...), internal.DefaultConfig(), svc.environment(&stdout))
	return stdout.String(), err
}

func TestSearch(t *testing.T) {
	svc := newTestService(t)

	out, err := svc.run(t, "--anonymous", "search", "darling", "in", "the", "franxx")
	require.NoError(t, err)
	require.Equal(t, "series GY8VEQ95Y DARLING in the FRANXX\n", out)
}

func TestSearch_PreCheck(t *testing.T) {
	svc := newTestService(t)

	for _, args := range [][]string{
		{"--anonymous", "search"},
		{"--anonymous", "search", "--search-top-results", "0", "franxx"},
		{"--anonymous", "search", "--search-top-results", "101", "franxx"},
	} {
		_, err := svc.run(t, args...)
		require.Error(t, err, "%v", args)
		require.Equal(t, internal.KindConfiguration, internal.KindOf(err))
	}
	require.Zero(t, svc.tokenCalls.Load(), "pre-check failures must not log in")
}

func TestLogin_SaveAndRemove(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.run(t, "--credentials", "me@example.com:secret", "login")
	require.NoError(t, err)

	content, err := os.ReadFile(svc.sessionFile)
	require.NoError(t, err)
	require.Equal(t, "refresh_token:refresh", string(content))

	// the stored login is used when no method is given
	_, err = svc.run(t, "search", "franxx")
	require.NoError(t, err)
	calls := svc.tokenCalls.Load()

	_, err = svc.run(t, "login", "--remove")
	require.NoError(t, err)
	require.NoFileExists(t, svc.sessionFile)
	require.Equal(t, calls, svc.tokenCalls.Load(), "removing the login must not touch the network")
}

func TestLogin_RemoveOffline(t *testing.T) {
	svc := newTestService(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(svc.sessionFile), 0755))
	require.NoError(t, os.WriteFile(svc.sessionFile, []byte("refresh_token:XYZ"), 0600))
	svc.server.Close()

	_, err := svc.run(t, "--credentials", "a@b.c:pw", "--anonymous", "login", "--remove")
	require.NoError(t, err)
	require.NoFileExists(t, svc.sessionFile)
}

func TestLogin_AnonymousCannotBeSaved(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.run(t, "--anonymous", "login")
	require.Equal(t, internal.KindAuthentication, internal.KindOf(err))
	require.EqualError(t, err, "Anonymous login cannot be saved")
	require.NoFileExists(t, svc.sessionFile)
}

func TestGlobalMisconfiguration(t *testing.T) {
	tests := []struct {
		name string
		args []string
		kind internal.ErrorKind
	}{
		{"multiple_methods", []string{"--credentials", "a@b.c:pw", "--anonymous", "search", "x"}, internal.KindAuthentication},
		{"no_method", []string{"search", "x"}, internal.KindAuthentication},
		{"verbose_and_quiet", []string{"-v", "-q", "--anonymous", "search", "x"}, internal.KindConfiguration},
		{"invalid_proxy", []string{"--proxy", "ftp://proxy:21", "--anonymous", "search", "x"}, internal.KindConfiguration},
		{"invalid_speed_limit", []string{"--speed-limit", "10GB", "--anonymous", "search", "x"}, internal.KindConfiguration},
		{"unsupported_lang", []string{"--lang", "ja-JP", "--anonymous", "search", "x"}, internal.KindConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			_, err := svc.run(t, tt.args...)
			require.Error(t, err)
			require.Equal(t, tt.kind, internal.KindOf(err), "unexpected kind for %v", err)
			require.Zero(t, svc.tokenCalls.Load())
		})
	}
}

func TestEnvironmentFallbackDoesNotOverrideFlags(t *testing.T) {
	svc := newTestService(t)
	t.Setenv("CRUNCHY_CLI_SPEED_LIMIT", "not-a-limit")

	// the invalid environment value is only used when the flag is missing
	_, err := svc.run(t, "--speed-limit", "10MB", "--anonymous", "search", "x")
	require.NoError(t, err)

	_, err = svc.run(t, "--anonymous", "search", "x")
	require.Equal(t, internal.KindConfiguration, internal.KindOf(err))
}

func TestDownload(t *testing.T) {
	svc := newTestService(t)
	outputDir := t.TempDir()
	template := filepath.Join(outputDir, "{series_name}", "{episode_number}-{audio}.bin")

	_, err := svc.run(t, "--anonymous", "--speed-limit", "10MB", "download", "-a", "de-DE", "-o", template,
		"https://www.crunchyroll.com/watch/GRDQPM1ZY/alone-and-lonesome")
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(outputDir, "DARLING in the FRANXX", "1-de-DE.bin"))
	require.NoError(t, err)
	require.Equal(t, svc.content, content)
	require.Equal(t, "G14U4PZ3Q,", svc.streams.Load())
	require.EqualValues(t, 1, svc.invalidated.Load(), "the stream token must be released")
}

func TestDownload_ExistingOutput(t *testing.T) {
	svc := newTestService(t)
	output := filepath.Join(t.TempDir(), "episode.bin")
	url := "https://www.crunchyroll.com/watch/GRDQPM1ZY"

	require.NoError(t, os.WriteFile(output, []byte("old"), 0644))

	_, err := svc.run(t, "--anonymous", "download", "-a", "ja-JP", "-o", output, url)
	require.NoError(t, err)
	content, _ := os.ReadFile(output)
	require.Equal(t, "old", string(content), "existing files are skipped by default")
	require.Equal(t, "", svc.streams.Load())

	_, err = svc.run(t, "-q", "--anonymous", "download", "-a", "ja-JP", "-o", output, url)
	require.NoError(t, err)
	content, _ = os.ReadFile(output)
	require.Equal(t, svc.content, content, "quiet mode answers yes")
}

func TestDownload_MissingAudioIsSkipped(t *testing.T) {
	svc := newTestService(t)
	output := filepath.Join(t.TempDir(), "episode.bin")

	_, err := svc.run(t, "--anonymous", "download", "-a", "fr-FR", "-o", output, "https://www.crunchyroll.com/watch/GRDQPM1ZY")
	require.NoError(t, err)
	require.NoFileExists(t, output)
}

func TestDownload_PreCheck(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no_url", []string{"download"}},
		{"foreign_url", []string{"download", "https://example.com/watch/GRDQPM1ZY"}},
		{"unknown_audio", []string{"download", "-a", "xx-XX", "https://www.crunchyroll.com/watch/GRDQPM1ZY"}},
		{"output_directory", []string{"download", "-o", os.TempDir(), "https://www.crunchyroll.com/watch/GRDQPM1ZY"}},
		{"threads", []string{"download", "-t", "64", "https://www.crunchyroll.com/watch/GRDQPM1ZY"}},
		{"archive_not_mkv", []string{"archive", "-o", "out.mp4", "https://www.crunchyroll.com/watch/GRDQPM1ZY"}},
		{"archive_unknown_audio", []string{"archive", "-a", "ja-JP,xx", "https://www.crunchyroll.com/watch/GRDQPM1ZY"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t)
			_, err := svc.run(t, append([]string{"--anonymous"}, tt.args...)...)
			require.Error(t, err)
			require.Equal(t, internal.KindConfiguration, internal.KindOf(err))
			require.Zero(t, svc.tokenCalls.Load())
		})
	}
}

func TestArchive(t *testing.T) {
	svc := newTestService(t)
	outputDir := t.TempDir()

	_, err := svc.run(t, "--anonymous", "archive", "-a", "ja-JP", "-a", "de-DE", "-o", filepath.Join(outputDir, "{title}.mkv"),
		"https://www.crunchyroll.com/watch/GRDQPM1ZY")
	require.NoError(t, err)

	for _, name := range []string{"Alone and Lonesome.ja-JP.mkv", "Alone and Lonesome.de-DE.mkv"} {
		content, err := os.ReadFile(filepath.Join(outputDir, name))
		require.NoError(t, err, name)
		require.Equal(t, svc.content, content)
	}
	require.Equal(t, "GRDQPM1ZY,G14U4PZ3Q,", svc.streams.Load())
}

func TestRenderOutput(t *testing.T) {
	media := &crunchyroll.Media{
		ID:            "GRDQPM1ZY",
		Title:         "Alone/Lonesome",
		SeriesTitle:   "DARLING in the FRANXX",
		SeasonNumber:  1,
		EpisodeNumber: 12,
	}

	got := renderOutput("{series_name}/S{season_number}E{episode_number} {title} [{id}].{audio}.mkv", media, crunchyroll.DeDE)
	require.Equal(t, "DARLING in the FRANXX/S1E12 Alone_Lonesome [GRDQPM1ZY].de-DE.mkv", got)
}

func TestArchive_OutputTemplate(t *testing.T) {
	archive := &archiveCommand{mediaCommand: mediaCommand{output: "{title}.mkv"}}

	archive.audioLocales = []crunchyroll.Locale{crunchyroll.JaJP}
	require.Equal(t, "{title}.mkv", archive.outputTemplate())

	archive.audioLocales = []crunchyroll.Locale{crunchyroll.JaJP, crunchyroll.DeDE}
	require.Equal(t, "{title}.{audio}.mkv", archive.outputTemplate())

	archive.output = "{audio}/{title}.mkv"
	require.Equal(t, "{audio}/{title}.mkv", archive.outputTemplate())
}

func TestUnknownCommand(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.run(t, "stream")
	require.Error(t, err)
	require.Zero(t, svc.tokenCalls.Load())
}

func TestLoginFailureIsLoggedVerbatim(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.run(t, "search", "franxx")
	require.Error(t, err)
	require.Equal(t, "Please use a login method ('--credentials' or '--anonymous')\n", svc.errorLog.String())
}

func TestExecuteFailureIsLoggedOnce(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.run(t, "-v", "--anonymous", "download", "-o", filepath.Join(t.TempDir(), "{title}.mp4"),
		"https://www.crunchyroll.com/watch/GMISSING01")
	require.Error(t, err)
	require.Equal(t, internal.KindRemote, internal.KindOf(err))

	lines := strings.Split(strings.TrimSuffix(svc.errorLog.String(), "\n"), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasPrefix(lines[0], "An error occurred: "), lines[0])
}
