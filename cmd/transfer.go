package cmd

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/downloader"
	"crunchy-cli/internal"
	"crunchy-cli/utils"
)

// mediaCommand is the part download and archive share: url handling, the
// output template and the transfer of a single media variant
type mediaCommand struct {
	cfg     *internal.Config
	urls    []string
	output  string
	yes     bool
	force   bool
	threads int

	targets   []*utils.URLInfo
	validator *utils.URLValidator
	fileOps   *utils.FileOperations
	newEngine func(client *http.Client) internal.TransferEngine
}

func newMediaCommand(cfg *internal.Config, defaultOutput string) mediaCommand {
	return mediaCommand{
		cfg:       cfg,
		output:    defaultOutput,
		validator: utils.NewURLValidator(),
		fileOps:   utils.NewFileOperations(),
		newEngine: func(client *http.Client) internal.TransferEngine {
			return downloader.NewSegmentedEngine(client)
		},
	}
}

func (m *mediaCommand) bindFlags(cmd *cobra.Command, outputUsage string) {
	cmd.Flags().StringVarP(&m.output, "output", "o", m.output, outputUsage)
	cmd.Flags().BoolVarP(&m.yes, "yes", "y", false, "Overwrite existing files without asking")
	cmd.Flags().BoolVar(&m.force, "force", false, "Transfer even if the output file already exists")
	cmd.Flags().IntVarP(&m.threads, "threads", "t", 0, "Number of parallel transfer segments (1-32) (env: CRUNCHY_CLI_THREADS)")
}

// bindArgs is called from RunE, after flag parsing
func (m *mediaCommand) bindArgs(cmd *cobra.Command, args []string) {
	m.urls = args
	if !cmd.Flags().Changed("threads") {
		m.threads = m.cfg.Threads
	}
}

func (m *mediaCommand) assumeYes() {
	m.yes = true
}

func (m *mediaCommand) checkTargets() error {
	if len(m.urls) == 0 {
		return internal.NewValidationError("url", "At least one url is required")
	}

	m.targets = m.targets[:0]
	for _, rawURL := range m.urls {
		info, err := m.validator.ParseURL(rawURL)
		if err != nil {
			return err
		}
		m.targets = append(m.targets, info)
	}

	if m.threads < 1 || m.threads > downloader.MaxThreads {
		return internal.NewValidationErrorWithValue("threads",
			fmt.Sprintf("thread count must be between 1 and %d, got %d", downloader.MaxThreads, m.threads), m.threads)
	}
	return nil
}

func (m *mediaCommand) checkOutput() error {
	if strings.TrimSpace(m.output) == "" {
		return internal.NewValidationError("output", "The output must not be empty")
	}
	if m.fileOps.IsDir(m.output) {
		return internal.NewValidationErrorWithValue("output", "The output must be a file, not a directory", m.output).
			WithSuggestion("Use a template like '{series_name}/{title}.mp4'")
	}
	return nil
}

// collect resolves every url to the episodes or movies it points to
func (m *mediaCommand) collect(ctx context.Context, cr *crunchyroll.Crunchyroll) ([]crunchyroll.Media, error) {
	var medias []crunchyroll.Media
	for _, target := range m.targets {
		switch target.Kind {
		case utils.URLWatch:
			media, err := cr.Media(ctx, target.ID)
			if err != nil {
				return nil, err
			}
			medias = append(medias, *media)
		case utils.URLSeries:
			episodes, err := cr.SeriesEpisodes(ctx, target.ID)
			if err != nil {
				return nil, err
			}
			internal.LogDebug("Series %s has %d episodes", target.ID, len(episodes))
			medias = append(medias, episodes...)
		}
	}
	return medias, nil
}

// transfer writes the variant of media with the given audio to output.
// Missing variants and existing files are skipped with a warning.
func (m *mediaCommand) transfer(ctx context.Context, ec *ExecutionContext, media *crunchyroll.Media, audio crunchyroll.Locale, output string) error {
	id, ok := media.VersionFor(audio)
	if !ok {
		internal.LogWarn("%s is not available with %s audio, skipping", media.Title, audio.Name())
		return nil
	}

	if m.fileOps.FileExists(output) && !m.yes && !m.force {
		internal.LogWarn("Skipping %s, the file already exists. Use '--yes' to overwrite it", output)
		return nil
	}

	stream, err := ec.Session().Stream(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := stream.Invalidate(ctx); err != nil {
			internal.LogDebug("Failed to invalidate stream of %s: %v", id, err)
		}
	}()

	internal.LogInfo("Downloading %s (%s) to %s", media.Title, audio.Name(), output)
	engine := m.newEngine(ec.Client())
	err = engine.Transfer(ctx, &internal.TransferSource{
		URL:      stream.URL,
		Filename: filepath.Base(output),
	}, &internal.TransferConfig{
		OutputPath: output,
		Threads:    m.threads,
		Quiet:      m.cfg.Quiet,
	})
	if err != nil {
		return err
	}

	if size, err := m.fileOps.GetFileSize(output); err == nil {
		internal.LogInfo("Downloaded %s (%d bytes)", output, size)
	}
	return nil
}

// renderOutput fills the output template. Values never introduce new path segments.
func renderOutput(template string, media *crunchyroll.Media, audio crunchyroll.Locale) string {
	return strings.NewReplacer(
		"{title}", sanitizePathSegment(media.Title),
		"{id}", media.ID,
		"{series_name}", sanitizePathSegment(media.SeriesTitle),
		"{season_number}", strconv.Itoa(media.SeasonNumber),
		"{episode_number}", strconv.Itoa(media.EpisodeNumber),
		"{audio}", string(audio),
	).Replace(template)
}

func sanitizePathSegment(value string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\':
			return '_'
		}
		return r
	}, value))
}
