package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
	"crunchy-cli/session"
)

const outputTemplateHelp = `Name of the output file. Available keys: {title}, {id}, {series_name}, {season_number}, {episode_number}, {audio}`

type downloadCommand struct {
	mediaCommand
	audio       string
	audioLocale crunchyroll.Locale
}

func newDownloadCmd(cfg *internal.Config, env *environment) *cobra.Command {
	download := &downloadCommand{mediaCommand: newMediaCommand(cfg, "{title}.mp4")}

	cmd := &cobra.Command{
		Use:   "download <url>...",
		Short: "Download a video in a specific audio language",
		Long: `Download single episodes, movies or whole series in one audio language.

Examples:
  crunchy-cli download https://www.crunchyroll.com/watch/GRDQPM1ZY
  crunchy-cli download -a de-DE -o "{series_name}/{season_number}x{episode_number}.mp4" https://www.crunchyroll.com/series/GY8VEQ95Y`,
		RunE: func(cmd *cobra.Command, args []string) error {
			download.bindArgs(cmd, args)
			return runCommand(cmd.Context(), cfg, env, download)
		},
	}

	download.bindFlags(cmd, outputTemplateHelp)
	cmd.Flags().StringVarP(&download.audio, "audio", "a", "", "Audio language. Defaults to the language the session uses")
	return cmd
}

func (d *downloadCommand) PreCheck() error {
	if err := d.checkTargets(); err != nil {
		return err
	}

	if d.audio != "" {
		locale, ok := crunchyroll.ParseLocale(d.audio)
		if !ok {
			return internal.NewValidationErrorWithValue("audio", fmt.Sprintf("'%s' is not a valid locale", d.audio), d.audio)
		}
		d.audioLocale = locale
	}

	return d.checkOutput()
}

func (d *downloadCommand) configureSession(opts *session.Options) {
	if d.audioLocale != "" {
		opts.PreferredAudioLocale = d.audioLocale
	}
}

func (d *downloadCommand) Execute(ctx context.Context, ec *ExecutionContext) error {
	audio := d.audioLocale
	if audio == "" {
		audio = ec.Session().Locale()
	}

	medias, err := d.collect(ctx, ec.Session())
	if err != nil {
		return err
	}

	for i := range medias {
		media := &medias[i]
		if err := d.transfer(ctx, ec, media, audio, renderOutput(d.output, media, audio)); err != nil {
			return err
		}
	}
	return nil
}
