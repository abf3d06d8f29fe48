package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crunchy-cli/crunchyroll"
	"crunchy-cli/internal"
)

type archiveCommand struct {
	mediaCommand
	audios       []string
	audioLocales []crunchyroll.Locale
}

func newArchiveCmd(cfg *internal.Config, env *environment) *cobra.Command {
	archive := &archiveCommand{mediaCommand: newMediaCommand(cfg, "{title}.mkv")}

	cmd := &cobra.Command{
		Use:   "archive <url>...",
		Short: "Archive a video in multiple audio languages",
		Long: `Archive episodes, movies or whole series in every requested audio language.
Each language is stored in its own .mkv file.

Examples:
  crunchy-cli archive https://www.crunchyroll.com/series/GY8VEQ95Y
  crunchy-cli archive -a ja-JP -a de-DE -o "{series_name}/{title}.{audio}.mkv" https://www.crunchyroll.com/watch/GRDQPM1ZY`,
		RunE: func(cmd *cobra.Command, args []string) error {
			archive.bindArgs(cmd, args)
			return runCommand(cmd.Context(), cfg, env, archive)
		},
	}

	archive.bindFlags(cmd, outputTemplateHelp+". Must end with .mkv")
	cmd.Flags().StringSliceVarP(&archive.audios, "audio", "a", []string{string(crunchyroll.JaJP)}, "Audio languages. Can be used multiple times")
	return cmd
}

func (a *archiveCommand) PreCheck() error {
	if err := a.checkTargets(); err != nil {
		return err
	}

	if len(a.audios) == 0 {
		return internal.NewValidationError("audio", "At least one audio language is required")
	}
	a.audioLocales = a.audioLocales[:0]
	seen := map[crunchyroll.Locale]bool{}
	for _, audio := range a.audios {
		locale, ok := crunchyroll.ParseLocale(audio)
		if !ok {
			return internal.NewValidationErrorWithValue("audio", fmt.Sprintf("'%s' is not a valid locale", audio), audio)
		}
		if !seen[locale] {
			seen[locale] = true
			a.audioLocales = append(a.audioLocales, locale)
		}
	}

	if err := a.checkOutput(); err != nil {
		return err
	}
	if !strings.HasSuffix(a.output, ".mkv") {
		return internal.NewValidationErrorWithValue("output", "Currently only matroska / .mkv files are supported", a.output)
	}
	return nil
}

func (a *archiveCommand) Execute(ctx context.Context, ec *ExecutionContext) error {
	medias, err := a.collect(ctx, ec.Session())
	if err != nil {
		return err
	}

	template := a.outputTemplate()
	for i := range medias {
		media := &medias[i]
		for _, audio := range a.audioLocales {
			if err := a.transfer(ctx, ec, media, audio, renderOutput(template, media, audio)); err != nil {
				return err
			}
		}
	}
	return nil
}

// outputTemplate makes sure every audio variant gets its own file
func (a *archiveCommand) outputTemplate() string {
	if len(a.audioLocales) < 2 || strings.Contains(a.output, "{audio}") {
		return a.output
	}
	return strings.TrimSuffix(a.output, ".mkv") + ".{audio}.mkv"
}
