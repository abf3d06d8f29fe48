package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"crunchy-cli/internal"
)

type searchCommand struct {
	env   *environment
	query string
	limit int
}

func newSearchCmd(cfg *internal.Config, env *environment) *cobra.Command {
	search := &searchCommand{env: env}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search in videos",
		Long: `Search the Crunchyroll catalog. Every hit is printed as "<type> <id> <title>",
the id can be used in a series or watch url.

Examples:
  crunchy-cli --anonymous search "darling in the franxx"
  crunchy-cli search --search-top-results 20 franxx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			search.query = strings.TrimSpace(strings.Join(args, " "))
			return runCommand(cmd.Context(), cfg, env, search)
		},
	}

	cmd.Flags().IntVar(&search.limit, "search-top-results", 5, "Limit of search top search results (1-100)")
	return cmd
}

func (s *searchCommand) PreCheck() error {
	if s.query == "" {
		return internal.NewValidationError("query", "A search query is required")
	}
	if s.limit < 1 || s.limit > 100 {
		return internal.NewValidationErrorWithValue("search-top-results",
			fmt.Sprintf("'--search-top-results' must be between 1 and 100, got %d", s.limit), s.limit)
	}
	return nil
}

func (s *searchCommand) Execute(ctx context.Context, ec *ExecutionContext) error {
	results, err := ec.Session().Search(ctx, s.query, s.limit)
	if err != nil {
		return err
	}

	if len(results) == 0 {
		internal.LogInfo("No results found for '%s'", s.query)
		return nil
	}
	for _, result := range results {
		fmt.Fprintf(s.env.stdout, "%s %s %s\n", result.Type, result.ID, result.Title)
	}
	return nil
}
