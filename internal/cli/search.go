package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbassist/internal/api"
)

func newSearchCommand(env *Env) *cobra.Command {
	var kbIDs string
	var full bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find chunks whose heading tag matches a query",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return fmt.Errorf("query is empty")
			}
			res, err := env.API.TagSearch(cmd.Context(), api.TagSearchRequest{Query: query, KBIDs: api.ParseIDs(kbIDs)})
			if err != nil {
				return err
			}
			if len(res.MatchedTags) > 0 {
				fmt.Fprintf(env.Out, "%s %s\n", heading("tags"), strings.Join(res.MatchedTags, ", "))
			}
			for _, c := range res.Chunks {
				if full {
					printChunk(env, c)
					fmt.Fprintln(env.Out)
					continue
				}
				fmt.Fprintf(env.Out, "%s  %s  %s\n",
					mutedStyle.Render(fmt.Sprintf("%s/%d", c.DocumentID, c.Ord)), citeStyle.Render(c.Tag), oneLine(c.Content, 80))
			}
			if res.Message != "" {
				fmt.Fprintln(env.Out, mutedStyle.Render(res.Message))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kbIDs, "kb", "", "comma-separated knowledge base ids (default: all)")
	cmd.Flags().BoolVar(&full, "full", false, "print whole chunks")
	return cmd
}
