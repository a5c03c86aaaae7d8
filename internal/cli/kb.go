package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbassist/internal/api"
)

func newKBCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "kb",
		Aliases: []string{"knowledge"},
		Short:   "Manage knowledge bases",
	}
	cmd.AddCommand(newKBListCommand(env), newKBCreateCommand(env), newKBDeleteCommand(env))
	return cmd
}

func newKBListCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your knowledge bases",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			kbs, err := env.API.ListKnowledgeBases(cmd.Context(), env.Auth.UserID())
			if err != nil {
				return err
			}
			if len(kbs) == 0 {
				fmt.Fprintln(env.Out, "no knowledge bases yet, create one with `kbassist kb create`")
				return nil
			}
			fmt.Fprintln(env.Out, heading("Knowledge bases"))
			for _, kb := range kbs {
				fmt.Fprintf(env.Out, "%-6s %-28s %4d docs  %10s  %s\n",
					kb.ID, kb.Name, kb.DocumentCount, formatBytes(kb.StorageSize), mutedStyle.Render(kb.Description))
			}
			return nil
		},
	}
}

func newKBCreateCommand(env *Env) *cobra.Command {
	var req api.CreateKnowledgeBaseRequest
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a knowledge base",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			req.Name = strings.TrimSpace(args[0])
			kb, err := env.API.CreateKnowledgeBase(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "created knowledge base %s (%s)\n", kb.Name, kb.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&req.Description, "description", "d", "", "description")
	cmd.Flags().StringVar(&req.EmbedModel, "embed-model", "", "embedding model, server default when empty")
	return cmd
}

func newKBDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a knowledge base with its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if err := env.API.DeleteKnowledgeBase(cmd.Context(), api.ID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "deleted knowledge base %s\n", args[0])
			return nil
		},
	}
}

// resolveKnowledgeBases picks the knowledge bases named by ids, or all of the
// user's when ids is empty.
func (e *Env) resolveKnowledgeBases(ctx context.Context, ids []api.ID) ([]api.KnowledgeBase, error) {
	all, err := e.API.ListKnowledgeBases(ctx, e.Auth.UserID())
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[api.ID]api.KnowledgeBase, len(all))
	for _, kb := range all {
		byID[kb.ID] = kb
	}
	out := make([]api.KnowledgeBase, 0, len(ids))
	for _, id := range ids {
		kb, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("knowledge base %s not found", id)
		}
		out = append(out, kb)
	}
	return out, nil
}
