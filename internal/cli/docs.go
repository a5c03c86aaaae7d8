package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"kbassist/internal/api"
	"kbassist/internal/poller"
	"kbassist/internal/upload"
)

func newDocsCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "docs",
		Aliases: []string{"documents"},
		Short:   "Manage documents inside a knowledge base",
	}
	cmd.AddCommand(
		newDocsListCommand(env),
		newDocsShowCommand(env),
		newDocsChunkCommand(env),
		newDocsDeleteCommand(env),
		newDocsUploadCommand(env),
		newDocsWatchCommand(env),
	)
	return cmd
}

func kbFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "kb", "", "knowledge base id")
	_ = cmd.MarkFlagRequired("kb")
}

func newDocsListCommand(env *Env) *cobra.Command {
	var kbID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List documents of a knowledge base",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			docs, err := env.API.ListDocuments(cmd.Context(), api.ID(kbID))
			if err != nil {
				return err
			}
			printDocuments(env.Out, docs)
			return nil
		},
	}
	kbFlag(cmd, &kbID)
	return cmd
}

func newDocsShowCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id|uid>",
		Short: "Show a document and an excerpt of its content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			doc, err := env.API.DocumentDetail(cmd.Context(), api.ID(args[0]))
			if err != nil {
				return err
			}
			fmt.Fprintln(env.Out, heading(doc.DisplayName()))
			fmt.Fprintf(env.Out, "id %s · type %s · %s · %d chunks · %s\n",
				doc.ID, doc.FileType, formatBytes(doc.FileSize), doc.ChunkCount, documentStatus(*doc))
			if doc.StatusMessage != "" {
				fmt.Fprintln(env.Out, mutedStyle.Render(doc.StatusMessage))
			}
			if content := strings.TrimSpace(doc.Content); content != "" {
				fmt.Fprintln(env.Out)
				fmt.Fprintln(env.Out, renderAnswer(content, env.Plain))
			}
			return nil
		},
	}
}

func newDocsChunkCommand(env *Env) *cobra.Command {
	var ord int
	cmd := &cobra.Command{
		Use:   "chunk <chunk-id> | chunk <document> --ord N",
		Short: "Show one stored chunk by id, or by its position in a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			var (
				chunk *api.Chunk
				err   error
			)
			if cmd.Flags().Changed("ord") {
				chunk, err = env.API.ChunkByDocument(cmd.Context(), api.ID(args[0]), ord)
			} else {
				chunk, err = env.API.ChunkDetail(cmd.Context(), api.ID(args[0]))
			}
			if err != nil {
				return err
			}
			printChunk(env, *chunk)
			return nil
		},
	}
	cmd.Flags().IntVar(&ord, "ord", 0, "0-based chunk position; treats the argument as a document id")
	return cmd
}

func printChunk(env *Env, c api.Chunk) {
	title := c.Tag
	if title == "" {
		title = "chunk " + c.ID.String()
	}
	fmt.Fprintln(env.Out, heading(title))
	meta := fmt.Sprintf("chunk %s · document %s · #%d", c.ID, c.DocumentID, c.Ord)
	if c.WordCount > 0 {
		meta += fmt.Sprintf(" · %d characters", c.WordCount)
	}
	fmt.Fprintln(env.Out, mutedStyle.Render(meta))
	if content := strings.TrimSpace(c.Content); content != "" {
		fmt.Fprintln(env.Out)
		fmt.Fprintln(env.Out, renderAnswer(content, env.Plain))
	}
}

func newDocsDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id|uid>",
		Short: "Delete a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if err := env.API.DeleteDocument(cmd.Context(), api.ID(args[0])); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "deleted document %s\n", args[0])
			return nil
		},
	}
}

func newDocsUploadCommand(env *Env) *cobra.Command {
	var (
		kbID  string
		title string
	)
	cmd := &cobra.Command{
		Use:   "upload <file>...",
		Short: "Upload files one after another",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			files := make([]upload.File, 0, len(args))
			for _, path := range args {
				f := upload.FromPath(path)
				if len(args) == 1 {
					f.Title = title
				}
				files = append(files, f)
			}

			uploader := upload.NewUploader(env.UploadAPI, env.Config.UploadTimeout(), env.Logger.Named("upload"))
			last := -1
			res := uploader.Upload(cmd.Context(), api.ID(kbID), files, func(p upload.Progress) {
				if p.Overall == last {
					return
				}
				last = p.Overall
				fmt.Fprintf(env.Out, "\r[%3d%%] %d/%d %s", p.Overall, p.FileIndex+1, p.FileCount, p.FileName)
			})
			fmt.Fprintln(env.Out)
			for _, doc := range res.Documents {
				fmt.Fprintf(env.Out, "uploaded %s (%s)\n", doc.DisplayName(), doc.ID)
			}
			if !res.OK() {
				return errors.New(res.Error)
			}
			return nil
		},
	}
	kbFlag(cmd, &kbID)
	cmd.Flags().StringVar(&title, "title", "", "document title when uploading a single file")
	return cmd
}

func newDocsWatchCommand(env *Env) *cobra.Command {
	var (
		kbID     string
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a knowledge base's document list on screen until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if interval <= 0 {
				interval = env.Config.PollInterval()
			}
			p := poller.New(env.API, interval, env.Logger.Named("poller"))
			p.OnChange(func(docs []api.Document) {
				fmt.Fprintf(env.Out, "%s\n", mutedStyle.Render(env.now().Format("15:04:05")+" documents changed"))
				printDocuments(env.Out, docs)
			})

			ctx := cmd.Context()
			if err := p.SetKB(ctx, api.ID(kbID)); err != nil {
				return err
			}
			if err := p.Start(ctx); err != nil {
				return err
			}
			defer p.Stop()
			<-ctx.Done()
			return nil
		},
	}
	kbFlag(cmd, &kbID)
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval, config value when zero")
	return cmd
}

func printDocuments(w io.Writer, docs []api.Document) {
	if len(docs) == 0 {
		fmt.Fprintln(w, "no documents")
		return
	}
	for _, d := range docs {
		fmt.Fprintf(w, "%-6s %-36s %-9s %4d chunks  %s\n", d.ID, d.DisplayName(), d.FileType, d.ChunkCount, documentStatus(d))
	}
}

func documentStatus(d api.Document) string {
	switch d.Status {
	case "ready":
		return botStyle.Render("ready")
	case "failed":
		return bannerStyle.Render("failed")
	case "":
		return mutedStyle.Render("unknown")
	default:
		return mutedStyle.Render(d.Status)
	}
}
