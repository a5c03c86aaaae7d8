package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"kbassist/internal/api"
	"kbassist/internal/chat"
)

func newChatCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with your knowledge bases",
	}
	cmd.AddCommand(
		newChatSessionsCommand(env),
		newChatShowCommand(env),
		newChatDeleteCommand(env),
		newChatRenameCommand(env),
		newChatEndCommand(env),
		newChatAskCommand(env),
		newChatStartCommand(env),
	)
	return cmd
}

func (e *Env) coordinator() (*chat.Coordinator, error) {
	if err := e.requireAuth(); err != nil {
		return nil, err
	}
	return chat.NewCoordinator(e.API, e.Auth, e.Logger.Named("chat"))
}

// stateErr surfaces the coordinator's error slot as a command error.
func stateErr(c *chat.Coordinator) error {
	if err := c.Snapshot().Err; err != nil {
		return err
	}
	return nil
}

func newChatSessionsCommand(env *Env) *cobra.Command {
	var (
		search string
		limit  int
	)
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"history"},
		Short:   "List chat sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			coord.LoadSessions(cmd.Context())
			if err := stateErr(coord); err != nil {
				return err
			}
			sessions := chat.RecentSessions(chat.FilterByTitle(coord.Snapshot().Sessions, search), limit)
			if len(sessions) == 0 {
				fmt.Fprintln(env.Out, "no sessions")
				return nil
			}
			for _, s := range sessions {
				fmt.Fprintf(env.Out, "%-6s %-32s %3d msgs  %s\n", s.SessionID, s.Title, s.ChatCount, env.sessionAge(s))
				if s.LastMessage != "" {
					fmt.Fprintf(env.Out, "       %s\n", mutedStyle.Render(oneLine(s.LastMessage, 80)))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&search, "search", "s", "", "only sessions whose title contains this text")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum sessions to show, 0 for all")
	return cmd
}

func (e *Env) sessionAge(s api.Session) string {
	ts := s.UpdateAt
	if ts == "" {
		ts = s.CreateAt
	}
	t, ok := api.ParseTime(ts)
	if !ok {
		return ""
	}
	return mutedStyle.Render(chat.FormatRelative(t, e.now()))
}

func newChatShowCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id>",
		Short: "Print a session's conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			coord.SelectSession(cmd.Context(), api.ID(args[0]))
			if err := stateErr(coord); err != nil {
				return err
			}
			printConversation(env, coord.Snapshot())
			return nil
		},
	}
}

func newChatDeleteCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			if !coord.DeleteSession(cmd.Context(), api.ID(args[0])) {
				return stateErr(coord)
			}
			fmt.Fprintf(env.Out, "deleted session %s\n", args[0])
			return nil
		},
	}
}

func newChatRenameCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <session-id> <title>",
		Short: "Rename a session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			title := strings.Join(args[1:], " ")
			if !coord.RenameSession(cmd.Context(), api.ID(args[0]), title) {
				return stateErr(coord)
			}
			fmt.Fprintf(env.Out, "renamed session %s to %s\n", args[0], strings.TrimSpace(title))
			return nil
		},
	}
}

func newChatEndCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "end <session-id>",
		Short: "Mark a session inactive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if _, err := env.API.EndSession(cmd.Context(), api.ID(args[0]), env.Auth.UserID()); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "ended session %s\n", args[0])
			return nil
		},
	}
}

func newChatAskCommand(env *Env) *cobra.Command {
	var (
		sessionID string
		kbIDs     string
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer with its sources",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if err := env.openSession(ctx, coord, chat.NewSelector(coord), api.ID(sessionID), api.ParseIDs(kbIDs)); err != nil {
				return err
			}
			if !coord.SendMessage(ctx, strings.Join(args, " ")) {
				return stateErr(coord)
			}
			printLastAnswer(env, coord.Snapshot())
			return nil
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "continue this session instead of opening a new one")
	cmd.Flags().StringVar(&kbIDs, "kb", "", "comma separated knowledge base ids, all of yours when empty")
	return cmd
}

func newChatStartCommand(env *Env) *cobra.Command {
	var (
		sessionID string
		kbIDs     string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start an interactive conversation",
		Long: `Start an interactive conversation. Type a question and press enter.

Commands:
  /sessions      list sessions
  /use <id>      switch to a session
  /kb <ids>      change the knowledge bases of the conversation
  /new           open a new session on the current knowledge bases
  /quit          leave`,
		RunE: func(cmd *cobra.Command, args []string) error {
			coord, err := env.coordinator()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			selector := chat.NewSelector(coord)
			if err := env.openSession(ctx, coord, selector, api.ID(sessionID), api.ParseIDs(kbIDs)); err != nil {
				return err
			}
			printConversation(env, coord.Snapshot())
			return env.repl(ctx, coord, selector)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume this session")
	cmd.Flags().StringVar(&kbIDs, "kb", "", "comma separated knowledge base ids, all of yours when empty")
	return cmd
}

// openSession resumes sessionID, or opens a new session over the requested
// knowledge bases through the selector.
func (e *Env) openSession(ctx context.Context, coord *chat.Coordinator, selector *chat.Selector, sessionID api.ID, kbIDs []api.ID) error {
	if !sessionID.IsZero() {
		coord.SelectSession(ctx, sessionID)
		if err := stateErr(coord); err != nil {
			return err
		}
		if len(kbIDs) == 0 {
			return nil
		}
	}
	kbs, err := e.resolveKnowledgeBases(ctx, kbIDs)
	if err != nil {
		return err
	}
	if !selector.Confirm(ctx, kbs, "") {
		return stateErr(coord)
	}
	return nil
}

func (e *Env) repl(ctx context.Context, coord *chat.Coordinator, selector *chat.Selector) error {
	scanner := bufio.NewScanner(e.In)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(e.Out, userStyle.Render("› "))
		if !scanner.Scan() {
			fmt.Fprintln(e.Out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := e.replCommand(ctx, coord, selector, line); quit {
				return nil
			}
		} else if coord.SendMessage(ctx, line) {
			printLastAnswer(e, coord.Snapshot())
		}
		if err := coord.Snapshot().Err; err != nil {
			fmt.Fprintln(e.Out, errorBanner(err.Error()))
			coord.ClearError()
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func (e *Env) replCommand(ctx context.Context, coord *chat.Coordinator, selector *chat.Selector, line string) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/sessions":
		coord.LoadSessions(ctx)
		for _, s := range chat.RecentSessions(coord.Snapshot().Sessions, 10) {
			fmt.Fprintf(e.Out, "%-6s %s %s\n", s.SessionID, s.Title, e.sessionAge(s))
		}
	case "/use":
		if len(fields) < 2 {
			fmt.Fprintln(e.Out, "usage: /use <session-id>")
			return false
		}
		coord.SelectSession(ctx, api.ID(fields[1]))
		if coord.Snapshot().Err == nil {
			printConversation(e, coord.Snapshot())
		}
	case "/kb":
		if len(fields) < 2 {
			fmt.Fprintf(e.Out, "knowledge bases: %s\n", strings.Join(selector.Names(), ", "))
			return false
		}
		kbs, err := e.resolveKnowledgeBases(ctx, api.ParseIDs(fields[1]))
		if err != nil {
			fmt.Fprintln(e.Out, errorBanner(describeError(err)))
			return false
		}
		if selector.Confirm(ctx, kbs, "") {
			fmt.Fprintf(e.Out, "knowledge bases: %s\n", strings.Join(selector.Names(), ", "))
		}
	case "/new":
		kbs := selector.Selected()
		title := ""
		if len(kbs) > 0 {
			title = chat.SessionTitle(kbs[0].Name)
		}
		if s := coord.CreateSessionWithKB(ctx, kbs, title); s != nil {
			fmt.Fprintln(e.Out, renderSessionHeader(*s, coord.Snapshot().CurrentKBIDs))
		}
	default:
		fmt.Fprintf(e.Out, "unknown command %s\n", fields[0])
	}
	return false
}

func printConversation(e *Env, st chat.State) {
	if st.Current == nil {
		return
	}
	fmt.Fprintln(e.Out, renderSessionHeader(*st.Current, st.CurrentKBIDs))
	for _, m := range chat.Ordered(st.Messages) {
		renderMessage(e.Out, m, e.Plain)
	}
}

func printLastAnswer(e *Env, st chat.State) {
	for i := len(st.Messages) - 1; i >= 0; i-- {
		if st.Messages[i].Role == chat.RoleAssistant {
			renderMessage(e.Out, st.Messages[i], e.Plain)
			return
		}
	}
}
