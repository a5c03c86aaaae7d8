package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbassist/internal/api"
	"kbassist/internal/config"
	"kbassist/internal/credentials"
	"kbassist/internal/httpclient"
)

// Env carries everything a command needs. Commands never reach for globals.
type Env struct {
	Config    config.ClientConfig
	Logger    *zap.Logger
	Store     *credentials.Store
	Auth      *credentials.AuthContext
	API       *api.Client
	// UploadAPI shares credentials with API but allows the longer upload timeout.
	UploadAPI *api.Client
	In        io.Reader
	Out       io.Writer
	Plain     bool
	Now       func() time.Time
}

// NewEnv loads saved credentials and builds the API client for cfg.
func NewEnv(cfg config.ClientConfig, logger *zap.Logger) (*Env, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := credentials.NewStore(cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	auth, err := store.Load()
	if err != nil {
		return nil, err
	}

	client, err := newAPIClient(cfg, auth, cfg.Timeout())
	if err != nil {
		return nil, err
	}
	uploadClient, err := newAPIClient(cfg, auth, cfg.UploadTimeout())
	if err != nil {
		return nil, err
	}

	return &Env{
		Config:    cfg,
		Logger:    logger,
		Store:     store,
		Auth:      auth,
		API:       client,
		UploadAPI: uploadClient,
		In:        os.Stdin,
		Out:       os.Stdout,
		Now:       time.Now,
	}, nil
}

func newAPIClient(cfg config.ClientConfig, auth *credentials.AuthContext, timeout time.Duration) (*api.Client, error) {
	opts := []httpclient.Option{httpclient.WithAuth(cfg.AuthScheme, auth.Token)}
	if timeout > 0 {
		opts = append(opts, httpclient.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	hc, err := httpclient.New(cfg.BaseURL, opts...)
	if err != nil {
		return nil, fmt.Errorf("build api client failed: %w", err)
	}
	return api.NewClient(hc), nil
}

// NewRootCommand wires every subcommand onto env.
func NewRootCommand(env *Env) *cobra.Command {
	root := &cobra.Command{
		Use:           "kbassist",
		Short:         "Knowledge-base assistant client",
		Long:          "kbassist manages knowledge bases, uploads documents and chats with answers grounded in them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&env.Plain, "plain", env.Plain, "print answers without markdown rendering")

	root.AddCommand(
		newRegisterCommand(env),
		newLoginCommand(env),
		newLogoutCommand(env),
		newWhoamiCommand(env),
		newAccountCommand(env),
		newKBCommand(env),
		newSearchCommand(env),
		newDocsCommand(env),
		newChatCommand(env),
	)
	return root
}

// Execute runs the command tree and prints a failure as an error banner.
func Execute(ctx context.Context, env *Env, args []string) error {
	root := NewRootCommand(env)
	root.SetArgs(args)
	root.SetIn(env.In)
	root.SetOut(env.Out)
	err := root.ExecuteContext(ctx)
	if err != nil {
		env.Logger.Debug("command failed", zap.Error(err))
		fmt.Fprintln(env.Out, errorBanner(describeError(err)))
	}
	return err
}

// requireAuth fails fast when no credentials were saved.
func (e *Env) requireAuth() error {
	if err := e.Auth.Validate(); err != nil {
		return fmt.Errorf("%w (run `kbassist login` first)", err)
	}
	return nil
}

func (e *Env) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// describeError turns API failures into a line a person can act on.
func describeError(err error) string {
	if errors.Is(err, credentials.ErrNotAuthenticated) {
		return err.Error()
	}
	if se, ok := httpclient.AsStatusError(err); ok && se.Unauthorized() {
		return "session expired or token rejected, log in again"
	}
	return err.Error()
}
