package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbassist/internal/api"
)

func newRegisterCommand(env *Env) *cobra.Command {
	var req api.RegisterRequest
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptMissing(env, &req.Username, &req.Password); err != nil {
				return err
			}
			res, err := env.API.Register(cmd.Context(), req)
			if err != nil {
				return err
			}
			return env.signIn(res, req.Username)
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "username (at least 3 characters)")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password (at least 8 characters)")
	cmd.Flags().StringVar(&req.Email, "email", "", "email address")
	return cmd
}

func newLoginCommand(env *Env) *cobra.Command {
	var req api.LoginRequest
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and save the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := promptMissing(env, &req.Username, &req.Password); err != nil {
				return err
			}
			res, err := env.API.Login(cmd.Context(), req)
			if err != nil {
				return err
			}
			return env.signIn(res, req.Username)
		},
	}
	cmd.Flags().StringVarP(&req.Username, "username", "u", "", "username")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "password")
	return cmd
}

func newLogoutCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			env.Auth.Clear()
			if err := env.Store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(env.Out, "logged out")
			return nil
		},
	}
}

func newWhoamiCommand(env *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			acct, err := env.API.AccountDetail(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "%s %s\n", heading(acct.Username), mutedStyle.Render("(user "+acct.ID.String()+")"))
			if acct.Email != "" {
				fmt.Fprintln(env.Out, acct.Email)
			}
			return nil
		},
	}
}

func (e *Env) signIn(res *api.AuthResult, username string) error {
	if res.Username != "" {
		username = res.Username
	}
	e.Auth.Set(res.Token, res.UserID, username)
	if err := e.Store.Save(e.Auth); err != nil {
		return err
	}
	e.Logger.Info("signed in", zap.String("user_id", res.UserID.String()))
	fmt.Fprintf(e.Out, "signed in as %s (user %s)\n", username, res.UserID)
	return nil
}

type field struct {
	label string
	dst   *string
}

// promptMissing reads empty fields from env.In, one line each.
func promptMissing(env *Env, username, password *string) error {
	return promptFields(env, field{"username", username}, field{"password", password})
}

func promptFields(env *Env, fields ...field) error {
	reader := bufio.NewReader(env.In)
	for _, f := range fields {
		if strings.TrimSpace(*f.dst) != "" {
			continue
		}
		fmt.Fprintf(env.Out, "%s: ", f.label)
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return fmt.Errorf("read %s: %w", f.label, err)
		}
		*f.dst = strings.TrimSpace(line)
	}
	return nil
}
