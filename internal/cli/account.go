package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"kbassist/internal/api"
)

func newAccountCommand(env *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Change or delete the signed-in account",
	}
	cmd.AddCommand(
		newAccountUpdateCommand(env),
		newAccountPasswordCommand(env),
		newAccountDeleteCommand(env),
	)
	return cmd
}

func newAccountUpdateCommand(env *Env) *cobra.Command {
	var username, email string
	var clearEmail bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change username or email",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			var req api.UpdateAccountRequest
			if cmd.Flags().Changed("username") {
				req.Username = &username
			}
			if cmd.Flags().Changed("email") {
				req.Email = &email
			}
			if clearEmail {
				empty := ""
				req.Email = &empty
			}
			if req.Username == nil && req.Email == nil {
				return errors.New("nothing to update: pass --username, --email or --clear-email")
			}
			acct, err := env.API.UpdateAccount(cmd.Context(), req)
			if err != nil {
				return err
			}
			if acct.Username != "" && acct.Username != env.Auth.Username() {
				env.Auth.Set(env.Auth.Token(), env.Auth.UserID(), acct.Username)
				if err := env.Store.Save(env.Auth); err != nil {
					return err
				}
			}
			fmt.Fprintf(env.Out, "updated account %s\n", acct.Username)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "new username (at least 3 characters)")
	cmd.Flags().StringVar(&email, "email", "", "new email address")
	cmd.Flags().BoolVar(&clearEmail, "clear-email", false, "remove the email address")
	cmd.MarkFlagsMutuallyExclusive("email", "clear-email")
	return cmd
}

func newAccountPasswordCommand(env *Env) *cobra.Command {
	var req api.ChangePasswordRequest
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the password and save the new token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if err := promptFields(env, field{"current password", &req.OldPassword}, field{"new password", &req.NewPassword}); err != nil {
				return err
			}
			res, err := env.API.ChangePassword(cmd.Context(), req)
			if err != nil {
				return err
			}
			userID := res.UserID
			if userID.IsZero() {
				userID = env.Auth.UserID()
			}
			env.Auth.Set(res.Token, userID, env.Auth.Username())
			if err := env.Store.Save(env.Auth); err != nil {
				return err
			}
			env.Logger.Info("password changed", zap.String("user_id", userID.String()))
			fmt.Fprintln(env.Out, "password updated")
			return nil
		},
	}
	cmd.Flags().StringVar(&req.OldPassword, "old", "", "current password")
	cmd.Flags().StringVar(&req.NewPassword, "new", "", "new password (at least 8 characters)")
	return cmd
}

func newAccountDeleteCommand(env *Env) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the account with its knowledge bases and sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := env.requireAuth(); err != nil {
				return err
			}
			if !yes {
				return errors.New("account deletion cannot be undone: rerun with --yes")
			}
			if err := env.API.DeleteAccount(cmd.Context()); err != nil {
				return err
			}
			username := env.Auth.Username()
			env.Auth.Clear()
			if err := env.Store.Clear(); err != nil {
				return err
			}
			fmt.Fprintf(env.Out, "deleted account %s\n", username)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deletion")
	return cmd
}
