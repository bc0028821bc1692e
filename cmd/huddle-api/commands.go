package main

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/huddle/internal/auth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateChatUsersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-chat-users",
		Short: "Upsert every account into the hosted chat service",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.chat.MigrateUsers(cmd.Context(), app.users)
			if err != nil {
				return err
			}
			app.logger.Info("chat migration finished",
				zap.Int("total", report.Total),
				zap.Int("migrated", report.Migrated),
				zap.Int("failed_batches", report.FailedBatches))
			fmt.Fprintf(cmd.OutOrStdout(), "migrated %d of %d users (%d failed batches)\n",
				report.Migrated, report.Total, report.FailedBatches)
			return nil
		},
	}
}

func newClearUploadsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "clear-uploads",
		Short: "Delete uploaded media that never got attached to a post",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			removed, err := app.uploads.ClearOrphans(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d orphaned uploads\n", removed)
			return nil
		},
	}
}

func newIssueSessionCommand() *cobra.Command {
	var (
		userID      string
		username    string
		displayName string
	)
	cmd := &cobra.Command{
		Use:   "issue-session",
		Short: "Mint a session cookie for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user-id is required")
			}
			app, err := newApplication()
			if err != nil {
				return err
			}
			defer app.Close()

			token, expiresAt, err := app.sessions.Issue(auth.SessionClaims{
				UserID:      userID,
				Username:    username,
				DisplayName: displayName,
			})
			if err != nil {
				return err
			}
			cookie := app.sessions.Cookie(token, expiresAt)
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s\n", cookie.Name, cookie.Value)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user-id", "", "User id carried by the session")
	cmd.Flags().StringVar(&username, "username", "", "Username carried by the session")
	cmd.Flags().StringVar(&displayName, "display-name", "", "Display name carried by the session")
	return cmd
}
