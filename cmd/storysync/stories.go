package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"novel-client/internal/models"
	"novel-client/internal/reconcile"

	"github.com/spf13/cobra"
)

func newStoriesCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stories",
		Short: "Inspect the stories of a user",
	}
	cmd.AddCommand(newStoriesListCommand(opts))
	return cmd
}

func newStoriesListCommand(opts *rootOptions) *cobra.Command {
	var (
		userID  string
		order   string
		refresh bool
		offline bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print the reconciled story list",
		Long: `Print the user's stories in canonical order. The remote service is asked first;
on a network failure the cached copy is printed instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			storyOrder, err := models.ParseStoryOrder(order)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := buildCore(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			user, err := c.resolveUser(ctx, userID)
			if err != nil {
				return err
			}
			if offline {
				c.monitor.Report(false)
			}

			stories, err := c.engine.GetStories(ctx, user, reconcile.GetOptions{ForceRefresh: refresh, Order: storyOrder})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(stories)
			}
			return printStories(cmd.OutOrStdout(), stories)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "user id (default: subject of the gateway access token)")
	cmd.Flags().StringVar(&order, "order", string(models.OrderCreatedDesc), "created_desc|created_asc|title_asc")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "ask the remote service even when offline")
	cmd.Flags().BoolVar(&offline, "offline", false, "read the local cache only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func printStories(w io.Writer, stories []models.Story) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tRATING\tCREATED")
	for _, s := range stories {
		rating := "-"
		if s.Rating != nil {
			rating = fmt.Sprint(*s.Rating)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.ID, s.Title, rating, s.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func newCacheCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the local story cache",
	}

	var userID string
	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove the cached stories of a user (sign-out)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := buildCore(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer c.Close()

			user, err := c.resolveUser(ctx, userID)
			if err != nil {
				return err
			}
			if err := c.engine.ClearUser(ctx, user); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cache cleared for user %s\n", user)
			return nil
		},
	}
	clearCmd.Flags().StringVar(&userID, "user", "", "user id (default: subject of the gateway access token)")
	cmd.AddCommand(clearCmd)
	return cmd
}
