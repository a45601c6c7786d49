package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"stockdb/internal/store"
)

func newBlacklistCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blacklist",
		Short: "Inspect or clear the persistent ticker blacklist",
	}

	open := func() (*store.Blacklist, error) {
		if a.cfg.Database.BlacklistFile == "" {
			return nil, errors.New("no blacklist file configured (database.blacklist_file)")
		}
		return store.OpenBlacklist(a.cfg.Database.BlacklistFile)
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "Print every blacklisted ticker",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				bl, err := open()
				if err != nil {
					return err
				}
				defer bl.Close()
				for _, t := range bl.List() {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "check TICKER...",
			Short: "Report whether tickers are blacklisted",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				bl, err := open()
				if err != nil {
					return err
				}
				defer bl.Close()
				for _, t := range args {
					state := "ok"
					if bl.Contains(t) {
						state = "blacklisted"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", strings.ToUpper(t), state)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Remove every ticker from the blacklist",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				bl, err := open()
				if err != nil {
					return err
				}
				defer bl.Close()
				n := len(bl.List())
				if err := bl.Reset(); err != nil {
					return err
				}
				a.log.Info("blacklist reset", "path", a.cfg.Database.BlacklistFile, "removed", n)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d tickers from the blacklist\n", n)
				return nil
			},
		},
	)
	return cmd
}
