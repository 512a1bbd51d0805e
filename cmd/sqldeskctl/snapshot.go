package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newSnapshotCmd(opts *rootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Store a snapshot of the current connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				snapshot, err := s.Snapshots.Create(cmd.Context(), reason)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s stored (%d connections)\n", snapshot.ID, snapshot.Count)
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&reason, "reason", "r", "cli", "Reason recorded with the snapshot")

	cmd.AddCommand(newSnapshotListCmd(opts))
	cmd.AddCommand(newSnapshotDumpCmd(opts))
	return cmd
}

func newSnapshotListCmd(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				snapshots, err := s.Snapshots.List(cmd.Context(), limit)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				_, _ = fmt.Fprintln(w, "ID\tCREATED\tREASON\tCONNECTIONS")
				for _, snap := range snapshots {
					_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", snap.ID, snap.CreatedAt.Format("2006-01-02 15:04:05"), snap.Reason, snap.Count)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of snapshots")
	return cmd
}

func newSnapshotDumpCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <id> <file>",
		Short: "Write a snapshot's connections to a file that import accepts",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				snapshot, err := s.Snapshots.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if err := os.WriteFile(args[1], snapshot.Payload, 0o600); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Snapshot %s written to %s\n", snapshot.ID, args[1])
				return err
			})
		},
	}
}
