package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/charlesng35/sqldesk/internal/models"
	"github.com/charlesng35/sqldesk/internal/services"
)

func newListCmd(opts *rootOptions) *cobra.Command {
	var (
		dbType string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved connections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				connections := s.Registry.List()
				if dbType != "" {
					t, ok := models.ParseDatabaseType(dbType)
					if !ok {
						return fmt.Errorf("unsupported database type %q", dbType)
					}
					connections = s.Registry.ListByKind(t)
				}

				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(connections)
				}
				return printConnections(out, connections)
			})
		},
	}

	cmd.Flags().StringVarP(&dbType, "type", "t", "", "Only list connections of this database type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print connections as JSON")
	return cmd
}

func printConnections(out io.Writer, connections []models.Connection) error {
	if len(connections) == 0 {
		_, err := fmt.Fprintln(out, "No connections saved.")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tTYPE\tNAME\tHOST\tPORT\tDATABASE\tENV\tORDER")
	for _, c := range connections {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\t%d\n",
			c.ID, c.Type, c.ConnectionName, c.Host, c.Port, c.DatabaseName, c.Environment, c.Order)
	}
	return w.Flush()
}

func newAddCmd(opts *rootOptions) *cobra.Command {
	var (
		dbType string
		input  services.CreateConnectionInput
		env    string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a connection at the end of its type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := models.ParseDatabaseType(dbType)
			if !ok {
				return fmt.Errorf("unsupported database type %q", dbType)
			}
			input.Type = t
			if env != "" {
				parsed, ok := models.ParseEnvironment(env)
				if !ok {
					return fmt.Errorf("unsupported environment %q", env)
				}
				input.Environment = parsed
			}

			return withSession(cmd, opts, func(s *session) error {
				conn, err := s.Registry.Add(cmd.Context(), input)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s, order %d)\n", conn.ID, conn.Type, conn.Order)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&dbType, "type", "t", "", "Database type: PostgreSQL, MySQL or Oracle")
	cmd.Flags().StringVarP(&input.ConnectionName, "name", "n", "", "Display name")
	cmd.Flags().StringVar(&input.Host, "host", "localhost", "Server host")
	cmd.Flags().IntVarP(&input.Port, "port", "p", 0, "Server port (defaults to the type's standard port)")
	cmd.Flags().StringVarP(&input.DatabaseName, "database", "d", "", "Database or service name")
	cmd.Flags().StringVarP(&input.Username, "username", "u", "", "Login user")
	cmd.Flags().StringVar(&input.Password, "password", "", "Login password, stored in clear text")
	cmd.Flags().StringVarP(&env, "env", "e", "", "Environment: dev, qa, staging, uat or prod")
	for _, name := range []string{"type", "name", "username"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newRemoveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a connection",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				if err := s.Registry.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
				return err
			})
		},
	}
}

func newReorderCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reorder <type> [id...]",
		Short: "Set the display order of one database type",
		Long:  "Every connection of the type must be listed exactly once, in the new order.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, ok := models.ParseDatabaseType(args[0])
			if !ok {
				return fmt.Errorf("unsupported database type %q", args[0])
			}

			return withSession(cmd, opts, func(s *session) error {
				ordered, err := s.Registry.Reorder(cmd.Context(), t, args[1:])
				if err != nil {
					return err
				}
				return printConnections(cmd.OutOrStdout(), ordered)
			})
		},
	}
}

func newImportCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Append connections from an export file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}

			return withSession(cmd, opts, func(s *session) error {
				imported, err := s.Registry.Import(cmd.Context(), payload)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Imported %d connections\n", len(imported))
				return err
			})
		},
	}
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write every connection, passwords included, to a JSON file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, opts, func(s *session) error {
				data, err := s.Registry.Export(cmd.Context())
				if err != nil {
					return err
				}

				if output == "-" {
					_, err = cmd.OutOrStdout().Write(append(data, '\n'))
					return err
				}

				path := output
				if path == "" {
					path = services.ExportFilename(time.Now())
				}
				if err := os.WriteFile(path, data, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "Exported %d connections to %s\n", len(s.Registry.List()), path)
				return err
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, or - for stdout (default sql-connections-YYYY-MM-DD.json)")
	return cmd
}
