package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/JoshuaRamirez/ACS-sub004/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the dead-letter database schema",
	}
	cmd.AddCommand(newMigrateUpCmd())
	cmd.AddCommand(newMigrateStatusCmd())
	return cmd
}

func openPools(cmd *cobra.Command) (*db.Pools, error) {
	path, err := getDBPath(cmd)
	if err != nil {
		return nil, err
	}
	pools, err := db.OpenPools(cmd.Context(), path, 1)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return pools, nil
}

func newMigrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pools, err := openPools(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = pools.Close() }()

			if err := db.RunMigrations(cmd.Context(), pools.Write); err != nil {
				return err
			}
			v, err := db.SchemaVersion(cmd.Context(), pools.Write)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]int64{"version": v})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", v)
			return nil
		},
	}
}

func newMigrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			pools, err := openPools(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = pools.Close() }()

			statuses, err := db.Status(cmd.Context(), pools.Write)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				type row struct {
					Version int64  `json:"version"`
					Source  string `json:"source"`
					Applied bool   `json:"applied"`
				}
				rows := make([]row, len(statuses))
				for i, s := range statuses {
					rows[i] = row{Version: s.Version, Source: s.Source, Applied: s.Applied}
				}
				return PrintJSON(cmd.OutOrStdout(), rows)
			}
			rows := make([][]string, len(statuses))
			for i, s := range statuses {
				rows[i] = []string{strconv.FormatInt(s.Version, 10), s.Source, strconv.FormatBool(s.Applied)}
			}
			PrintTable(cmd.OutOrStdout(), []string{"version", "source", "applied"}, rows)
			return nil
		},
	}
}
