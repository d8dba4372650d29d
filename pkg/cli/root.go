// Package cli implements the acs operator command line.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		output, _ := rootCmd.PersistentFlags().GetString("output")
		if output == "json" {
			errObj := map[string]interface{}{
				"error": err.Error(),
			}
			if code := errorCode(err); code != "" {
				errObj["code"] = code
			}
			_ = PrintJSON(os.Stdout, errObj)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// errorCode names the domain error class of err, if any.
func errorCode(err error) string {
	var (
		notFound  *domain.NotFoundError
		invalid   *domain.ValidationError
		conflict  *domain.ConflictError
		invariant *domain.InvariantViolationError
	)
	switch {
	case errors.As(err, &notFound):
		return "NOT_FOUND"
	case errors.As(err, &invalid):
		return "VALIDATION"
	case errors.As(err, &conflict):
		return "CONFLICT"
	case errors.As(err, &invariant):
		return "INVARIANT_VIOLATION"
	}
	return ""
}

func newRootCmd() *cobra.Command {
	var (
		dbPath string
		output string
		quiet  bool
	)

	rootCmd := &cobra.Command{
		Use:           "acs",
		Short:         "Access-control command core",
		Long:          "Operator tooling for the access-control command core and its dead-letter store.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Apply precedence: flag > env > default
			if !cmd.Flags().Changed("db") {
				if v := os.Getenv("ACS_DB_PATH"); v != "" {
					dbPath = v
				}
			}
			if !cmd.Flags().Changed("output") {
				if v := os.Getenv("ACS_OUTPUT"); v != "" {
					output = v
				}
			}
			return validateOutputFormat(output)
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite file holding dead letters (env ACS_DB_PATH)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only output resource identifiers")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newDeadLettersCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newCompletionCmd())

	return rootCmd
}

func newCompletionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(out)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			default:
				return fmt.Errorf("unsupported shell: %s", args[0])
			}
		},
	}
	return cmd
}
