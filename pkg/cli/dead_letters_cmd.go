package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JoshuaRamirez/ACS-sub004/internal/db"
	"github.com/JoshuaRamirez/ACS-sub004/internal/db/repository"
	"github.com/JoshuaRamirez/ACS-sub004/internal/deadletter"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
)

// deadLetterView is the wire shape of a dead-lettered command.
type deadLetterView struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenant_id,omitempty"`
	CommandType      string    `json:"command_type"`
	CommandData      string    `json:"command_data"`
	AttemptNumber    int       `json:"attempt_number"`
	LastError        string    `json:"last_error"`
	FirstFailureTime time.Time `json:"first_failure_time"`
	LastFailureTime  time.Time `json:"last_failure_time"`
	ExpiresAt        time.Time `json:"expires_at"`
}

func toDeadLetterView(c domain.FailedCommand) deadLetterView {
	return deadLetterView{
		ID:               c.ID,
		TenantID:         c.TenantID,
		CommandType:      c.CommandType,
		CommandData:      c.CommandData,
		AttemptNumber:    c.AttemptNumber,
		LastError:        c.LastError,
		FirstFailureTime: c.FirstFailureTime,
		LastFailureTime:  c.LastFailureTime,
		ExpiresAt:        c.ExpiresAt,
	}
}

// openDeadLetters opens the durable store named by --db. The returned
// closer must be called when the command finishes.
func openDeadLetters(cmd *cobra.Command) (*deadletter.Store, func(), error) {
	path, err := getDBPath(cmd)
	if err != nil {
		return nil, nil, err
	}
	pools, err := db.Open(cmd.Context(), path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := deadletter.NewStore(repository.NewDeadLetterRepo(pools), deadletter.WithLogger(logger))
	return store, func() {
		_ = store.Close()
		_ = pools.Close()
	}, nil
}

func newDeadLettersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "dead-letters",
		Aliases: []string{"dlq"},
		Short:   "Inspect and manage dead-lettered commands",
	}
	cmd.AddCommand(newDeadLettersListCmd())
	cmd.AddCommand(newDeadLettersShowCmd())
	cmd.AddCommand(newDeadLettersRemoveCmd())
	cmd.AddCommand(newDeadLettersPurgeCmd())
	return cmd
}

func newDeadLettersListCmd() *cobra.Command {
	var (
		tenant      string
		commandType string
		pageSize    int
		pageToken   string
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live dead-lettered commands, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			after, err := domain.ParseCursor(pageToken)
			if err != nil {
				return err
			}
			store, closeFn, err := openDeadLetters(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			filter := domain.DeadLetterFilter{
				Page: domain.PageRequest{Size: pageSize, After: after},
			}
			if cmd.Flags().Changed("tenant") {
				filter.TenantID = &tenant
			}
			if cmd.Flags().Changed("type") {
				filter.CommandType = &commandType
			}

			items, total, err := store.Peek(cmd.Context(), filter)
			if err != nil {
				return err
			}
			var next string
			if c, ok := filter.Page.Next(len(items), total); ok {
				next = c.Token()
			}

			out := cmd.OutOrStdout()
			switch {
			case getOutputFormat(cmd) == "json":
				views := make([]deadLetterView, len(items))
				for i, c := range items {
					views[i] = toDeadLetterView(c)
				}
				return PrintJSON(out, map[string]interface{}{
					"data":            views,
					"total":           total,
					"next_page_token": next,
				})
			case isQuiet(cmd):
				for _, c := range items {
					_, _ = fmt.Fprintln(out, c.ID)
				}
			default:
				rows := make([][]string, len(items))
				for i, c := range items {
					rows[i] = []string{
						c.ID, c.TenantID, c.CommandType, strconv.Itoa(c.AttemptNumber),
						c.LastFailureTime.Format(time.RFC3339), c.ExpiresAt.Format(time.RFC3339), c.LastError,
					}
				}
				PrintTable(out, []string{"id", "tenant", "type", "attempts", "last_failure", "expires", "last_error"}, rows)
				if next != "" {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "more results: --page-token %s\n", next)
				}
			}
			return nil
		},
	}
	addFilterFlags(cmd.Flags(), &tenant, &commandType)
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "Entries per page (default 100)")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "Token from a previous page")
	return cmd
}

func addFilterFlags(fs *pflag.FlagSet, tenant, commandType *string) {
	fs.StringVar(tenant, "tenant", "", "Only commands submitted for this tenant")
	fs.StringVar(commandType, "type", "", "Only commands of this type")
}

func newDeadLettersShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show one dead-lettered command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openDeadLetters(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			c, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			v := toDeadLetterView(*c)
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), v)
			}
			PrintTable(cmd.OutOrStdout(), []string{"field", "value"}, [][]string{
				{"id", v.ID},
				{"tenant_id", v.TenantID},
				{"command_type", v.CommandType},
				{"command_data", v.CommandData},
				{"attempt_number", strconv.Itoa(v.AttemptNumber)},
				{"last_error", v.LastError},
				{"first_failure_time", v.FirstFailureTime.Format(time.RFC3339Nano)},
				{"last_failure_time", v.LastFailureTime.Format(time.RFC3339Nano)},
				{"expires_at", v.ExpiresAt.Format(time.RFC3339Nano)},
			})
			return nil
		},
	}
}

func newDeadLettersRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove ID [ID...]",
		Aliases: []string{"rm"},
		Short:   "Remove dead-lettered commands",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeFn, err := openDeadLetters(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, id := range args {
				if err := store.Remove(cmd.Context(), id); err != nil {
					return err
				}
				if !isQuiet(cmd) && getOutputFormat(cmd) != "json" {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", id)
				}
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]interface{}{"removed": args})
			}
			return nil
		},
	}
}

func newDeadLettersPurgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every expired dead-lettered command",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, closeFn, err := openDeadLetters(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			n, err := purge(cmd.Context(), store)
			if err != nil {
				return err
			}
			if getOutputFormat(cmd) == "json" {
				return PrintJSON(cmd.OutOrStdout(), map[string]int64{"purged": n})
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "purged %d expired dead letters\n", n)
			return nil
		},
	}
}

func purge(ctx context.Context, store *deadletter.Store) (int64, error) {
	n, err := store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return n, nil
}
