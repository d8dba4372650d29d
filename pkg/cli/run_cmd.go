package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JoshuaRamirez/ACS-sub004/internal/app"
	"github.com/JoshuaRamirez/ACS-sub004/internal/config"
	"github.com/JoshuaRamirez/ACS-sub004/internal/domain"
	"github.com/JoshuaRamirez/ACS-sub004/internal/resilience"
	"github.com/JoshuaRamirez/ACS-sub004/internal/service/dispatch"
)

// script is a batch of commands executed against a fresh graph.
type script struct {
	Tenant   string       `yaml:"tenant"`
	Actor    string       `yaml:"actor"`
	Commands []scriptStep `yaml:"commands"`
}

type scriptStep struct {
	Type string                 `yaml:"type"`
	Data map[string]interface{} `yaml:"data"`
}

type stepResult struct {
	Index        int         `json:"index"`
	CommandType  string      `json:"command_type"`
	Kind         string      `json:"kind"`
	Status       string      `json:"status"`
	Result       interface{} `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
	DeadLetterID string      `json:"dead_letter_id,omitempty"`
}

func parseScript(r io.Reader) (*script, error) {
	var s script
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.ErrValidation("parse script: %v", err)
	}
	for i, step := range s.Commands {
		if step.Type == "" {
			return nil, domain.ErrValidation("command %d: type is required", i)
		}
	}
	return &s, nil
}

// payload renders a step as the JSON body of its command, stamping the
// envelope fields the script does not set.
func (s *script) payload(step scriptStep, now time.Time) (string, error) {
	data := make(map[string]interface{}, len(step.Data)+4)
	for k, v := range step.Data {
		data[k] = v
	}
	defaults := map[string]interface{}{
		"request_id": domain.NewID(),
		"timestamp":  now.UTC(),
		"actor_id":   s.Actor,
		"tenant_id":  s.Tenant,
	}
	for k, v := range defaults {
		if _, ok := data[k]; !ok {
			data[k] = v
		}
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", domain.ErrValidation("encode %s: %v", step.Type, err)
	}
	return string(b), nil
}

func newRunCmd() *cobra.Command {
	var failFast bool
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a YAML script of commands against a fresh graph",
		Long: `Execute a YAML script of commands against a fresh in-process graph.
Mutations run through the recovery executor; those that exhaust recovery are
dead-lettered (durably when --db is set). Use "-" to read from stdin.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				in = f
			}
			s, err := parseScript(in)
			if err != nil {
				return err
			}

			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			if v, _ := cmd.Root().PersistentFlags().GetString("db"); v != "" {
				cfg.DBPath = v
			}
			cfg.SweepSchedule = "off"
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: cfg.SlogLevel()}))
			for _, w := range cfg.Warnings {
				logger.Warn(w)
			}

			a, err := app.New(cmd.Context(), app.Deps{Cfg: cfg, Logger: logger})
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results, failed := runScript(cmd.Context(), a, s, failFast)
			if err := printRunResults(cmd, a, results); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d commands failed", failed, len(s.Commands))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop at the first failed command")
	return cmd
}

func runScript(ctx context.Context, a *app.App, s *script, failFast bool) ([]stepResult, int) {
	if s.Tenant != "" {
		ctx = domain.WithTenant(ctx, s.Tenant)
	}
	if s.Actor != "" {
		ctx = domain.WithActor(ctx, s.Actor)
	}
	results := make([]stepResult, 0, len(s.Commands))
	failed := 0
	for i, step := range s.Commands {
		res := stepResult{Index: i, CommandType: step.Type}
		if kind, err := a.Registry.KindOf(step.Type); err == nil {
			res.Kind = kind.String()
		}

		out, err := runStep(ctx, a, s, step)
		var dl *dispatch.DeadLetteredError
		switch {
		case err == nil:
			res.Status = "ok"
			res.Result = out
		case errors.As(err, &dl):
			res.Status = "dead_lettered"
			res.DeadLetterID = dl.ID
			res.Error = dl.Err.Error()
		default:
			res.Status = "error"
			res.Error = err.Error()
		}
		results = append(results, res)
		if err != nil {
			failed++
			if failFast {
				break
			}
		}
	}
	return results, failed
}

func runStep(ctx context.Context, a *app.App, s *script, step scriptStep) (interface{}, error) {
	data, err := s.payload(step, time.Now())
	if err != nil {
		return nil, err
	}
	c, err := a.Registry.Decode(step.Type, data)
	if err != nil {
		return nil, err
	}
	return a.Dispatcher.Dispatch(ctx, c)
}

func printRunResults(cmd *cobra.Command, a *app.App, results []stepResult) error {
	out := cmd.OutOrStdout()
	if getOutputFormat(cmd) == "json" {
		return PrintJSON(out, map[string]interface{}{
			"results":  results,
			"breakers": a.Executor.CircuitBreakers(),
		})
	}
	rows := make([][]string, len(results))
	for i, r := range results {
		detail := r.Error
		if r.Status == "ok" {
			b, _ := json.Marshal(r.Result)
			detail = string(b)
		}
		if r.DeadLetterID != "" {
			detail = r.DeadLetterID + ": " + detail
		}
		rows[i] = []string{fmt.Sprint(r.Index), r.CommandType, r.Kind, r.Status, detail}
	}
	PrintTable(out, []string{"#", "type", "kind", "status", "detail"}, rows)

	var open [][]string
	for _, b := range a.Executor.CircuitBreakers() {
		if b.State != resilience.StateClosed {
			open = append(open, []string{b.OperationType, b.StateName, fmt.Sprint(b.FailureCount)})
		}
	}
	if len(open) > 0 {
		_, _ = fmt.Fprintln(out)
		PrintTable(out, []string{"breaker", "state", "failures"}, open)
	}
	return nil
}
