package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Conveyor/internal/app"
	"github.com/shaiso/Conveyor/internal/config"
	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/trigger"
)

// NewRunCmd создаёт команду локального выполнения workflow.
func NewRunCmd(e *Env) *cobra.Command {
	var event string

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a workflow on this machine",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindRunFlags(e, cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := e.Output()

			cfg, err := e.Config()
			if err != nil {
				return exitWith(ExitInternal, err)
			}
			logger, closeLog := e.Logger(cfg)
			defer closeLog()

			a, err := app.New(ctx, cfg, app.Options{Logger: logger})
			if err != nil {
				return exitWith(ExitInternal, err)
			}
			defer a.Orchestrator.Stop()

			wf, err := a.Parser.ParseFile(args[0])
			if err != nil {
				return exitWith(ExitValidation, err)
			}
			if err := trigger.Check(wf, domain.Event(event)); err != nil {
				return exitWith(ExitValidation, err)
			}

			report, err := a.Orchestrator.ExecuteEvent(ctx, wf, domain.Event(event))
			if err != nil {
				return exitWith(ExitInternal, err)
			}

			out.Report(report)
			if !report.IsSuccess() {
				return exitWith(ExitFailed, nil)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&event, "event", string(domain.EventManual), "Triggering event (push, pull_request, schedule, manual)")
	flags.Int("max-parallel", 0, "Maximum concurrent jobs (0 = unlimited)")
	flags.Duration("step-timeout", 0, "Default step timeout (0 = unlimited)")
	flags.String("artifacts-dir", "", "Directory for stored artifacts")
	flags.String("work-dir", "", "Directory for job workspaces")
	flags.Bool("keep-workspace", false, "Keep job workspaces after the run")

	return cmd
}

func bindRunFlags(e *Env, cmd *cobra.Command) error {
	return config.BindFlags(e.v, cmd.Flags(), map[string]string{
		"execution.max_parallel":   "max-parallel",
		"execution.step_timeout":   "step-timeout",
		"execution.work_dir":       "work-dir",
		"execution.keep_workspace": "keep-workspace",
		"artifacts.dir":            "artifacts-dir",
	})
}

// NewValidateCmd создаёт команду проверки workflow.
func NewValidateCmd(e *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := e.Output()

			cfg, err := e.Config()
			if err != nil {
				return exitWith(ExitInternal, err)
			}

			parser := app.NewParser(cfg, app.NewRegistry(cfg))
			wf, err := parser.ParseFile(args[0])
			if err != nil {
				return exitWith(ExitValidation, err)
			}

			out.Print(
				[]string{"JOB", "RUNS_ON", "STEPS", "ARTIFACTS"},
				jobRows(wf),
				wf,
			)
			out.Success(fmt.Sprintf("Workflow %s is valid: %d jobs", wf.Name, len(wf.Jobs)))
			return nil
		},
	}
}

func jobRows(wf *domain.Workflow) [][]string {
	rows := make([][]string, len(wf.Jobs))
	for i := range wf.Jobs {
		job := &wf.Jobs[i]
		names := make([]string, 0)
		for _, a := range job.Artifacts() {
			names = append(names, a.Name)
		}
		rows[i] = []string{job.ID, string(job.RunsOn), fmt.Sprint(len(job.Steps)), strings.Join(names, ",")}
	}
	return rows
}

// readDefinition читает файл workflow для отправки на сервер.
func readDefinition(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, exitWith(ExitValidation, fmt.Errorf("read workflow: %w", err))
	}
	return raw, nil
}
