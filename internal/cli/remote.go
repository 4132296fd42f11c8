package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// NewRemoteCmd создаёт группу команд для работы с conveyor-server.
func NewRemoteCmd(e *Env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Manage runs on a conveyor-server",
	}

	cmd.AddCommand(
		newRemoteSubmitCmd(e),
		newRemoteStatusCmd(e),
		newRemoteCancelCmd(e),
		newRemoteListCmd(e),
		newRemoteArtifactsCmd(e),
	)

	return cmd
}

func newRemoteSubmitCmd(e *Env) *cobra.Command {
	var event string
	var wait bool
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "submit FILE",
		Short: "Submit a workflow for execution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.Client()
			if err != nil {
				return exitWith(ExitInternal, err)
			}
			out := e.Output()

			raw, err := readDefinition(args[0])
			if err != nil {
				return err
			}

			run, err := client.SubmitRun(cmd.Context(), raw, event)
			if err != nil {
				return remoteError(err)
			}

			if run.Queued {
				out.Success(fmt.Sprintf("Run queued: %s", run.RunID))
			} else {
				out.Success(fmt.Sprintf("Run started: %s", run.RunID))
			}

			if wait {
				return waitAndReport(cmd.Context(), client, out, run.RunID, poll)
			}

			out.Print(
				[]string{"RUN_ID", "WORKFLOW", "EVENT", "STATUS", "JOBS"},
				[][]string{{run.RunID, run.Workflow, run.Event, run.Status, strings.Join(run.Jobs, ",")}},
				run,
			)
			return nil
		},
	}

	cmd.Flags().StringVar(&event, "event", "", "Triggering event (default manual)")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish and print the report")
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second, "Polling interval for --wait")

	return cmd
}

func newRemoteStatusCmd(e *Env) *cobra.Command {
	var wait bool
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "status RUN_ID",
		Short: "Show run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.Client()
			if err != nil {
				return exitWith(ExitInternal, err)
			}
			out := e.Output()

			if wait {
				return waitAndReport(cmd.Context(), client, out, args[0], poll)
			}

			report, err := client.GetRun(cmd.Context(), args[0])
			if err != nil {
				return remoteError(err)
			}
			out.Report(report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the run to finish")
	cmd.Flags().DurationVar(&poll, "poll", 2*time.Second, "Polling interval for --wait")

	return cmd
}

func newRemoteCancelCmd(e *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel RUN_ID",
		Short: "Cancel a running run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.Client()
			if err != nil {
				return exitWith(ExitInternal, err)
			}

			if err := client.CancelRun(cmd.Context(), args[0]); err != nil {
				return remoteError(err)
			}

			e.Output().Success(fmt.Sprintf("Run cancel requested: %s", args[0]))
			return nil
		},
	}
}

func newRemoteListCmd(e *Env) *cobra.Command {
	var opts ListRunsOpts

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := e.Client()
			if err != nil {
				return exitWith(ExitInternal, err)
			}

			runs, err := client.ListRuns(cmd.Context(), opts)
			if err != nil {
				return remoteError(err)
			}

			headers := []string{"ID", "WORKFLOW", "EVENT", "STATUS", "STARTED", "FAILED_JOBS"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{r.ID, r.Workflow, r.Event, r.Status, r.StartedAt, strings.Join(r.FailedJobs, ",")}
			}

			e.Output().Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Workflow, "workflow", "", "Filter by workflow name")
	cmd.Flags().StringVar(&opts.Status, "status", "", "Filter by status (PENDING, RUNNING, SUCCESS, FAILED)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Maximum number of results")

	return cmd
}

func newRemoteArtifactsCmd(e *Env) *cobra.Command {
	return &cobra.Command{
		Use:   "artifacts RUN_ID",
		Short: "List artifacts of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := e.Client()
			if err != nil {
				return exitWith(ExitInternal, err)
			}

			artifacts, err := client.ListArtifacts(cmd.Context(), args[0])
			if err != nil {
				return remoteError(err)
			}

			headers := []string{"JOB", "NAME", "PATH", "URI", "SIZE"}
			rows := make([][]string, len(artifacts))
			for i, a := range artifacts {
				uri, size := "", ""
				if a.Handle != nil {
					uri, size = a.Handle.URI, strconv.FormatInt(a.Handle.Size, 10)
				}
				rows[i] = []string{a.JobID, a.Name, a.Path, uri, size}
			}

			e.Output().Print(headers, rows, artifacts)
			return nil
		},
	}
}

// waitAndReport опрашивает сервер, пока выполнение не завершится.
// Выполнение, ещё не попавшее к agent'у, может временно отсутствовать.
func waitAndReport(ctx context.Context, client *Client, out *Output, runID string, poll time.Duration) error {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		report, err := client.GetRun(ctx, runID)
		var apiErr *APIError
		switch {
		case err == nil && report.Status.IsTerminal():
			out.Report(report)
			if !report.IsSuccess() {
				return exitWith(ExitFailed, nil)
			}
			return nil
		case err != nil && !(errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound):
			return remoteError(err)
		}

		select {
		case <-ctx.Done():
			return exitWith(ExitInternal, ctx.Err())
		case <-ticker.C:
		}
	}
}

// remoteError переводит ошибку API в код завершения.
func remoteError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == "VALIDATION_FAILED", apiErr.Code == "NOT_TRIGGERED":
			return exitWith(ExitValidation, err)
		case apiErr.Code == "INVALID_STATE":
			return exitWith(ExitFailed, err)
		}
	}
	return exitWith(ExitInternal, err)
}

