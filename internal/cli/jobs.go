package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/transcribe-service/internal/api/dto"
	"github.com/cuongbtq/transcribe-service/internal/domain"
)

type jobClient interface {
	CreateJob(ctx context.Context, req dto.CreateJobRequest) (dto.CreateJobResponse, error)
	GetJob(ctx context.Context, jobID string) (dto.JobDTO, error)
	ListJobs(ctx context.Context, status, cursor string, pageSize int) (dto.ListJobsResponse, error)
	CancelJob(ctx context.Context, jobID string) (dto.CancelJobResponse, error)
	DeleteJob(ctx context.Context, jobID string) error
	WaitJob(ctx context.Context, jobID string, interval time.Duration, onUpdate func(dto.JobDTO)) (dto.JobDTO, error)
}

func newSubmitCmd(app *appState) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "submit <locator>",
		Short: "Submit a URL or server-side file as a background job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := app.newClientFn()
			resp, err := c.CreateJob(cmd.Context(), dto.CreateJobRequest{
				Locator:  args[0],
				Language: app.language,
				Model:    app.model,
			})
			if err != nil {
				return err
			}
			app.log().Info("Job submitted", slog.String("job_id", resp.JobID))

			if !wait {
				fmt.Fprintln(cmd.OutOrStdout(), resp.JobID)
				return nil
			}
			return app.waitAndPrint(cmd, c, resp.JobID)
		},
	}

	bindTranscriptionFlags(cmd, app)
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the job and print its transcript")
	return cmd
}

func newStatusCmd(app *appState) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show job progress, or wait for the transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := app.newClientFn()
			if wait {
				return app.waitAndPrint(cmd, c, args[0])
			}

			job, err := c.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %s %d/%d\n", job.JobID, colorStatus(job.Status), job.CurrentSegment, job.TotalSegments)
			if job.Error != "" {
				fmt.Fprintf(out, "error: %s\n", job.Error)
			}
			if job.Transcript != "" {
				fmt.Fprint(out, job.Transcript)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Poll until the job finishes")
	return cmd
}

func newCancelCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Request cancellation at the next segment boundary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := app.newClientFn().CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", resp.JobID, resp.Outcome, colorStatus(resp.Status))
			return nil
		},
	}
}

func newDeleteCmd(app *appState) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <job-id>",
		Short: "Evict a finished job from the service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.newClientFn().DeleteJob(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deleted\n", args[0])
			return nil
		},
	}
}

func newJobsCmd(app *appState) *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs known to the service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := app.newClientFn()

			var all []dto.JobDTO
			cursor := ""
			for {
				page, err := c.ListJobs(cmd.Context(), status, cursor, 100)
				if err != nil {
					return err
				}
				all = append(all, page.Jobs...)
				if page.NextCursor == "" {
					break
				}
				cursor = page.NextCursor
			}

			out := cmd.OutOrStdout()
			if len(all) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			table := tablewriter.NewWriter(out)
			table.SetHeader([]string{"Job ID", "Status", "Progress", "Locator", "Created At"})
			table.SetBorder(false)
			for _, j := range all {
				table.Append([]string{
					j.JobID,
					colorStatus(j.Status),
					fmt.Sprintf("%d/%d", j.CurrentSegment, j.TotalSegments),
					j.Locator,
					j.CreatedAt,
				})
			}
			table.Render()
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only list jobs in this status")
	return cmd
}

// waitAndPrint polls the job, draws segment progress and prints the transcript.
// A failed job is reported as an error; a cancelled one prints its partial text.
func (a *appState) waitAndPrint(cmd *cobra.Command, c jobClient, jobID string) error {
	progress := newSegmentProgress(a.progressEnabled())
	job, err := c.WaitJob(cmd.Context(), jobID, a.pollInterval, func(j dto.JobDTO) {
		progress.update(j.CurrentSegment, j.TotalSegments)
		a.log().Debug("Job progress",
			slog.String("job_id", j.JobID),
			slog.String("status", j.Status),
			slog.Int("segment", j.CurrentSegment),
			slog.Int("total", j.TotalSegments),
		)
	})
	progress.finish()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch domain.JobStatus(job.Status) {
	case domain.JobStatusFailed:
		if job.Transcript != "" {
			fmt.Fprint(out, job.Transcript)
		}
		return fmt.Errorf("job %s failed: %s", job.JobID, job.Error)
	case domain.JobStatusCancelled:
		a.log().Warn("Job was cancelled; printing partial transcript",
			slog.String("job_id", job.JobID),
			slog.Int("segments", job.CurrentSegment),
		)
	}
	fmt.Fprint(out, strings.TrimRight(job.Transcript, "\n")+"\n")
	return nil
}

func colorStatus(status string) string {
	switch domain.JobStatus(status) {
	case domain.JobStatusDone:
		return color.New(color.FgGreen).Sprint(status)
	case domain.JobStatusFailed:
		return color.New(color.FgRed).Sprint(status)
	case domain.JobStatusCancelled:
		return color.New(color.FgYellow).Sprint(status)
	default:
		return color.New(color.FgCyan).Sprint(status)
	}
}
