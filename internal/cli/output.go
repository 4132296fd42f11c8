package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	// Заголовки
	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	// Разделитель
	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	// Строки данных
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// Report выводит отчёт о выполнении: по строке на job и итог в stderr.
func (o *Output) Report(r *domain.WorkflowReport) {
	headers := []string{"JOB", "RUNS_ON", "STATUS", "FAILED_STEP", "DURATION", "ARTIFACTS", "DETAIL"}
	rows := make([][]string, len(r.Jobs))
	for i := range r.Jobs {
		job := &r.Jobs[i]
		failed := ""
		if job.FailedStep != nil {
			failed = strconv.Itoa(*job.FailedStep)
		}
		rows[i] = []string{
			job.JobID,
			string(job.RunsOn),
			string(job.Status),
			failed,
			job.Duration().Round(time.Millisecond).String(),
			strconv.Itoa(len(job.Artifacts)),
			firstLine(job.Detail),
		}
	}
	o.Print(headers, rows, r)

	summary := fmt.Sprintf("Workflow %s: %s", r.Workflow, r.Status)
	if len(r.FailedJobs) > 0 {
		summary += " (failed: " + strings.Join(r.FailedJobs, ", ") + ")"
	}
	if len(r.SkippedJobs) > 0 {
		summary += " (skipped: " + strings.Join(r.SkippedJobs, ", ") + ")"
	}
	o.Success(summary)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
