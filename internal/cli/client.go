package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunCreated — ответ на запуск workflow.
type RunCreated struct {
	RunID    string   `json:"run_id"`
	Workflow string   `json:"workflow"`
	Event    string   `json:"event"`
	Status   string   `json:"status"`
	Jobs     []string `json:"jobs"`
	Queued   bool     `json:"queued,omitempty"`
}

// RunSummary — run из списка.
type RunSummary struct {
	ID         string   `json:"id"`
	Workflow   string   `json:"workflow"`
	Event      string   `json:"event,omitempty"`
	Status     string   `json:"status"`
	StartedAt  string   `json:"started_at,omitempty"`
	FinishedAt string   `json:"finished_at,omitempty"`
	Error      string   `json:"error,omitempty"`
	FailedJobs []string `json:"failed_jobs,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Workflow string
	Status   string
	Limit    int
}

// APIError — ошибка, возвращённая сервером.
type APIError struct {
	Status   int
	Code     string
	Message  string
	Location string
}

func (e *APIError) Error() string {
	if e.Location != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Location, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Location string `json:"location"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Conveyor API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Runs ---

// SubmitRun отправляет YAML определение workflow на выполнение.
func (c *Client) SubmitRun(ctx context.Context, definition []byte, event string) (*RunCreated, error) {
	path := "/api/v1/runs"
	if event != "" {
		path += "?" + url.Values{"event": {event}}.Encode()
	}

	var run RunCreated
	err := c.doData(ctx, http.MethodPost, path, "application/yaml", bytes.NewReader(definition), &run)
	return &run, err
}

// Validate проверяет workflow на сервере.
func (c *Client) Validate(ctx context.Context, definition []byte) (map[string]any, error) {
	var result map[string]any
	err := c.doData(ctx, http.MethodPost, "/api/v1/workflows/validate", "application/yaml", bytes.NewReader(definition), &result)
	return result, err
}

// GetRun возвращает отчёт о выполнении.
func (c *Client) GetRun(ctx context.Context, id string) (*domain.WorkflowReport, error) {
	var report domain.WorkflowReport
	err := c.get(ctx, "/api/v1/runs/"+url.PathEscape(id), &report)
	return &report, err
}

// CancelRun отменяет выполнение.
func (c *Client) CancelRun(ctx context.Context, id string) error {
	return c.post(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/cancel", nil)
}

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(ctx context.Context, opts ListRunsOpts) ([]RunSummary, error) {
	params := url.Values{}
	if opts.Workflow != "" {
		params.Set("workflow", opts.Workflow)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var runs []RunSummary
	err := c.list(ctx, "/api/v1/runs", params, &runs)
	return runs, err
}

// ListArtifacts возвращает артефакты выполнения.
func (c *Client) ListArtifacts(ctx context.Context, id string) ([]domain.Artifact, error) {
	var artifacts []domain.Artifact
	err := c.list(ctx, "/api/v1/runs/"+url.PathEscape(id)+"/artifacts", nil, &artifacts)
	return artifacts, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, "", nil, result)
}

func (c *Client) post(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodPost, path, "", nil, result)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path, contentType string, body io.Reader, result any) error {
	resp, err := c.do(ctx, method, path, contentType, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode, Code: "HTTP_" + strconv.Itoa(resp.StatusCode), Message: http.StatusText(resp.StatusCode)}
	}

	return &APIError{
		Status:   resp.StatusCode,
		Code:     er.Error.Code,
		Message:  er.Error.Message,
		Location: er.Error.Location,
	}
}
