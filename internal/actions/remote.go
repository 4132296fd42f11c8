package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"time"
)

const (
	defaultRemoteTimeout = 30 * time.Minute
	maxResponseBody      = 10 * 1024 * 1024 // 10 MB
)

// RemoteConfig — настройка удалённого action.
type RemoteConfig struct {
	// Name — имя action (значение uses).
	Name string

	// Endpoint — URL, на который отправляется вызов.
	Endpoint string

	// Headers — дополнительные заголовки (например, Authorization).
	Headers map[string]string

	// Timeout — таймаут HTTP клиента. Таймаут шага применяется через ctx.
	Timeout time.Duration
}

// RemoteAction проксирует вызов action на внешний сервис.
//
// Запрос:
//
//	POST {endpoint}
//	{"action": "checkout", "step": "...", "inputs": {...}, "env": {...}, "work_dir": "..."}
//
// Ответ:
//
//	{"exit_code": 0, "outputs": {...}, "env": {...}, "log": "..."}
type RemoteAction struct {
	cfg    RemoteConfig
	client *http.Client
}

// remoteRequest — тело запроса к удалённому action.
type remoteRequest struct {
	Action  string            `json:"action"`
	Step    string            `json:"step,omitempty"`
	Inputs  map[string]string `json:"inputs"`
	Env     map[string]string `json:"env,omitempty"`
	WorkDir string            `json:"work_dir,omitempty"`
}

// remoteResponse — тело ответа удалённого action.
type remoteResponse struct {
	ExitCode int               `json:"exit_code"`
	Outputs  map[string]string `json:"outputs"`
	Env      map[string]string `json:"env"`
	Log      string            `json:"log"`
}

// NewRemoteAction создаёт RemoteAction.
func NewRemoteAction(cfg RemoteConfig) *RemoteAction {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	return &RemoteAction{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// Name возвращает имя action.
func (a *RemoteAction) Name() string {
	return a.cfg.Name
}

// Invoke отправляет вызов на endpoint.
func (a *RemoteAction) Invoke(ctx context.Context, req *Request) (*Result, error) {
	body, err := json.Marshal(remoteRequest{
		Action:  a.cfg.Name,
		Step:    req.Step,
		Inputs:  req.Inputs,
		Env:     req.Env,
		WorkDir: req.WorkDir,
	})
	if err != nil {
		return nil, fmt.Errorf("serialize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range a.cfg.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("remote action %s: %w", a.cfg.Name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return &Result{ExitCode: -1, Stderr: string(raw)},
			fmt.Errorf("%w: %s: %d", ErrRemoteStatus, a.cfg.Name, resp.StatusCode)
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	if req.Output != nil && out.Log != "" {
		_, _ = io.WriteString(req.Output, out.Log)
	}

	return &Result{
		ExitCode: out.ExitCode,
		Stdout:   out.Log,
		Outputs:  maps.Clone(out.Outputs),
		Env:      maps.Clone(out.Env),
	}, nil
}
