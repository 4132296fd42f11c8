package actions

import (
	"context"
	"fmt"
	"maps"
)

// ActionExport — имя pass-through action.
const ActionExport = "export"

// ExportAction возвращает inputs как outputs и env.
//
// Используется, чтобы прокинуть значения в контекст job:
//
//	- id: vars
//	  uses: export
//	  with:
//	    GOFLAGS: -trimpath
//
// После шага доступны {{ .Steps.vars.Outputs.GOFLAGS }} и $GOFLAGS.
type ExportAction struct{}

// NewExportAction создаёт новый ExportAction.
func NewExportAction() *ExportAction {
	return &ExportAction{}
}

// Name возвращает имя action.
func (a *ExportAction) Name() string {
	return ActionExport
}

// Invoke возвращает inputs.
func (a *ExportAction) Invoke(ctx context.Context, req *Request) (*Result, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrActionCancelled, ctx.Err())
	default:
	}

	result := NewResult(maps.Clone(req.Inputs))
	result.Env = maps.Clone(req.Inputs)
	return result, nil
}
