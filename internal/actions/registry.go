package actions

import (
	"fmt"
	"sort"
	"sync"
)

// Registry — реестр actions по имени.
//
// Создаётся один раз при старте и передаётся в Parser и Executor явно.
// Потокобезопасен.
type Registry struct {
	mu      sync.RWMutex
	actions map[string]Action
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		actions: make(map[string]Action),
	}
}

// DefaultRegistry создаёт реестр со встроенными actions: run, export, wait.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(NewRunAction(&ShellRunner{}))
	r.Register(NewExportAction())
	r.Register(NewWaitAction())
	return r
}

// Register регистрирует action.
// Если action с таким именем уже существует, он будет перезаписан.
func (r *Registry) Register(action Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions[action.Name()] = action
}

// Get возвращает action по имени.
// Возвращает ErrUnknownAction, если action не найден.
func (r *Registry) Get(name string) (Action, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	action, ok := r.actions[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, name)
	}
	return action, nil
}

// Has проверяет, зарегистрирован ли action.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.actions[name]
	return ok
}

// Names возвращает отсортированный список имён actions.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.actions))
	for n := range r.actions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
