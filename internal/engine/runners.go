package engine

import (
	"slices"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunnerSet — неизменяемый набор известных runner'ов.
//
// Создаётся один раз при старте и передаётся в Parser явно.
type RunnerSet struct {
	known map[domain.RunnerDescriptor]struct{}
}

// NewRunnerSet создаёт набор из переданных runner'ов.
// Без аргументов возвращает domain.DefaultRunners().
func NewRunnerSet(runners ...domain.RunnerDescriptor) RunnerSet {
	if len(runners) == 0 {
		runners = domain.DefaultRunners()
	}
	known := make(map[domain.RunnerDescriptor]struct{}, len(runners))
	for _, r := range runners {
		known[r] = struct{}{}
	}
	return RunnerSet{known: known}
}

// RunnerSetFromStrings создаёт набор из строк конфигурации.
func RunnerSetFromStrings(names []string) RunnerSet {
	runners := make([]domain.RunnerDescriptor, 0, len(names))
	for _, n := range names {
		runners = append(runners, domain.RunnerDescriptor(n))
	}
	return NewRunnerSet(runners...)
}

// Has проверяет, известен ли runner.
func (s RunnerSet) Has(r domain.RunnerDescriptor) bool {
	_, ok := s.known[r]
	return ok
}

// List возвращает отсортированный список runner'ов.
func (s RunnerSet) List() []domain.RunnerDescriptor {
	list := make([]domain.RunnerDescriptor, 0, len(s.known))
	for r := range s.known {
		list = append(list, r)
	}
	slices.Sort(list)
	return list
}
