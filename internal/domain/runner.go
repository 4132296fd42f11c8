package domain

// RunnerDescriptor — класс runner'а (ОС/архитектура), на котором выполняется job.
type RunnerDescriptor string

// Известные runner'ы по умолчанию.
const (
	RunnerWindowsX64 RunnerDescriptor = "windows-x64"
	RunnerWindowsX86 RunnerDescriptor = "windows-x86"
	RunnerLinuxX64   RunnerDescriptor = "linux-x64"
	RunnerMacOSX64   RunnerDescriptor = "macos-x64"
)

// DefaultRunners возвращает набор runner'ов, известных без конфигурации.
func DefaultRunners() []RunnerDescriptor {
	return []RunnerDescriptor{
		RunnerWindowsX64,
		RunnerWindowsX86,
		RunnerLinuxX64,
		RunnerMacOSX64,
	}
}

// Event — событие, запускающее workflow.
type Event string

// Поддерживаемые события.
const (
	EventPush        Event = "push"
	EventPullRequest Event = "pull_request"
	EventSchedule    Event = "schedule"
	EventManual      Event = "manual"
)

// IsKnown возвращает true для поддерживаемых событий.
func (e Event) IsKnown() bool {
	switch e {
	case EventPush, EventPullRequest, EventSchedule, EventManual:
		return true
	default:
		return false
	}
}
