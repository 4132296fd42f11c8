package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Launcher запускает выполнение. Реализуется orchestrator.Orchestrator.
type Launcher interface {
	Start(ctx context.Context, wf *domain.Workflow, event domain.Event) (uuid.UUID, error)
}

// Leader решает, какой экземпляр сервера запускает workflows по расписанию.
// Реализуется repo.Leader (advisory lock PostgreSQL).
type Leader interface {
	TryLead(ctx context.Context) (bool, error)
}

// Config — конфигурация Scheduler.
type Config struct {
	// Workflows — кандидаты на запуск. Без подписки на schedule игнорируются.
	Workflows []*domain.Workflow

	// Launcher — кто запускает выполнение (обязательный).
	Launcher Launcher

	// Leader — выбор лидера среди нескольких серверов. Nil — всегда лидер.
	Leader Leader

	Metrics *telemetry.Metrics
	Logger  *slog.Logger

	// Now — источник времени (для тестов). По умолчанию time.Now.
	Now func() time.Time
}

type entry struct {
	workflow  *domain.Workflow
	schedules []cron.Schedule
	nextDue   time.Time
	lastRun   uuid.UUID
}

// next возвращает ближайшее срабатывание любого расписания после from.
func (e *entry) next(from time.Time) time.Time {
	var next time.Time
	for _, s := range e.schedules {
		t := s.Next(from)
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	return next
}

// Scheduler запускает workflows по расписанию.
//
// Пропущенные срабатывания (например, пока сервер был выключен)
// не догоняются: после тика nextDue считается от текущего времени.
type Scheduler struct {
	launcher Launcher
	leader   Leader
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	entries []*entry
}

// NewScheduler создаёт Scheduler и вычисляет первые времена срабатывания.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &Scheduler{
		launcher: cfg.Launcher,
		leader:   cfg.Leader,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "scheduler"),
		now:      cfg.Now,
	}

	now := s.now()
	for _, wf := range cfg.Workflows {
		if len(wf.Schedules) == 0 || !wf.HasTrigger(domain.EventSchedule) {
			continue
		}

		e := &entry{workflow: wf}
		for _, expr := range wf.Schedules {
			cs, err := ParseCron(expr)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: %w", wf.Name, err)
			}
			e.schedules = append(e.schedules, cs)
		}
		e.nextDue = e.next(now)
		s.entries = append(s.entries, e)
	}

	return s, nil
}

// Tick запускает все workflows, время которых наступило.
//
// Ошибка запуска одного workflow не блокирует остальные; nextDue
// сдвигается в любом случае, чтобы не запускать workflow в каждом тике.
// Если экземпляр не лидер, наступившие срабатывания пропускаются.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.now()

	lead := true
	if s.leader != nil {
		var err error
		if lead, err = s.leader.TryLead(ctx); err != nil {
			return fmt.Errorf("leader election: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !lead {
		for _, e := range s.entries {
			if !now.Before(e.nextDue) {
				e.nextDue = e.next(now)
			}
		}
		return nil
	}

	var errs []error
	var launched int
	for _, e := range s.entries {
		if now.Before(e.nextDue) {
			continue
		}

		due := e.nextDue
		e.nextDue = e.next(now)

		runID, err := s.launcher.Start(ctx, e.workflow, domain.EventSchedule)
		if err != nil {
			s.logger.Error("failed to launch scheduled workflow",
				"workflow", e.workflow.Name,
				"due", due,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("launch %s: %w", e.workflow.Name, err))
			continue
		}

		e.lastRun = runID
		launched++
		s.metrics.ScheduledRun()
		s.logger.Info("launched scheduled workflow",
			"workflow", e.workflow.Name,
			"run_id", runID,
			"due", due,
			"next_due", e.nextDue,
		)
	}

	if launched > 0 {
		s.logger.Debug("scheduler tick completed", "launched", launched)
	}
	return errors.Join(errs...)
}

// Run вызывает Tick каждые interval до отмены ctx.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.logger.Warn("scheduler tick failed", "error", err)
			}
		}
	}
}

// Due — запланированный запуск.
type Due struct {
	Workflow string    `json:"workflow"`
	At       time.Time `json:"at"`
	LastRun  uuid.UUID `json:"last_run,omitzero"`
}

// Upcoming возвращает ближайшие запуски, отсортированные по времени.
func (s *Scheduler) Upcoming() []Due {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Due, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, Due{Workflow: e.workflow.Name, At: e.nextDue.UTC(), LastRun: e.lastRun})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out
}
