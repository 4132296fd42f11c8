// Package trigger решает, когда запускать workflow.
//
// Matches проверяет событие против секции on, а Scheduler запускает
// workflows с событием schedule по их cron-выражениям.
//
// Использование:
//
//	sched, err := trigger.NewScheduler(trigger.Config{
//	    Workflows: workflows,
//	    Launcher:  orch,
//	    Logger:    logger,
//	})
//
//	// Вызывается каждый тик (по умолчанию раз в 30 секунд)
//	if err := sched.Tick(ctx); err != nil {
//	    logger.Error("scheduler tick failed", "error", err)
//	}
package trigger
