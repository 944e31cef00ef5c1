// Package scheduler runs periodic background tasks inside the server process.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// Task is a unit of periodic work. RunAtStart runs it once as soon as its
// worker starts instead of waiting a full interval.
type Task struct {
	Name       string
	Interval   time.Duration
	RunAtStart bool
	Run        func(ctx context.Context) error
}

// Manager runs tasks on their intervals until stopped.
type Manager struct {
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewManager creates a manager. Tasks with a non-positive interval are skipped.
func NewManager(tasks ...Task) *Manager {
	m := &Manager{}
	for _, t := range tasks {
		if t.Interval <= 0 || t.Run == nil {
			log.Infof("[Scheduler] Task %s disabled", t.Name)
			continue
		}
		m.tasks = append(m.tasks, t)
	}
	return m
}

// Start launches one worker per task. Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	log.Infof("[Scheduler] Starting %d background task(s)", len(m.tasks))

	for _, t := range m.tasks {
		m.wg.Add(1)
		go m.worker(ctx, t)
	}
}

// Stop cancels all workers and waits for in-flight runs to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	log.Info("[Scheduler] Stopping background tasks...")
	m.cancel()
	m.cancel = nil
	m.running = false
	m.wg.Wait()
	log.Info("[Scheduler] Stopped successfully")
}

func (m *Manager) worker(ctx context.Context, t Task) {
	defer m.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	log.Infof("[Scheduler] Started %s worker (interval: %s)", t.Name, t.Interval)

	if t.RunAtStart {
		run(ctx, t)
	}
	for {
		select {
		case <-ctx.Done():
			log.Infof("[Scheduler] %s worker stopping", t.Name)
			return
		case <-ticker.C:
			run(ctx, t)
		}
	}
}

func run(ctx context.Context, t Task) {
	started := time.Now()
	if err := t.Run(ctx); err != nil {
		log.Errorf("[Scheduler] %s failed after %s: %v", t.Name, time.Since(started), err)
		return
	}
	log.Debugf("[Scheduler] %s finished in %s", t.Name, time.Since(started))
}
