package sys_manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xpanvictor/avatarchat/pkg/Logger"
)

// SystemTask represents a background task that can be executed
type SystemTask interface {
	// Execute runs the task
	Execute(ctx context.Context) error
	// GetName returns the task name for logging
	GetName() string
	// GetInterval returns how often this task should run
	GetInterval() time.Duration
}

const taskTimeout = 30 * time.Second

// SystemManager schedules background system tasks on a cron runner.
type SystemManager struct {
	tasks   []SystemTask
	cron    *cron.Cron
	logger  *Logger.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

func NewSystemManager(logger *Logger.Logger) *SystemManager {
	ctx, cancel := context.WithCancel(context.Background())
	cl := cronLogger{logger}

	return &SystemManager{
		tasks: make([]SystemTask, 0),
		cron: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// RegisterTask adds a new task to be managed. Tasks registered after Start
// are scheduled immediately.
func (sm *SystemManager) RegisterTask(task SystemTask) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		if err := sm.schedule(task); err != nil {
			return err
		}
	}
	sm.tasks = append(sm.tasks, task)
	sm.logger.Infof("Registered system task: %s (interval: %s)", task.GetName(), task.GetInterval())
	return nil
}

// Start runs every task once and then on its schedule.
func (sm *SystemManager) Start() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.running {
		return fmt.Errorf("system manager is already running")
	}

	for _, task := range sm.tasks {
		if err := sm.schedule(task); err != nil {
			return err
		}
	}
	sm.cron.Start()
	sm.running = true
	sm.logger.Infof("Starting system manager with %d tasks", len(sm.tasks))
	return nil
}

// Stop waits for running jobs to return.
func (sm *SystemManager) Stop() error {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if !sm.running {
		return nil
	}

	sm.logger.Info("Stopping system manager...")
	sm.cancel()
	<-sm.cron.Stop().Done()
	sm.wg.Wait()
	sm.running = false
	sm.logger.Info("System manager stopped")
	return nil
}

func (sm *SystemManager) IsRunning() bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.running
}

func (sm *SystemManager) GetTaskCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.tasks)
}

func (sm *SystemManager) schedule(task SystemTask) error {
	interval := task.GetInterval()
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", task.GetName())
	}
	if _, err := sm.cron.AddFunc("@every "+interval.String(), func() { sm.executeTask(task) }); err != nil {
		return fmt.Errorf("task %s: %w", task.GetName(), err)
	}

	sm.wg.Add(1)
	go func() {
		defer sm.wg.Done()
		sm.executeTask(task)
	}()
	return nil
}

// executeTask safely executes a task with error handling and logging
func (sm *SystemManager) executeTask(task SystemTask) {
	if sm.ctx.Err() != nil {
		return
	}
	taskName := task.GetName()
	start := time.Now()

	sm.logger.Debugf("Executing system task: %s", taskName)

	taskCtx, cancel := context.WithTimeout(sm.ctx, taskTimeout)
	defer cancel()

	err := task.Execute(taskCtx)
	duration := time.Since(start)

	if err != nil {
		sm.logger.Errorf("System task %s failed after %s: %v", taskName, duration, err)
	} else {
		sm.logger.Debugf("System task %s completed in %s", taskName, duration)
	}
}

// cronLogger adapts the zap logger to cron.Logger.
type cronLogger struct {
	l *Logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw("cron: "+msg, append(keysAndValues, "error", err)...)
}
