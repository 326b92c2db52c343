package runs

import (
	"errors"
	"fmt"
	"sync"

	"MLPDev/pkg/core/trainer/utils"
	"MLPDev/pkg/training"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrRunNotFound 训练任务不存在
var ErrRunNotFound = errors.New("训练任务不存在")

// Manager 训练任务管理器
type Manager struct {
	mu      sync.RWMutex
	runs    map[string]*Run
	order   []string
	metrics *training.Metrics
	wg      sync.WaitGroup
}

// NewManager 创建训练任务管理器，metrics 可以为 nil
func NewManager(metrics *training.Metrics) *Manager {
	return &Manager{
		runs:    make(map[string]*Run),
		metrics: metrics,
	}
}

// Start 校验配置后在后台开始训练
func (m *Manager) Start(cfg *training.Config) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	run := newRun(uuid.New().String(), cfg)

	m.mu.Lock()
	m.runs[run.ID] = run
	m.order = append(m.order, run.ID)
	m.mu.Unlock()

	log.Info().Str("run", run.ID).Int("epochs", cfg.Epochs).Msg("创建训练任务")

	m.wg.Add(1)
	go m.execute(run)
	return run, nil
}

func (m *Manager) execute(run *Run) {
	defer m.wg.Done()
	run.start()

	reporters := training.MultiReporter{run}
	if m.metrics != nil {
		reporters = append(reporters, m.metrics.Reporter(run.ID))
	}
	res, err := training.TrainModel(run.Config, reporters)

	// 指标先于 Done 更新，等待 Done 的调用方能看到最终的计数
	if m.metrics != nil {
		status := utils.StatusCompleted
		if err != nil {
			status = utils.StatusFailed
		}
		m.metrics.RunFinished(string(status))
	}
	run.finish(res, err)
	if err != nil {
		log.Error().Err(err).Str("run", run.ID).Msg("训练任务失败")
		return
	}
	log.Info().
		Str("run", run.ID).
		Float64("train_accuracy", res.TrainAccuracy).
		Float64("validation_accuracy", res.ValAccuracy).
		Msg("训练任务完成")
}

// Get 根据ID获取训练任务
func (m *Manager) Get(id string) (*Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, nil
}

// List 按创建顺序返回所有训练任务
func (m *Manager) List() []utils.RunSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	summaries := make([]utils.RunSummary, 0, len(m.order))
	for _, id := range m.order {
		summaries = append(summaries, m.runs[id].Summary())
	}
	return summaries
}

// Counts 各状态的训练任务数量
func (m *Manager) Counts() map[utils.Status]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[utils.Status]int)
	for _, run := range m.runs {
		counts[run.Status()]++
	}
	return counts
}

// Wait 等待所有训练任务结束
func (m *Manager) Wait() {
	m.wg.Wait()
}
