package runs

import (
	"sync"
	"time"

	"MLPDev/pkg/core/trainer/utils"
	"MLPDev/pkg/network"
	"MLPDev/pkg/training"
)

// 每个订阅者的事件缓冲区大小
const subscriberBuffer = 256

// Run 一次训练任务，训练本身在单独的协程中顺序执行
type Run struct {
	ID     string
	Config *training.Config

	mu          sync.RWMutex
	status      utils.Status
	history     network.History
	trainAcc    float64
	valAcc      float64
	err         string
	createdAt   time.Time
	startedAt   time.Time
	finishedAt  time.Time
	broadcaster *training.Broadcaster
	done        chan struct{}
}

func newRun(id string, cfg *training.Config) *Run {
	return &Run{
		ID:          id,
		Config:      cfg,
		status:      utils.StatusPending,
		createdAt:   time.Now(),
		broadcaster: training.NewBroadcaster(id, subscriberBuffer),
		done:        make(chan struct{}),
	}
}

// Report 记录一轮训练的损失并推送给订阅者
func (r *Run) Report(epoch, epochs int, trainLoss, valLoss float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history.Training = append(r.history.Training, trainLoss)
	r.history.Validation = append(r.history.Validation, valLoss)
	r.broadcaster.Report(epoch, epochs, trainLoss, valLoss)
}

func (r *Run) start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = utils.StatusRunning
	r.startedAt = time.Now()
}

func (r *Run) finish(res *training.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishedAt = time.Now()
	if err != nil {
		r.status = utils.StatusFailed
		r.err = err.Error()
	} else {
		r.status = utils.StatusCompleted
		r.trainAcc = res.TrainAccuracy
		r.valAcc = res.ValAccuracy
	}
	r.broadcaster.Close()
	close(r.done)
}

// Done 训练结束后关闭
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Status 当前状态
func (r *Run) Status() utils.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// Info 当前快照
func (r *Run) Info() utils.RunInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.infoLocked()
}

func (r *Run) infoLocked() utils.RunInfo {
	info := utils.RunInfo{
		ID:                 r.ID,
		Status:             r.status,
		Config:             r.Config,
		Epoch:              len(r.history.Training),
		TrainingLosses:     append([]float64{}, r.history.Training...),
		ValidationLosses:   append([]float64{}, r.history.Validation...),
		TrainAccuracy:      r.trainAcc,
		ValidationAccuracy: r.valAcc,
		Error:              r.err,
		CreatedAt:          r.createdAt,
	}
	if !r.startedAt.IsZero() {
		t := r.startedAt
		info.StartedAt = &t
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		info.FinishedAt = &t
	}
	return info
}

// Summary 简要信息
func (r *Run) Summary() utils.RunSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return utils.RunSummary{
		ID:        r.ID,
		Status:    r.status,
		Epoch:     len(r.history.Training),
		Epochs:    r.Config.Epochs,
		CreatedAt: r.createdAt,
	}
}

// Subscribe 同时返回当前快照和之后每一轮的事件，两者之间不会遗漏或重复
// 训练结束时通道被关闭
func (r *Run) Subscribe() (utils.RunInfo, <-chan training.EpochEvent, func()) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, cancel := r.broadcaster.Subscribe()
	return r.infoLocked(), ch, cancel
}
