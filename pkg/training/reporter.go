package training

import (
	"encoding/json"
	"math"
	"sync"
	"time"

	"MLPDev/pkg/network"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// EpochEvent 一轮训练结束时的损失
type EpochEvent struct {
	RunID          string    `json:"run_id,omitempty"`
	Epoch          int       `json:"epoch"`
	Epochs         int       `json:"epochs"`
	TrainingLoss   float64   `json:"training_loss"`
	ValidationLoss float64   `json:"validation_loss"`
	Time           time.Time `json:"time"`
}

// MarshalJSON NaN/Inf 损失编码为 null
func (e EpochEvent) MarshalJSON() ([]byte, error) {
	type alias EpochEvent
	return json.Marshal(struct {
		alias
		TrainingLoss   *float64 `json:"training_loss"`
		ValidationLoss *float64 `json:"validation_loss"`
	}{
		alias:          alias(e),
		TrainingLoss:   finiteOrNil(e.TrainingLoss),
		ValidationLoss: finiteOrNil(e.ValidationLoss),
	})
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// MultiReporter 按顺序把每一轮的结果交给所有 Reporter
type MultiReporter []network.Reporter

func (m MultiReporter) Report(epoch, epochs int, trainLoss, valLoss float64) {
	for _, r := range m {
		if r != nil {
			r.Report(epoch, epochs, trainLoss, valLoss)
		}
	}
}

// ConsoleReporter 用日志输出训练进度
type ConsoleReporter struct {
	logger zerolog.Logger
}

func NewConsoleReporter(logger zerolog.Logger) *ConsoleReporter {
	return &ConsoleReporter{logger: logger}
}

func (c *ConsoleReporter) Report(epoch, epochs int, trainLoss, valLoss float64) {
	c.logger.Info().
		Int("epoch", epoch).
		Int("epochs", epochs).
		Float64("training_loss", trainLoss).
		Float64("validation_loss", valLoss).
		Msgf("Epoch %d/%d - Training Loss: %.4f - Validation Loss: %.4f", epoch, epochs, trainLoss, valLoss)
}

// Metrics 训练过程的 prometheus 指标，按 run 区分
type Metrics struct {
	TrainingLoss   *prometheus.GaugeVec
	ValidationLoss *prometheus.GaugeVec
	Epochs         *prometheus.CounterVec
	Runs           *prometheus.CounterVec
}

// NewMetrics 创建指标并注册到 reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TrainingLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mlp",
			Name:      "training_loss",
			Help:      "Training loss of the latest finished epoch.",
		}, []string{"run"}),
		ValidationLoss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "mlp",
			Name:      "validation_loss",
			Help:      "Validation loss of the latest finished epoch.",
		}, []string{"run"}),
		Epochs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlp",
			Name:      "epochs_total",
			Help:      "Number of finished epochs.",
		}, []string{"run"}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mlp",
			Name:      "runs_total",
			Help:      "Number of finished training runs by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.TrainingLoss, m.ValidationLoss, m.Epochs, m.Runs)
	return m
}

// Reporter 返回记录某个 run 的 Reporter
func (m *Metrics) Reporter(run string) network.Reporter {
	return network.ReporterFunc(func(_, _ int, trainLoss, valLoss float64) {
		m.TrainingLoss.WithLabelValues(run).Set(trainLoss)
		m.ValidationLoss.WithLabelValues(run).Set(valLoss)
		m.Epochs.WithLabelValues(run).Inc()
	})
}

// RunFinished 记录一个结束的 run
func (m *Metrics) RunFinished(status string) {
	m.Runs.WithLabelValues(status).Inc()
}

// Broadcaster 把每一轮的结果分发给所有订阅者
// 订阅者的缓冲区满时丢弃该事件，训练不会因为订阅者而阻塞
type Broadcaster struct {
	runID  string
	buffer int
	mu     sync.Mutex
	subs   map[chan EpochEvent]struct{}
	closed bool
}

func NewBroadcaster(runID string, buffer int) *Broadcaster {
	return &Broadcaster{
		runID:  runID,
		buffer: buffer,
		subs:   make(map[chan EpochEvent]struct{}),
	}
}

// Subscribe 返回事件通道和取消函数，Close 之后订阅得到的通道已关闭
func (b *Broadcaster) Subscribe() (<-chan EpochEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan EpochEvent, b.buffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	b.subs[ch] = struct{}{}
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}
}

func (b *Broadcaster) Report(epoch, epochs int, trainLoss, valLoss float64) {
	event := EpochEvent{
		RunID:          b.runID,
		Epoch:          epoch,
		Epochs:         epochs,
		TrainingLoss:   trainLoss,
		ValidationLoss: valLoss,
		Time:           time.Now(),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close 关闭所有订阅通道
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
		delete(b.subs, ch)
	}
}

// Subscribers 当前订阅者数量
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
