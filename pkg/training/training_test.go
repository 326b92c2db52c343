package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"MLPDev/pkg/network"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallConfig() *Config {
	return &Config{
		Seed:       7,
		Dataset:    DatasetSeparable,
		Samples:    100,
		Features:   3,
		TrainSplit: 0.8,
		Layers: []LayerConfig{
			{In: 3, Out: 4, Activation: "relu"},
			{In: 4, Out: 1, Activation: "sigmoid"},
		},
		Loss:         "cross_entropy",
		LearningRate: 0.05,
		BatchSize:    10,
		Epochs:       4,
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	specs, err := cfg.LayerSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 4)
	assert.Equal(t, network.ReLU, specs[0].Activation)
	assert.Equal(t, network.Sigmoid, specs[3].Activation)
	assert.Equal(t, network.TrainOptions{LearningRate: 1e-4, BatchSize: 32, Epochs: 300}, cfg.Options())
}

func TestConfig_Validate(t *testing.T) {
	cases := map[string]func(c *Config){
		"dataset":       func(c *Config) { c.Dataset = "mnist" },
		"samples":       func(c *Config) { c.Samples = 0 },
		"features":      func(c *Config) { c.Features = -1 },
		"split":         func(c *Config) { c.TrainSplit = 1 },
		"tiny split":    func(c *Config) { c.TrainSplit = 0.001 },
		"learning rate": func(c *Config) { c.LearningRate = 0 },
		"batch size":    func(c *Config) { c.BatchSize = 0 },
		"epochs":        func(c *Config) { c.Epochs = 0 },
		"loss":          func(c *Config) { c.Loss = "hinge" },
		"no layers":     func(c *Config) { c.Layers = nil },
		"first layer":   func(c *Config) { c.Layers[0].In = 5 },
		"adjacent":      func(c *Config) { c.Layers[1].In = 3 },
		"output":        func(c *Config) { c.Layers[1].Out = 2 },
		"activation":    func(c *Config) { c.Layers[0].Activation = "swish" },
		"csv paths":     func(c *Config) { c.Dataset = DatasetCSV },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := smallConfig()
			mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"epochs": 5, "learning_rate": 0.01, "seed": 3}`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Epochs)
	assert.Equal(t, 0.01, cfg.LearningRate)
	assert.Equal(t, uint64(3), cfg.Seed)
	// 未出现的字段保留默认值
	assert.Equal(t, 32, cfg.BatchSize)
	assert.Len(t, cfg.Layers, 4)

	require.NoError(t, os.WriteFile(path, []byte(`{"batch_size": -1}`), 0o644))
	_, err = LoadConfig(path)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o644))
	_, err = LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestTrainModel(t *testing.T) {
	var epochs []int
	reporter := network.ReporterFunc(func(epoch, _ int, _, _ float64) {
		epochs = append(epochs, epoch)
	})

	res, err := TrainModel(smallConfig(), reporter)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, epochs)
	assert.Len(t, res.History.Training, 4)
	assert.Len(t, res.History.Validation, 4)
	assert.GreaterOrEqual(t, res.TrainAccuracy, 0.0)
	assert.LessOrEqual(t, res.TrainAccuracy, 100.0)
	assert.GreaterOrEqual(t, res.ValAccuracy, 0.0)
	assert.LessOrEqual(t, res.ValAccuracy, 100.0)
	assert.False(t, math.IsNaN(res.InitialLoss))

	// 同一个种子得到相同的结果
	again, err := TrainModel(smallConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, res.History.Training, again.History.Training)
	assert.Equal(t, res.ValAccuracy, again.ValAccuracy)
}

func TestTrainModel_InvalidConfig(t *testing.T) {
	cfg := smallConfig()
	cfg.Layers[0].In = 9
	_, err := TrainModel(cfg, nil)
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestPrepareData(t *testing.T) {
	cfg := smallConfig()
	train, val, err := PrepareData(cfg, NewSource(cfg.Seed))
	require.NoError(t, err)
	assert.Equal(t, 80, train.Len())
	assert.Equal(t, 20, val.Len())
	assert.Equal(t, 3, train.Features())
}

func TestPrepareData_CSV(t *testing.T) {
	dir := t.TempDir()
	var features, labels strings.Builder
	for i := 0; i < 10; i++ {
		x := float64(i) / 10
		fmt.Fprintf(&features, "%.1f,%.1f,%.1f\n", x, x+0.1, x+0.2)
		fmt.Fprintf(&labels, "%d\n", i%2)
	}
	cfg := smallConfig()
	cfg.Dataset = DatasetCSV
	cfg.FeaturesPath = filepath.Join(dir, "x.csv")
	cfg.LabelsPath = filepath.Join(dir, "y.csv")
	require.NoError(t, os.WriteFile(cfg.FeaturesPath, []byte(features.String()), 0o644))
	require.NoError(t, os.WriteFile(cfg.LabelsPath, []byte(labels.String()), 0o644))
	require.NoError(t, cfg.Validate())

	train, val, err := PrepareData(cfg, NewSource(cfg.Seed))
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, val.Len())
	assert.Equal(t, 0.8, val.X.At(0, 0))

	res, err := TrainModel(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, res.History.Training, cfg.Epochs)

	cfg.Features = 4
	cfg.Layers[0].In = 4
	_, _, err = PrepareData(cfg, NewSource(cfg.Seed))
	assert.True(t, errors.Is(err, ErrInvalidConfig))
}

func TestMultiReporter(t *testing.T) {
	var a, b int
	m := MultiReporter{
		network.ReporterFunc(func(int, int, float64, float64) { a++ }),
		nil,
		network.ReporterFunc(func(int, int, float64, float64) { b++ }),
	}
	m.Report(1, 2, 0.5, 0.6)
	m.Report(2, 2, 0.4, 0.5)
	assert.Equal(t, 2, a)
	assert.Equal(t, 2, b)
}

func TestEpochEvent_NonFiniteAsNull(t *testing.T) {
	b, err := json.Marshal(EpochEvent{Epoch: 3, Epochs: 5, TrainingLoss: math.NaN(), ValidationLoss: 0.25})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Nil(t, decoded["training_loss"])
	assert.Equal(t, 0.25, decoded["validation_loss"])
	assert.Equal(t, 3.0, decoded["epoch"])
}

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster("run-1", 4)
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	b.Report(1, 3, 0.9, 0.8)
	event := <-first
	assert.Equal(t, "run-1", event.RunID)
	assert.Equal(t, 1, event.Epoch)
	assert.Equal(t, 0.9, event.TrainingLoss)
	assert.Equal(t, 1, (<-second).Epoch)

	cancelFirst()
	_, ok := <-first
	assert.False(t, ok)
	assert.Equal(t, 1, b.Subscribers())
	b.Report(2, 3, 0.7, 0.6)

	b.Close()
	assert.Equal(t, 2, (<-second).Epoch)
	_, ok = <-second
	assert.False(t, ok)
	cancelSecond()

	late, cancelLate := b.Subscribe()
	defer cancelLate()
	_, ok = <-late
	assert.False(t, ok)
}

// 订阅者不读取时 Report 不阻塞，多余的事件被丢弃
func TestBroadcaster_SlowSubscriber(t *testing.T) {
	b := NewBroadcaster("run", 2)
	events, cancel := b.Subscribe()
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; i <= 10; i++ {
			b.Report(i, 10, 0, 0)
		}
	}()
	wg.Wait()

	assert.Len(t, events, 2)
	assert.Equal(t, 1, (<-events).Epoch)
	assert.Equal(t, 2, (<-events).Epoch)
}
