package training

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"MLPDev/pkg/network"
)

// ErrInvalidConfig 训练配置不合法
var ErrInvalidConfig = errors.New("训练配置不合法")

const (
	DatasetRandom    = "random"
	DatasetSeparable = "separable"
	// DatasetCSV 从 FeaturesPath 和 LabelsPath 载入
	DatasetCSV = "csv"

	// 单次训练的规模上限
	maxSamples = 1_000_000
	maxEpochs  = 100_000
)

// LayerConfig 一层的配置
type LayerConfig struct {
	In         int    `json:"in"`
	Out        int    `json:"out"`
	Activation string `json:"activation"`
}

// Config 一次训练的完整配置
type Config struct {
	Seed         uint64        `json:"seed"`
	Dataset      string        `json:"dataset"`
	FeaturesPath string        `json:"features_path,omitempty"`
	LabelsPath   string        `json:"labels_path,omitempty"`
	Samples      int           `json:"samples"`
	Features     int           `json:"features"`
	TrainSplit   float64       `json:"train_split"`
	Layers       []LayerConfig `json:"layers"`
	Loss         string        `json:"loss"`
	LearningRate float64       `json:"learning_rate"`
	BatchSize    int           `json:"batch_size"`
	Epochs       int           `json:"epochs"`
}

// DefaultConfig 1000个10维样本，80%用于训练，三层ReLU隐藏层和Sigmoid输出
func DefaultConfig() *Config {
	return &Config{
		Seed:       42,
		Dataset:    DatasetRandom,
		Samples:    1000,
		Features:   10,
		TrainSplit: 0.8,
		Layers: []LayerConfig{
			{In: 10, Out: 32, Activation: "relu"},
			{In: 32, Out: 32, Activation: "relu"},
			{In: 32, Out: 32, Activation: "relu"},
			{In: 32, Out: 1, Activation: "sigmoid"},
		},
		Loss:         "cross_entropy",
		LearningRate: 1e-4,
		BatchSize:    32,
		Epochs:       300,
	}
}

// LoadConfig 读取JSON配置文件，文件中没有的字段保留默认值
func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件 %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("无法解析配置文件 %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate 检查配置，错误都包装了 ErrInvalidConfig
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if c.Features <= 0 {
		return invalid("特征数必须为正数: %d", c.Features)
	}
	if c.TrainSplit <= 0 || c.TrainSplit >= 1 {
		return invalid("划分比例必须在 (0,1) 之间: %v", c.TrainSplit)
	}
	switch c.Dataset {
	case DatasetRandom, DatasetSeparable:
		if c.Samples <= 0 || c.Samples > maxSamples {
			return invalid("样本数 %d 超出范围", c.Samples)
		}
		if split := int(c.TrainSplit * float64(c.Samples)); split == 0 || split == c.Samples {
			return invalid("%d 个样本无法按 %v 划分", c.Samples, c.TrainSplit)
		}
	case DatasetCSV:
		// 样本数由文件决定
		if c.FeaturesPath == "" || c.LabelsPath == "" {
			return invalid("csv 数据集需要 features_path 和 labels_path")
		}
	default:
		return invalid("未知的数据集 %q", c.Dataset)
	}
	if c.LearningRate <= 0 {
		return invalid("学习率必须为正数: %v", c.LearningRate)
	}
	if c.BatchSize <= 0 {
		return invalid("批次大小必须为正数: %d", c.BatchSize)
	}
	if c.Epochs <= 0 || c.Epochs > maxEpochs {
		return invalid("训练轮数 %d 超出范围", c.Epochs)
	}
	if _, err := network.ParseLoss(c.Loss); err != nil {
		return invalid("%v", err)
	}
	if len(c.Layers) == 0 {
		return invalid("网络至少需要一层")
	}
	if c.Layers[0].In != c.Features {
		return invalid("第一层输入 %d 与特征数 %d 不一致", c.Layers[0].In, c.Features)
	}
	// 合成数据集的标签只有一列
	if last := c.Layers[len(c.Layers)-1]; last.Out != 1 {
		return invalid("最后一层输出必须为 1, 实际为 %d", last.Out)
	}
	for i, l := range c.Layers {
		if l.In <= 0 || l.Out <= 0 {
			return invalid("第 %d 层尺寸必须为正数 (%d, %d)", i, l.In, l.Out)
		}
		if i > 0 && c.Layers[i-1].Out != l.In {
			return invalid("第 %d 层输出 %d 与第 %d 层输入 %d 不一致", i-1, c.Layers[i-1].Out, i, l.In)
		}
		if _, err := network.ParseActivation(l.Activation); err != nil {
			return invalid("第 %d 层: %v", i, err)
		}
	}
	return nil
}

// LayerSpecs 转换为网络层的描述
func (c *Config) LayerSpecs() ([]network.LayerSpec, error) {
	specs := make([]network.LayerSpec, len(c.Layers))
	for i, l := range c.Layers {
		act, err := network.ParseActivation(l.Activation)
		if err != nil {
			return nil, err
		}
		specs[i] = network.LayerSpec{InputSize: l.In, OutputSize: l.Out, Activation: act}
	}
	return specs, nil
}

// Options 训练超参数
func (c *Config) Options() network.TrainOptions {
	return network.TrainOptions{
		LearningRate: c.LearningRate,
		BatchSize:    c.BatchSize,
		Epochs:       c.Epochs,
	}
}
