package training

import (
	"fmt"
	"math/rand/v2"
	"time"

	"MLPDev/pkg/dataProcess"
	"MLPDev/pkg/network"

	"github.com/rs/zerolog/log"
)

// Result 一次训练的结果
type Result struct {
	Network           *network.NeuronNetwork
	History           *network.History
	InitialLoss       float64
	TrainAccuracy     float64
	ValAccuracy       float64
	TrainDuration     time.Duration
	InferenceDuration time.Duration
}

// NewSource 由种子创建随机源，数据生成和权重初始化共用同一个随机源
func NewSource(seed uint64) rand.Source {
	return rand.NewPCG(seed, seed)
}

// PrepareData 生成或载入数据集，并按比例划分为训练集和验证集
func PrepareData(cfg *Config, src rand.Source) (*dataProcess.Dataset, *dataProcess.Dataset, error) {
	var (
		ds  *dataProcess.Dataset
		err error
	)
	switch cfg.Dataset {
	case DatasetCSV:
		ds, err = dataProcess.LoadCSV(cfg.FeaturesPath, cfg.LabelsPath)
	case DatasetSeparable:
		ds, err = dataProcess.LinearlySeparable(cfg.Samples, cfg.Features, src)
	default:
		ds, err = dataProcess.RandomBinary(cfg.Samples, cfg.Features, src)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("生成数据集失败: %w", err)
	}
	if ds.Features() != cfg.Features || ds.Outputs() != 1 {
		return nil, nil, fmt.Errorf("%w: 数据集为 (%d -> %d), 配置为 (%d -> 1)",
			ErrInvalidConfig, ds.Features(), ds.Outputs(), cfg.Features)
	}
	return ds.Split(cfg.TrainSplit)
}

// BuildNetwork 按配置创建网络
func BuildNetwork(cfg *Config, src rand.Source) (*network.NeuronNetwork, error) {
	specs, err := cfg.LayerSpecs()
	if err != nil {
		return nil, err
	}
	return network.NewNetworkFromSpecs(specs, src)
}

// TrainModel 训练模型
func TrainModel(cfg *Config, reporter network.Reporter) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	lossFunc, err := network.ParseLoss(cfg.Loss)
	if err != nil {
		return nil, err
	}

	src := NewSource(cfg.Seed)
	// 准备训练数据和验证数据
	trainSet, valSet, err := PrepareData(cfg, src)
	if err != nil {
		return nil, err
	}
	nn, err := BuildNetwork(cfg, src)
	if err != nil {
		return nil, fmt.Errorf("创建网络失败: %w", err)
	}
	log.Info().
		Int("train", trainSet.Len()).
		Int("validation", valSet.Len()).
		Str("network", nn.String()).
		Msg("训练数据准备完成")

	// 训练前评估
	out, err := nn.FeedForward(trainSet.X)
	if err != nil {
		return nil, err
	}
	initialLoss := network.MeanLoss(lossFunc, trainSet.Y, out)
	initialAccuracy, err := nn.Accuracy(valSet.X, valSet.Y)
	if err != nil {
		return nil, err
	}
	log.Info().Float64("loss", initialLoss).Float64("accuracy", initialAccuracy).Msg("训练前")

	// 训练模型
	startTrain := time.Now()
	history, err := nn.Train(trainSet.X, trainSet.Y, valSet.X, valSet.Y, lossFunc, cfg.Options(), reporter)
	elapsed := time.Since(startTrain)
	if err != nil {
		return &Result{Network: nn, History: history, InitialLoss: initialLoss, TrainDuration: elapsed}, err
	}
	log.Info().Dur("elapsed", elapsed).Msg("训练耗时")

	// 训练后评估
	startInference := time.Now()
	trainAcc, err := nn.Accuracy(trainSet.X, trainSet.Y)
	if err != nil {
		return nil, err
	}
	valAcc, err := nn.Accuracy(valSet.X, valSet.Y)
	if err != nil {
		return nil, err
	}
	elapsedInference := time.Since(startInference)
	log.Info().Dur("elapsed", elapsedInference).Msg("推理耗时")
	log.Info().
		Float64("train_accuracy", trainAcc).
		Float64("validation_accuracy", valAcc).
		Msg("训练后")

	return &Result{
		Network:           nn,
		History:           history,
		InitialLoss:       initialLoss,
		TrainAccuracy:     trainAcc,
		ValAccuracy:       valAcc,
		TrainDuration:     elapsed,
		InferenceDuration: elapsedInference,
	}, nil
}
