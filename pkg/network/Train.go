package network

import (
	"fmt"
	"math"

	"MLPDev/pkg/dataProcess"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
)

// Reporter 每一轮训练结束后接收训练损失和验证损失，返回值不影响训练
type Reporter interface {
	Report(epoch, epochs int, trainLoss, valLoss float64)
}

// ReporterFunc 把普通函数适配为 Reporter
type ReporterFunc func(epoch, epochs int, trainLoss, valLoss float64)

func (f ReporterFunc) Report(epoch, epochs int, trainLoss, valLoss float64) {
	f(epoch, epochs, trainLoss, valLoss)
}

// TrainOptions Mini-batch SGD 的超参数
type TrainOptions struct {
	LearningRate float64
	BatchSize    int
	Epochs       int
}

// DefaultTrainOptions 默认超参数
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate: 1e-3,
		BatchSize:    16,
		Epochs:       32,
	}
}

// History 每一轮的训练损失和验证损失
type History struct {
	Training   []float64
	Validation []float64
}

// checkPair 检查一组数据与网络的输入输出维度一致
func (nn *NeuronNetwork) checkPair(name string, x, y *mat.Dense) error {
	xr, xc := x.Dims()
	yr, yc := y.Dims()
	if xr != yr {
		return fmt.Errorf("%w: %s 特征有 %d 行, 标签有 %d 行", ErrShapeMismatch, name, xr, yr)
	}
	if xc != nn.InputSize() || yc != nn.OutputSize() {
		return fmt.Errorf("%w: %s 为 (%d -> %d), 网络为 (%d -> %d)",
			ErrShapeMismatch, name, xc, yc, nn.InputSize(), nn.OutputSize())
	}
	return nil
}

// Train 使用 Mini-batch SGD 训练神经网络
// 批次按原始顺序划分，不打乱；valX 为 nil 时跳过验证，验证损失记为 0
// 出现 NaN/Inf 损失时中止训练，返回已有的历史和 ErrNumericInstability
func (nn *NeuronNetwork) Train(trainX, trainY, valX, valY *mat.Dense, lossFunc LossFunc, opts TrainOptions, reporter Reporter) (*History, error) {
	if trainX == nil || trainY == nil || trainX.IsEmpty() {
		return nil, ErrEmptyDataset
	}
	if err := nn.checkPair("训练集", trainX, trainY); err != nil {
		return nil, err
	}
	if valX != nil {
		if valY == nil {
			return nil, fmt.Errorf("%w: 验证集缺少标签", ErrShapeMismatch)
		}
		if err := nn.checkPair("验证集", valX, valY); err != nil {
			return nil, err
		}
	}
	if opts.LearningRate <= 0 || opts.Epochs < 0 {
		return nil, fmt.Errorf("无效的训练参数: %+v", opts)
	}

	batches, err := dataProcess.BatchGenerator(trainX, trainY, opts.BatchSize)
	if err != nil {
		return nil, err
	}
	numSamples, outputs := trainY.Dims()

	history := &History{
		Training:   make([]float64, 0, opts.Epochs),
		Validation: make([]float64, 0, opts.Epochs),
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		totalLoss := 0.0
		var lastGrads *Gradients
		batches.Reset()
		// 遍历每个mini-batch
		for batches.Next() {
			batchX, batchY := batches.Batch()

			pass, err := nn.Forward(batchX)
			if err != nil {
				return history, err
			}
			yPred := pass.Output()
			totalLoss += MeanLoss(lossFunc, batchY, yPred)

			// 标签截断到与预测相同的行数
			rows, _ := yPred.Dims()
			target := batchY.Slice(0, rows, 0, outputs)

			grads, err := nn.Backward(pass, lossFunc.Derivative(target, yPred))
			if err != nil {
				return history, err
			}
			if err := nn.UpdateParameters(grads, opts.LearningRate); err != nil {
				return history, err
			}
			lastGrads = grads
		}
		// 级别未开启时不会格式化梯度
		log.Trace().Int("epoch", epoch+1).Msgf("最后一个批次的梯度:\n%v", lastGrads)

		trainLoss := totalLoss / float64(numSamples)
		history.Training = append(history.Training, trainLoss)

		valLoss := 0.0
		if valX != nil {
			valOut, err := nn.FeedForward(valX)
			if err != nil {
				return history, err
			}
			valLoss = MeanLoss(lossFunc, valY, valOut)
		}
		history.Validation = append(history.Validation, valLoss)

		if reporter != nil {
			reporter.Report(epoch+1, opts.Epochs, trainLoss, valLoss)
		}

		if !isFinite(trainLoss) || !isFinite(valLoss) {
			return history, fmt.Errorf("%w: 第 %d 轮训练损失 %v, 验证损失 %v",
				ErrNumericInstability, epoch+1, trainLoss, valLoss)
		}
	}
	return history, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
