package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// 交叉熵裁剪边界，防止 log(0)
const epsilon = 1e-15

// LossFunc 损失函数，yTrue 与 yPred 的形状都是 (batch, outputs)
type LossFunc interface {
	Loss(yTrue, yPred mat.Matrix) *mat.Dense
	Derivative(yTrue, yPred mat.Matrix) *mat.Dense
}

// SquaredError 平方误差
type SquaredError struct{}

// Loss 逐元素计算 0.5*(p-y)^2
func (SquaredError) Loss(yTrue, yPred mat.Matrix) *mat.Dense {
	var diff mat.Dense
	diff.Sub(yPred, yTrue)
	diff.Apply(func(_, _ int, v float64) float64 { return 0.5 * v * v }, &diff)
	return &diff
}

// Derivative (p-y)/batch
func (SquaredError) Derivative(yTrue, yPred mat.Matrix) *mat.Dense {
	r, _ := yPred.Dims()
	var diff mat.Dense
	diff.Sub(yPred, yTrue)
	diff.Scale(1/float64(r), &diff)
	return &diff
}

func (SquaredError) String() string { return "squared_error" }

// CrossEntropy 交叉熵
type CrossEntropy struct{}

func clip(v float64) float64 {
	return math.Min(math.Max(v, epsilon), 1-epsilon)
}

// Loss 返回每个样本的损失 -sum(y*log(p))，形状 (batch, 1)
// 对其取平均即为整个批次的交叉熵
func (CrossEntropy) Loss(yTrue, yPred mat.Matrix) *mat.Dense {
	r, c := yPred.Dims()
	out := mat.NewDense(r, 1, nil)
	for i := 0; i < r; i++ {
		sum := 0.0
		for j := 0; j < c; j++ {
			sum += yTrue.At(i, j) * math.Log(clip(yPred.At(i, j)))
		}
		out.Set(i, 0, -sum)
	}
	return out
}

// Derivative -y/p，不除以批次大小
func (CrossEntropy) Derivative(yTrue, yPred mat.Matrix) *mat.Dense {
	r, c := yPred.Dims()
	out := mat.NewDense(r, c, nil)
	out.Apply(func(i, j int, p float64) float64 {
		return -yTrue.At(i, j) / clip(p)
	}, yPred)
	return out
}

func (CrossEntropy) String() string { return "cross_entropy" }

// MeanLoss 损失矩阵所有元素的平均值
func MeanLoss(lf LossFunc, yTrue, yPred mat.Matrix) float64 {
	l := lf.Loss(yTrue, yPred)
	r, c := l.Dims()
	return mat.Sum(l) / float64(r*c)
}

// ParseLoss 根据名称解析损失函数
func ParseLoss(name string) (LossFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "squared_error", "mse", "squared":
		return SquaredError{}, nil
	case "cross_entropy", "crossentropy", "ce":
		return CrossEntropy{}, nil
	}
	return nil, fmt.Errorf("未知的损失函数: %q", name)
}
