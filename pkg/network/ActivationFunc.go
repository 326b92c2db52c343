package network

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含激活函数的定义
所有激活函数的导数都以该层的输出（激活值）作为参数，反向传播时直接使用前向传播保存的激活值
*/

// Activation 激活函数的种类
type Activation int

const (
	Identity Activation = iota
	Sigmoid
	ReLU
	Tanh
	Softmax
)

var activationNames = map[Activation]string{
	Identity: "identity",
	Sigmoid:  "sigmoid",
	ReLU:     "relu",
	Tanh:     "tanh",
	Softmax:  "softmax",
}

func (a Activation) String() string {
	if name, ok := activationNames[a]; ok {
		return name
	}
	return fmt.Sprintf("activation(%d)", int(a))
}

func (a Activation) valid() bool {
	_, ok := activationNames[a]
	return ok
}

// ParseActivation 根据名称解析激活函数，linear 作为 identity 的别名
func ParseActivation(name string) (Activation, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "linear" {
		return Identity, nil
	}
	for a, s := range activationNames {
		if s == n {
			return a, nil
		}
	}
	return 0, fmt.Errorf("未知的激活函数: %q", name)
}

// sigmoid 按符号分支计算，避免 exp 溢出
func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Forward 对预激活值 z 逐元素计算激活值（softmax 按行计算）
func (a Activation) Forward(z mat.Matrix) *mat.Dense {
	r, c := z.Dims()
	out := mat.NewDense(r, c, nil)
	switch a {
	case Identity:
		out.Copy(z)
	case Sigmoid:
		out.Apply(func(_, _ int, v float64) float64 { return sigmoid(v) }, z)
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 { return math.Max(0, v) }, z)
	case Tanh:
		out.Apply(func(_, _ int, v float64) float64 { return math.Tanh(v) }, z)
	case Softmax:
		for i := 0; i < r; i++ {
			maxVal := math.Inf(-1)
			for j := 0; j < c; j++ {
				maxVal = math.Max(maxVal, z.At(i, j))
			}
			sum := 0.0
			row := out.RawRowView(i)
			for j := 0; j < c; j++ {
				row[j] = math.Exp(z.At(i, j) - maxVal)
				sum += row[j]
			}
			for j := range row {
				row[j] /= sum
			}
		}
	default:
		panic(fmt.Sprintf("network: 未知的激活函数 %v", a))
	}
	return out
}

// Derivative 以激活值 act 为参数计算导数，形状与输入相同
// softmax 只返回雅可比矩阵的对角线，完整的链式法则见 Backprop
func (a Activation) Derivative(act mat.Matrix) *mat.Dense {
	r, c := act.Dims()
	out := mat.NewDense(r, c, nil)
	switch a {
	case Identity:
		out.Apply(func(_, _ int, _ float64) float64 { return 1 }, act)
	case Sigmoid, Softmax:
		out.Apply(func(_, _ int, v float64) float64 { return v * (1 - v) }, act)
	case ReLU:
		out.Apply(func(_, _ int, v float64) float64 {
			if v > 0 {
				return 1
			}
			return 0
		}, act)
	case Tanh:
		out.Apply(func(_, _ int, v float64) float64 { return 1 - v*v }, act)
	default:
		panic(fmt.Sprintf("network: 未知的激活函数 %v", a))
	}
	return out
}

// Backprop 由 dL/dA 计算 dL/dZ
func (a Activation) Backprop(act, grad mat.Matrix) *mat.Dense {
	if a != Softmax {
		d := a.Derivative(act)
		d.MulElem(d, grad)
		return d
	}
	// softmax: dZ_i = a_i * (g_i - sum_j g_j*a_j)
	r, c := act.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		dot := 0.0
		for j := 0; j < c; j++ {
			dot += grad.At(i, j) * act.At(i, j)
		}
		row := out.RawRowView(i)
		for j := 0; j < c; j++ {
			row[j] = act.At(i, j) * (grad.At(i, j) - dot)
		}
	}
	return out
}
