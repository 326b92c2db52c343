package network

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件包含神经网络层的封装和该层的前向传播、反向传播
输入按行排列，每一行是一个样本，因此权重矩阵的大小为 InputSize*OutputSize
*/

// Layer 全连接层
type Layer struct {
	InputSize  int
	OutputSize int
	Weights    *mat.Dense    //该层的权重矩阵的大小就为InputSize*OutputSize
	Biases     *mat.VecDense //偏置向量
	Activation Activation
}

// LayerGradients 单层反向传播的结果
type LayerGradients struct {
	Weights *mat.Dense    // dL/dW，与 Weights 同形状
	Biases  *mat.VecDense // dL/db，与 Biases 同形状
	Delta   *mat.Dense    // dL/dZ，该层的误差项
	// InputDelta 传给下一层（更靠近输入的一层）的 dL/dA
	InputDelta *mat.Dense
}

// NewLayer 创建全连接层，src 为 nil 时使用全局随机源
func NewLayer(inputSize int, outputSize int, activation Activation, src rand.Source) (*Layer, error) {
	if inputSize <= 0 || outputSize <= 0 {
		return nil, fmt.Errorf("%w: 层尺寸必须为正数 (%d, %d)", ErrShapeMismatch, inputSize, outputSize)
	}
	if !activation.valid() {
		return nil, fmt.Errorf("未知的激活函数: %v", activation)
	}
	// 所有层统一使用HE初始化
	normal := distuv.Normal{
		Mu:    0,
		Sigma: math.Sqrt(2.0 / float64(inputSize)),
		Src:   src,
	}
	weights := mat.NewDense(inputSize, outputSize, nil)
	for i := 0; i < inputSize; i++ {
		for j := 0; j < outputSize; j++ {
			weights.Set(i, j, normal.Rand())
		}
	}
	return &Layer{
		InputSize:  inputSize,
		OutputSize: outputSize,
		Weights:    weights,
		Biases:     mat.NewVecDense(outputSize, nil),
		Activation: activation,
	}, nil
}

// preActivation 计算 Z = xW + b，偏置按行广播
func (l *Layer) preActivation(x mat.Matrix) (*mat.Dense, error) {
	r, c := x.Dims()
	if r == 0 {
		return nil, ErrEmptyDataset
	}
	if c != l.InputSize {
		return nil, fmt.Errorf("%w: 输入有 %d 列, 层需要 %d", ErrShapeMismatch, c, l.InputSize)
	}
	z := mat.NewDense(r, l.OutputSize, nil)
	z.Mul(x, l.Weights)
	bias := l.Biases.RawVector()
	for i := 0; i < r; i++ {
		row := z.RawRowView(i)
		for j := range row {
			row[j] += bias.Data[j*bias.Inc]
		}
	}
	return z, nil
}

// Forward 返回该层的激活值，形状 (batch, OutputSize)
func (l *Layer) Forward(x mat.Matrix) (*mat.Dense, error) {
	z, err := l.preActivation(x)
	if err != nil {
		return nil, err
	}
	return l.Activation.Forward(z), nil
}

// Backward 单层反向传播
// input 为该层的输入，activations 为同一次前向传播中该层的输出，delta 为 dL/dA
func (l *Layer) Backward(input, activations, delta mat.Matrix) (*LayerGradients, error) {
	n, c := input.Dims()
	if c != l.InputSize {
		return nil, fmt.Errorf("%w: 输入有 %d 列, 层需要 %d", ErrShapeMismatch, c, l.InputSize)
	}
	ar, ac := activations.Dims()
	dr, dc := delta.Dims()
	if ar != n || dr != n || ac != l.OutputSize || dc != l.OutputSize {
		return nil, fmt.Errorf("%w: 激活值 (%d,%d), 误差 (%d,%d), 期望 (%d,%d)",
			ErrShapeMismatch, ar, ac, dr, dc, n, l.OutputSize)
	}

	dZ := l.Activation.Backprop(activations, delta)

	// dW = input^T * dZ / batch
	dW := mat.NewDense(l.InputSize, l.OutputSize, nil)
	dW.Mul(input.T(), dZ)
	dW.Scale(1/float64(n), dW)

	// db = sum(dZ, axis=0) / batch
	db := mat.NewVecDense(l.OutputSize, nil)
	for i := 0; i < n; i++ {
		db.AddVec(db, dZ.RowView(i))
	}
	db.ScaleVec(1/float64(n), db)

	// 传给前一层的误差 dZ * W^T
	inputDelta := mat.NewDense(n, l.InputSize, nil)
	inputDelta.Mul(dZ, l.Weights.T())

	return &LayerGradients{
		Weights:    dW,
		Biases:     db,
		Delta:      dZ,
		InputDelta: inputDelta,
	}, nil
}

func (l *Layer) String() string {
	return fmt.Sprintf("Layer(%d -> %d, %v)", l.InputSize, l.OutputSize, l.Activation)
}
