package network

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

/*
该文件包含了网络的前向传播和后向传播
此外还有一些辅助函数，例如参数更新、预测、准确度计算等
*/

// ForwardPass 一次前向传播的全部中间结果，反向传播只依赖它而不依赖层内状态
type ForwardPass struct {
	Input mat.Matrix
	// Activations[i] 为第 i 层的输出
	Activations []*mat.Dense
}

// Output 网络最后一层的输出
func (p *ForwardPass) Output() *mat.Dense {
	return p.Activations[len(p.Activations)-1]
}

// Forward 整个网络的前向传播，保存每一层的激活值
func (nn *NeuronNetwork) Forward(x mat.Matrix) (*ForwardPass, error) {
	pass := &ForwardPass{
		Input:       x,
		Activations: make([]*mat.Dense, len(nn.Layers)),
	}
	var a mat.Matrix = x
	for i, layer := range nn.Layers {
		out, err := layer.Forward(a)
		if err != nil {
			return nil, fmt.Errorf("第 %d 层前向传播失败: %w", i, err)
		}
		pass.Activations[i] = out
		a = out
	}
	return pass, nil
}

// FeedForward 只返回网络输出
func (nn *NeuronNetwork) FeedForward(x mat.Matrix) (*mat.Dense, error) {
	pass, err := nn.Forward(x)
	if err != nil {
		return nil, err
	}
	return pass.Output(), nil
}

// Backward 从最后一层向第一层反向传播
// lossGrad 为损失对网络输出的梯度 dL/dA，返回的梯度按层的正向顺序排列
func (nn *NeuronNetwork) Backward(pass *ForwardPass, lossGrad mat.Matrix) (*Gradients, error) {
	if pass == nil || len(pass.Activations) != len(nn.Layers) {
		return nil, fmt.Errorf("%w: 前向传播结果与网络层数不一致", ErrShapeMismatch)
	}
	grads := &Gradients{
		WeightGrads: make([]*mat.Dense, len(nn.Layers)),
		BiasGrads:   make([]*mat.VecDense, len(nn.Layers)),
	}
	dA := lossGrad
	for i := len(nn.Layers) - 1; i >= 0; i-- {
		// 第一层的输入是网络输入，其余层的输入是前一层的激活值
		input := pass.Input
		if i > 0 {
			input = pass.Activations[i-1]
		}
		lg, err := nn.Layers[i].Backward(input, pass.Activations[i], dA)
		if err != nil {
			return nil, fmt.Errorf("第 %d 层反向传播失败: %w", i, err)
		}
		grads.WeightGrads[i] = lg.Weights
		grads.BiasGrads[i] = lg.Biases
		dA = lg.InputDelta
	}
	return grads, nil
}

// UpdateParameters 按层的顺序原地更新参数: W -= lr*dW, b -= lr*db
func (nn *NeuronNetwork) UpdateParameters(grads *Gradients, learningRate float64) error {
	if len(grads.WeightGrads) != len(nn.Layers) || len(grads.BiasGrads) != len(nn.Layers) {
		return fmt.Errorf("%w: 梯度层数 %d 与网络层数 %d 不一致",
			ErrShapeMismatch, len(grads.WeightGrads), len(nn.Layers))
	}
	for i, layer := range nn.Layers {
		dW, db := grads.WeightGrads[i], grads.BiasGrads[i]
		if r, c := dW.Dims(); r != layer.InputSize || c != layer.OutputSize || db.Len() != layer.OutputSize {
			return fmt.Errorf("%w: 第 %d 层梯度形状 (%d,%d)/%d", ErrShapeMismatch, i, r, c, db.Len())
		}
		for r := 0; r < layer.InputSize; r++ {
			floats.AddScaled(layer.Weights.RawRowView(r), -learningRate, dW.RawRowView(r))
		}
		layer.Biases.AddScaledVec(layer.Biases, -learningRate, db)
	}
	return nil
}

// Predict 以 0.5 为阈值把输出转换为 0/1 标签
func (nn *NeuronNetwork) Predict(x mat.Matrix) (*mat.Dense, error) {
	out, err := nn.FeedForward(x)
	if err != nil {
		return nil, err
	}
	out.Apply(func(_, _ int, v float64) float64 {
		if v > 0.5 {
			return 1
		}
		return 0
	}, out)
	return out, nil
}

// Accuracy 二分类准确率（百分比），预测值与真实标签逐元素比较
func (nn *NeuronNetwork) Accuracy(x, y mat.Matrix) (float64, error) {
	pred, err := nn.Predict(x)
	if err != nil {
		return 0, err
	}
	r, c := pred.Dims()
	if yr, yc := y.Dims(); yr != r || yc != c {
		return 0, fmt.Errorf("%w: 标签 (%d,%d), 预测 (%d,%d)", ErrShapeMismatch, yr, yc, r, c)
	}
	correct := 0
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if pred.At(i, j) == y.At(i, j) {
				correct++
			}
		}
	}
	return 100 * float64(correct) / float64(r*c), nil
}

// Evaluate 多分类准确率（0-1），取输出概率最大的类别与 one-hot 标签比较
func (nn *NeuronNetwork) Evaluate(x, y mat.Matrix) (float64, error) {
	out, err := nn.FeedForward(x)
	if err != nil {
		return 0, err
	}
	r, c := out.Dims()
	if yr, yc := y.Dims(); yr != r || yc != c {
		return 0, fmt.Errorf("%w: 标签 (%d,%d), 输出 (%d,%d)", ErrShapeMismatch, yr, yc, r, c)
	}
	correct := 0
	for i := 0; i < r; i++ {
		if floats.MaxIdx(out.RawRowView(i)) == floats.MaxIdx(mat.Row(nil, i, y)) {
			correct++
		}
	}
	return float64(correct) / float64(r), nil
}
