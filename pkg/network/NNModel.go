package network

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"gonum.org/v1/gonum/mat"
)

/*
该文件包含整个神经网络的初始化方法
*/

// NeuronNetwork 由若干全连接层顺序组成的网络
type NeuronNetwork struct {
	Layers []*Layer
}

// LayerSpec 描述一层的形状和激活函数
type LayerSpec struct {
	InputSize  int
	OutputSize int
	Activation Activation
}

// NewNeuronNetwork 检查相邻层的维度后组装网络
func NewNeuronNetwork(layers ...*Layer) (*NeuronNetwork, error) {
	if len(layers) == 0 {
		return nil, fmt.Errorf("%w: 网络至少需要一层", ErrShapeMismatch)
	}
	for i := 0; i < len(layers)-1; i++ {
		if layers[i].OutputSize != layers[i+1].InputSize {
			return nil, fmt.Errorf("%w: 第 %d 层输出 %d 与第 %d 层输入 %d 不一致",
				ErrShapeMismatch, i, layers[i].OutputSize, i+1, layers[i+1].InputSize)
		}
	}
	return &NeuronNetwork{Layers: layers}, nil
}

// NewNetworkFromSpecs 按顺序创建每一层，所有层共用同一个随机源
func NewNetworkFromSpecs(specs []LayerSpec, src rand.Source) (*NeuronNetwork, error) {
	layers := make([]*Layer, len(specs))
	for i, spec := range specs {
		layer, err := NewLayer(spec.InputSize, spec.OutputSize, spec.Activation, src)
		if err != nil {
			return nil, fmt.Errorf("创建第 %d 层失败: %w", i, err)
		}
		layers[i] = layer
	}
	return NewNeuronNetwork(layers...)
}

// InputSize 网络输入的特征数
func (nn *NeuronNetwork) InputSize() int {
	return nn.Layers[0].InputSize
}

// OutputSize 网络输出的维度
func (nn *NeuronNetwork) OutputSize() int {
	return nn.Layers[len(nn.Layers)-1].OutputSize
}

func (nn *NeuronNetwork) String() string {
	parts := make([]string, len(nn.Layers))
	for i, layer := range nn.Layers {
		parts[i] = layer.String()
	}
	return "NeuronNetwork[" + strings.Join(parts, ", ") + "]"
}

// Gradients 保存梯度信息的结构体，下标与 Layers 一致
type Gradients struct {
	// 每一层的权重梯度
	WeightGrads []*mat.Dense
	// 每一层的偏置梯度
	BiasGrads []*mat.VecDense
}

// NewGradients 创建与网络形状一致的零梯度
func NewGradients(nn *NeuronNetwork) *Gradients {
	weightGrads := make([]*mat.Dense, len(nn.Layers))
	biasGrads := make([]*mat.VecDense, len(nn.Layers))
	for i, layer := range nn.Layers {
		weightGrads[i] = mat.NewDense(layer.InputSize, layer.OutputSize, nil)
		biasGrads[i] = mat.NewVecDense(layer.OutputSize, nil)
	}
	return &Gradients{
		WeightGrads: weightGrads,
		BiasGrads:   biasGrads,
	}
}

// String 每层一行，给出权重梯度和偏置梯度的 Frobenius 范数
func (g *Gradients) String() string {
	var b strings.Builder
	for i := range g.WeightGrads {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "layer %d: |dW|=%.6g |db|=%.6g", i, mat.Norm(g.WeightGrads[i], 2), mat.Norm(g.BiasGrads[i], 2))
	}
	return b.String()
}
