package dataProcess

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

/*
该文件实现数据集的生成与划分
每一行是一个样本，X 的列为特征，Y 的列为输出
*/

// ErrEmptyDataset 数据集没有样本
var ErrEmptyDataset = errors.New("数据集为空")

type Dataset struct {
	X *mat.Dense
	Y *mat.Dense
}

// NewDataset 检查 X 与 Y 的样本数一致
func NewDataset(x, y *mat.Dense) (*Dataset, error) {
	if x == nil || y == nil {
		return nil, ErrEmptyDataset
	}
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("特征有 %d 行, 标签有 %d 行", xr, yr)
	}
	return &Dataset{X: x, Y: y}, nil
}

// Len 样本数
func (d *Dataset) Len() int {
	if d == nil || d.X == nil {
		return 0
	}
	r, _ := d.X.Dims()
	return r
}

// Features 特征数
func (d *Dataset) Features() int {
	_, c := d.X.Dims()
	return c
}

// Outputs 每个样本的输出维度
func (d *Dataset) Outputs() int {
	_, c := d.Y.Dims()
	return c
}

// Split 按顺序划分，前 int(fraction*n) 个样本为训练集，其余为验证集
// 两个子集都是原矩阵的视图
func (d *Dataset) Split(fraction float64) (*Dataset, *Dataset, error) {
	if fraction <= 0 || fraction >= 1 {
		return nil, nil, fmt.Errorf("划分比例必须在 (0,1) 之间: %v", fraction)
	}
	n := d.Len()
	split := int(fraction * float64(n))
	if split == 0 || split == n {
		return nil, nil, fmt.Errorf("%w: %d 个样本无法按 %v 划分", ErrEmptyDataset, n, fraction)
	}
	return d.slice(0, split), d.slice(split, n), nil
}

func (d *Dataset) slice(from, to int) *Dataset {
	return &Dataset{
		X: d.X.Slice(from, to, 0, d.Features()).(*mat.Dense),
		Y: d.Y.Slice(from, to, 0, d.Outputs()).(*mat.Dense),
	}
}

// RandomBinary 生成 n 个服从标准正态分布的样本，标签为均匀随机的 0/1
// 标签与特征无关，默认配置的端到端训练使用它
func RandomBinary(n, features int, src rand.Source) (*Dataset, error) {
	if n <= 0 || features <= 0 {
		return nil, fmt.Errorf("%w: 样本数 %d, 特征数 %d", ErrEmptyDataset, n, features)
	}
	x := randomFeatures(n, features, src)
	labels := distuv.Bernoulli{P: 0.5, Src: src}
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		y.Set(i, 0, labels.Rand())
	}
	return &Dataset{X: x, Y: y}, nil
}

// LinearlySeparable 生成线性可分的二分类数据：w·x > 0 时标签为 1
func LinearlySeparable(n, features int, src rand.Source) (*Dataset, error) {
	if n <= 0 || features <= 0 {
		return nil, fmt.Errorf("%w: 样本数 %d, 特征数 %d", ErrEmptyDataset, n, features)
	}
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	w := mat.NewVecDense(features, nil)
	for j := 0; j < features; j++ {
		w.SetVec(j, normal.Rand())
	}
	x := randomFeatures(n, features, src)
	var score mat.VecDense
	score.MulVec(x, w)
	y := mat.NewDense(n, 1, nil)
	for i := 0; i < n; i++ {
		if score.AtVec(i) > 0 {
			y.Set(i, 0, 1)
		}
	}
	return &Dataset{X: x, Y: y}, nil
}

func randomFeatures(n, features int, src rand.Source) *mat.Dense {
	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	x := mat.NewDense(n, features, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		for j := range row {
			row[j] = normal.Rand()
		}
	}
	return x
}
