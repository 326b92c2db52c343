package dataProcess

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// BatchIterator 按原始顺序把数据集切成连续的批次，最后一个批次可能不足 batchSize
// 批次是原矩阵的视图，不复制数据
type BatchIterator struct {
	x, y      *mat.Dense
	batchSize int
	n         int
	pos       int
	bx, by    *mat.Dense
}

// BatchGenerator 创建批次迭代器，不打乱样本顺序
func BatchGenerator(x, y *mat.Dense, batchSize int) (*BatchIterator, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("批次大小必须为正数: %d", batchSize)
	}
	if x == nil || y == nil {
		return nil, ErrEmptyDataset
	}
	xr, _ := x.Dims()
	yr, _ := y.Dims()
	if xr != yr {
		return nil, fmt.Errorf("特征有 %d 行, 标签有 %d 行", xr, yr)
	}
	return &BatchIterator{x: x, y: y, batchSize: batchSize, n: xr}, nil
}

// Next 前进到下一个批次，没有剩余样本时返回 false
func (it *BatchIterator) Next() bool {
	if it.pos >= it.n {
		it.bx, it.by = nil, nil
		return false
	}
	end := it.pos + it.batchSize
	if end > it.n {
		end = it.n
	}
	_, xc := it.x.Dims()
	_, yc := it.y.Dims()
	it.bx = it.x.Slice(it.pos, end, 0, xc).(*mat.Dense)
	it.by = it.y.Slice(it.pos, end, 0, yc).(*mat.Dense)
	it.pos = end
	return true
}

// Batch 当前批次
func (it *BatchIterator) Batch() (*mat.Dense, *mat.Dense) {
	return it.bx, it.by
}

// Reset 回到第一个批次，同一个迭代器可以在每一轮训练中重复使用
func (it *BatchIterator) Reset() {
	it.pos = 0
	it.bx, it.by = nil, nil
}

// NumBatches 一轮中的批次数量
func (it *BatchIterator) NumBatches() int {
	return (it.n + it.batchSize - 1) / it.batchSize
}
