package network

import (
	"errors"

	"MLPDev/pkg/dataProcess"
)

var (
	// ErrShapeMismatch 矩阵维度与层配置不一致
	ErrShapeMismatch = errors.New("维度不匹配")
	// ErrNumericInstability 损失或梯度出现 NaN/Inf
	ErrNumericInstability = errors.New("数值不稳定")
	// ErrEmptyDataset 训练集没有样本，与 dataProcess 共用同一个错误
	ErrEmptyDataset = dataProcess.ErrEmptyDataset
)
