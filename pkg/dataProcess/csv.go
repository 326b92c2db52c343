package dataProcess

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"gonum.org/v1/gonum/mat"
)

// LoadCSV 从两个CSV文件载入数据集，每一行是一个样本
// featuresPath 每列一个特征，labelsPath 每列一个输出
func LoadCSV(featuresPath, labelsPath string) (*Dataset, error) {
	x, err := loadMatrixCSV(featuresPath)
	if err != nil {
		return nil, fmt.Errorf("载入特征数据失败: %w", err)
	}
	y, err := loadMatrixCSV(labelsPath)
	if err != nil {
		return nil, fmt.Errorf("载入标签数据失败: %w", err)
	}
	return NewDataset(x, y)
}

// loadMatrixCSV 载入CSV格式的数值矩阵，所有行的列数必须一致
func loadMatrixCSV(path string) (*mat.Dense, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyDataset, path)
	}

	cols := len(records[0])
	data := make([]float64, 0, len(records)*cols)
	for i, record := range records {
		for j, val := range record {
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return nil, fmt.Errorf("第 %d 行第 %d 列: %w", i+1, j+1, err)
			}
			data = append(data, v)
		}
	}
	return mat.NewDense(len(records), cols, data), nil
}
