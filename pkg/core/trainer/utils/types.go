package utils

import (
	"encoding/json"
	"math"
	"time"

	"MLPDev/pkg/training"
)

// Status 训练任务的状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// RunInfo 训练任务的快照，作为HTTP接口的响应体
type RunInfo struct {
	ID                 string           `json:"id"`
	Status             Status           `json:"status"`
	Config             *training.Config `json:"config"`
	Epoch              int              `json:"epoch"`
	TrainingLosses     Losses           `json:"training_losses"`
	ValidationLosses   Losses           `json:"validation_losses"`
	TrainAccuracy      float64          `json:"train_accuracy"`
	ValidationAccuracy float64          `json:"validation_accuracy"`
	Error              string           `json:"error,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	StartedAt          *time.Time       `json:"started_at,omitempty"`
	FinishedAt         *time.Time       `json:"finished_at,omitempty"`
}

// Losses 损失序列，NaN/Inf 编码为 null
type Losses []float64

func (l Losses) MarshalJSON() ([]byte, error) {
	out := make([]*float64, len(l))
	for i := range l {
		if !math.IsNaN(l[i]) && !math.IsInf(l[i], 0) {
			out[i] = &l[i]
		}
	}
	return json.Marshal(out)
}

// RunSummary 列表接口中的简要信息
type RunSummary struct {
	ID        string    `json:"id"`
	Status    Status    `json:"status"`
	Epoch     int       `json:"epoch"`
	Epochs    int       `json:"epochs"`
	CreatedAt time.Time `json:"created_at"`
}

// StreamMessage websocket 推送的消息，Type 为 epoch 或 done
type StreamMessage struct {
	Type  string               `json:"type"`
	Epoch *training.EpochEvent `json:"epoch,omitempty"`
	Run   *RunInfo             `json:"run,omitempty"`
}
