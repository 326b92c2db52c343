package services

import (
	"errors"
	"io"
	"net/http"
	"time"

	"MLPDev/pkg/core/trainer/runs"
	"MLPDev/pkg/core/trainer/utils"
	"MLPDev/pkg/training"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ==================== HTTP处理器方法 ====================

// startRunHandler 创建训练任务，请求体中没有的字段使用默认配置
func (t *Trainer) startRunHandler(ctx *gin.Context) {
	cfg := training.DefaultConfig()
	if err := ctx.ShouldBindJSON(cfg); err != nil && !errors.Is(err, io.EOF) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	// 服务只接受合成数据集，不读取服务器上的文件
	if cfg.Dataset == training.DatasetCSV {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "训练服务不支持 csv 数据集"})
		return
	}
	run, err := t.RunManager.Start(cfg)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, training.ErrInvalidConfig) {
			status = http.StatusBadRequest
		}
		ctx.JSON(status, gin.H{"error": err.Error()})
		return
	}
	ctx.JSON(http.StatusAccepted, gin.H{
		"run_id": run.ID,
		"status": run.Status(),
	})
}

// listRunsHandler 列出所有训练任务
func (t *Trainer) listRunsHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"runs": t.RunManager.List()})
}

// getRunHandler 获取单个训练任务
func (t *Trainer) getRunHandler(ctx *gin.Context) {
	run, ok := t.lookupRun(ctx)
	if !ok {
		return
	}
	ctx.JSON(http.StatusOK, run.Info())
}

// statusHandler 服务状态
func (t *Trainer) statusHandler(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"runs":   t.RunManager.Counts(),
	})
}

func (t *Trainer) lookupRun(ctx *gin.Context) (*runs.Run, bool) {
	run, err := t.RunManager.Get(ctx.Param("id"))
	if err != nil {
		ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}

// ==================== websocket 推送 ====================

const writeTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamRunHandler 先推送已经完成的每一轮，然后实时推送新的轮次，训练结束后发送 done 并关闭连接
func (t *Trainer) streamRunHandler(ctx *gin.Context) {
	run, ok := t.lookupRun(ctx)
	if !ok {
		return
	}
	conn, err := upgrader.Upgrade(ctx.Writer, ctx.Request, nil)
	if err != nil {
		log.Warn().Err(err).Str("run", run.ID).Msg("websocket 升级失败")
		return
	}
	defer conn.Close()

	info, events, cancel := run.Subscribe()
	defer cancel()

	// 客户端断开时结束推送
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	epochs := info.Config.Epochs
	for i := range info.TrainingLosses {
		event := training.EpochEvent{
			RunID:          run.ID,
			Epoch:          i + 1,
			Epochs:         epochs,
			TrainingLoss:   info.TrainingLosses[i],
			ValidationLoss: info.ValidationLosses[i],
		}
		if err := writeMessage(conn, utils.StreamMessage{Type: "epoch", Epoch: &event}); err != nil {
			return
		}
	}

	for {
		select {
		case <-closed:
			return
		case event, ok := <-events:
			if !ok {
				final := run.Info()
				if err := writeMessage(conn, utils.StreamMessage{Type: "done", Run: &final}); err != nil {
					return
				}
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
					time.Now().Add(writeTimeout))
				return
			}
			if err := writeMessage(conn, utils.StreamMessage{Type: "epoch", Epoch: &event}); err != nil {
				return
			}
		}
	}
}

func writeMessage(conn *websocket.Conn, msg utils.StreamMessage) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}
