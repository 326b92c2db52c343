package services

import (
	"context"

	"MLPDev/pkg/core/trainer/runs"
	"MLPDev/pkg/core/trainer/server"
	"MLPDev/pkg/training"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Trainer 训练服务：任务管理、HTTP接口和指标
type Trainer struct {
	RunManager *runs.Manager
	HTTPServer *server.HTTPServer
	Registry   *prometheus.Registry
}

// NewTrainer 创建训练服务并注册路由
func NewTrainer(port string) *Trainer {
	registry := prometheus.NewRegistry()
	t := &Trainer{
		RunManager: runs.NewManager(training.NewMetrics(registry)),
		HTTPServer: server.NewHTTPServer(port),
		Registry:   registry,
	}
	t.RegisterRoutes(t.HTTPServer.Router)
	return t
}

// RegisterRoutes 注册所有路由
func (t *Trainer) RegisterRoutes(r gin.IRouter) {
	api := r.Group("/api")
	api.POST("/runs", t.startRunHandler)
	api.GET("/runs", t.listRunsHandler)
	api.GET("/runs/:id", t.getRunHandler)
	api.GET("/runs/:id/stream", t.streamRunHandler)

	r.GET("/status", t.statusHandler)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(t.Registry, promhttp.HandlerOpts{})))
}

// Start 启动HTTP服务器（阻塞）
func (t *Trainer) Start() error {
	return t.HTTPServer.Start()
}

// Shutdown 关闭HTTP服务器并等待正在进行的训练结束
func (t *Trainer) Shutdown(ctx context.Context) error {
	if err := t.HTTPServer.Shutdown(ctx); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		t.RunManager.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
