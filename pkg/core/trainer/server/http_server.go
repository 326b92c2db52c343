package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"MLPDev/pkg/core/trainer/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// HTTPServer HTTP服务器
type HTTPServer struct {
	//Gin框架的路由引擎，可通过Router.POST()等方法注册API路由和处理函数
	Router *gin.Engine
	//HTTP服务器监听的端口号
	Port string
	//本机IP地址
	LocalIP string

	srv *http.Server
}

// NewHTTPServer 创建新的HTTP服务器
func NewHTTPServer(port string) *HTTPServer {
	// 获取本机IP
	localIP, err := utils.GetLocalIP()
	if err != nil {
		log.Warn().Err(err).Msg("获取本机IP失败")
		localIP = "未知"
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())
	return &HTTPServer{
		Router:  router,
		Port:    port,
		LocalIP: localIP,
		srv: &http.Server{
			Addr:              ":" + port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// RequestLogger 用 zerolog 记录每个请求
func RequestLogger() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		log.Debug().
			Str("method", ctx.Request.Method).
			Str("path", ctx.Request.URL.Path).
			Int("status", ctx.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("请求")
	}
}

// Start 启动HTTP服务器，Shutdown 之后返回 nil
// 先调用 Shutdown 时 Start 立即返回
func (hs *HTTPServer) Start() error {
	log.Info().
		Str("ip", hs.LocalIP).
		Str("port", hs.Port).
		Msgf("训练服务启动, 状态页面: http://%s:%s/status", hs.LocalIP, hs.Port)

	if err := hs.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown 优雅关闭
func (hs *HTTPServer) Shutdown(ctx context.Context) error {
	return hs.srv.Shutdown(ctx)
}
