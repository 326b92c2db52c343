package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"MLPDev/pkg/core/trainer/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	port := flag.String("port", "8080", "HTTP监听端口")
	debug := flag.Bool("debug", false, "输出请求日志")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	trainer := services.NewTrainer(*port)

	errCh := make(chan error, 1)
	go func() {
		errCh <- trainer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			log.Fatal().Err(err).Msg("HTTP服务器异常退出")
		}
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("正在关闭训练服务")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := trainer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("关闭训练服务失败")
	}
}
