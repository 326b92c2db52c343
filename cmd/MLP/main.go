package main

import (
	"errors"
	"flag"
	"os"
	"time"

	"MLPDev/pkg/training"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// loadConfig 解析命令行参数，只有显式给出的参数才覆盖配置
// 第二个返回值表示是否输出每一轮的梯度范数
func loadConfig(args []string) (*training.Config, bool, error) {
	fs := flag.NewFlagSet("MLP", flag.ContinueOnError)
	configPath := fs.String("config", "", "JSON配置文件路径，为空时使用默认配置")
	epochs := fs.Int("epochs", 0, "覆盖配置中的训练轮数")
	learningRate := fs.Float64("lr", 0, "覆盖配置中的学习率")
	batchSize := fs.Int("batch", 0, "覆盖配置中的批次大小")
	seed := fs.Uint64("seed", 0, "覆盖配置中的随机种子")
	featuresCSV := fs.String("features-csv", "", "特征CSV文件，与 -labels-csv 一起使用时代替合成数据")
	labelsCSV := fs.String("labels-csv", "", "标签CSV文件")
	trace := fs.Bool("trace", false, "输出每一轮最后一个批次的梯度范数")
	if err := fs.Parse(args); err != nil {
		return nil, false, err
	}

	cfg := training.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = training.LoadConfig(*configPath); err != nil {
			return nil, false, err
		}
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "epochs":
			cfg.Epochs = *epochs
		case "lr":
			cfg.LearningRate = *learningRate
		case "batch":
			cfg.BatchSize = *batchSize
		case "seed":
			cfg.Seed = *seed
		}
	})
	if *featuresCSV != "" || *labelsCSV != "" {
		cfg.Dataset = training.DatasetCSV
		cfg.FeaturesPath = *featuresCSV
		cfg.LabelsPath = *labelsCSV
	}
	// 覆盖后的配置需要重新检查
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	return cfg, *trace, nil
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})

	cfg, trace, err := loadConfig(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatal().Err(err).Msg("加载配置失败")
	}
	if trace {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}

	log.Info().
		Str("dataset", cfg.Dataset).
		Int("samples", cfg.Samples).
		Int("features", cfg.Features).
		Str("loss", cfg.Loss).
		Float64("learning_rate", cfg.LearningRate).
		Int("batch_size", cfg.BatchSize).
		Int("epochs", cfg.Epochs).
		Msg("开始训练")

	res, err := training.TrainModel(cfg, training.NewConsoleReporter(log.Logger))
	if err != nil {
		log.Fatal().Err(err).Msg("训练失败")
	}

	history := res.History
	last := len(history.Training) - 1
	log.Info().
		Float64("first_training_loss", history.Training[0]).
		Float64("final_training_loss", history.Training[last]).
		Float64("final_validation_loss", history.Validation[last]).
		Msg("损失变化")
	log.Info().Msgf("Final Training Accuracy: %.2f%%", res.TrainAccuracy)
	log.Info().Msgf("Final Validation Accuracy: %.2f%%", res.ValAccuracy)
}
