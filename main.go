package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"
)

var (
	configPath = flag.String("config", "", "path to YAML config file")
	datasetDir = flag.String("dataset", "", "root directory of the ear dataset")
	weights    = flag.String("weights", "", "path to weights file, or 'coco', 'last', 'imagenet'")
	logsDir    = flag.String("logs", "", "logs and checkpoints directory (overrides config)")
	imagePath  = flag.String("image", "", "image to evaluate")
	videoPath  = flag.String("video", "", "video to evaluate")
	drawBoxes  = flag.Bool("boxes", false, "draw instance boxes on the splash output")
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: %s [flags] <train|evaluate|serve>\n", os.Args[0])
	flag.PrintDefaults()
	os.Exit(2)
}

func main() {
	flag.Usage = usage
	flag.Parse()
	command := flag.Arg(0)

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *logsDir != "" {
		cfg.LogsDir = *logsDir
	}

	if err := initLogger(cfg.Mode); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer syncLogger()

	cfg.display()

	if *weights == "" {
		logger.Fatal("--weights is required")
	}
	weightsPath, err := resolveWeights(cfg, *weights)
	if err != nil {
		logger.Fatal("resolving weights", zap.Error(err))
	}
	logger.Info("weights", zap.String("path", weightsPath))

	switch command {
	case "train":
		if *datasetDir == "" {
			logger.Fatal("--dataset is required for training")
		}
		if err := runTrain(cfg, weightsPath, *datasetDir); err != nil {
			logger.Fatal("training failed", zap.Error(err))
		}
	case "evaluate":
		if *videoPath != "" {
			logger.Fatal("video input is not supported")
		}
		if *imagePath == "" {
			logger.Fatal("--image is required for evaluation")
		}
		if err := runEvaluate(cfg, weightsPath, *imagePath, *drawBoxes); err != nil {
			logger.Fatal("evaluation failed", zap.Error(err))
		}
	case "serve":
		model, err := NewModel(weightsPath, cfg)
		if err != nil {
			logger.Fatal("loading model", zap.Error(err))
		}
		defer model.Close()
		if err := runServer(cfg, model); err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	default:
		logger.Error("unrecognized command, use 'train', 'evaluate' or 'serve'",
			zap.String("command", command))
		os.Exit(2)
	}
}

func runTrain(cfg *Config, weightsPath, datasetRoot string) error {
	train, err := BuildCatalog(datasetRoot, "train")
	if err != nil {
		return err
	}
	val, err := BuildCatalog(datasetRoot, "test")
	if err != nil {
		return err
	}
	logger.Info("catalogs built",
		zap.Int("train", len(train.Records)),
		zap.Int("test", len(val.Records)))

	trainer, err := NewTrainer(cfg, weightsPath)
	if err != nil {
		return err
	}
	if err := trainer.Run(train, val); err != nil {
		trainer.Close()
		return err
	}
	return trainer.Close()
}

func runEvaluate(cfg *Config, weightsPath, imagePath string, boxes bool) error {
	model, err := NewModel(weightsPath, cfg)
	if err != nil {
		return err
	}
	defer model.Close()

	logger.Info("running on image", zap.String("path", imagePath))
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		img.Close()
		return fmt.Errorf("cannot decode image %s", imagePath)
	}
	defer img.Close()

	stack, err := model.Detect(img)
	if err != nil {
		return err
	}
	defer stack.Close()
	logger.Info("detected instances", zap.Int("count", len(stack.Masks)))

	splash := ColorSplash(img, stack.Masks)
	defer splash.Close()
	if boxes {
		drawInstances(splash, stack, cfg.Name)
	}

	fileName := fmt.Sprintf("splash_%s.png", time.Now().Format("20060102T150405"))
	if ok := gocv.IMWrite(fileName, splash); !ok {
		return fmt.Errorf("cannot write %s", fileName)
	}
	logger.Info("saved", zap.String("file", fileName))
	return nil
}
