package main

import (
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config collects the handful of scalars the original framework spread over a
// configuration class hierarchy. A single value struct is enough here: only
// the ear-specific overrides survive.
type Config struct {
	Name        string  `mapstructure:"name"`
	Mode        string  `mapstructure:"mode"`
	ClassID     int     `mapstructure:"class_id"`
	NumClasses  int     `mapstructure:"num_classes"`
	Epochs      int     `mapstructure:"epochs"`
	LogsDir     string  `mapstructure:"logs_dir"`
	StaticDir   string  `mapstructure:"static_dir"`
	ServeAddr   string  `mapstructure:"serve_addr"`
	MaskThresh  float32 `mapstructure:"mask_threshold"`
	ScoreThresh float32 `mapstructure:"score_threshold"`

	// Weight sources for the symbolic names the CLI accepts.
	COCOWeights     string `mapstructure:"coco_weights"`
	COCOWeightsURL  string `mapstructure:"coco_weights_url"`
	ImagenetWeights string `mapstructure:"imagenet_weights"`

	// Command line of the external training harness, argv style.
	TrainCommand []string `mapstructure:"train_command"`
}

func defaultConfig() *Config {
	return &Config{
		Name:        "ear",
		Mode:        "debug",
		ClassID:     1,
		NumClasses:  2, // background + ear
		Epochs:      30,
		LogsDir:     "logs",
		StaticDir:   "static",
		ServeAddr:   ":8080",
		MaskThresh:  0.5,
		ScoreThresh: 0.3,
		COCOWeights: "models/mask_rcnn_coco.tflite",
		TrainCommand: []string{
			"python3", "train.py",
		},
	}
}

// LoadConfig returns the defaults, overridden by the YAML file at path when
// path is non-empty.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// display logs the effective configuration, the way the framework printed its
// config table at startup.
func (c *Config) display() {
	logger.Info("configuration",
		zap.String("name", c.Name),
		zap.Int("class_id", c.ClassID),
		zap.Int("num_classes", c.NumClasses),
		zap.Int("epochs", c.Epochs),
		zap.String("logs_dir", c.LogsDir),
		zap.Float32("mask_threshold", c.MaskThresh),
		zap.Float32("score_threshold", c.ScoreThresh))
}
