package main

import (
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// resolveWeights maps the symbolic weight names the CLI accepts ("coco",
// "last", "imagenet") to file paths, downloading the coco weights when they
// are configured with a URL and missing on disk. Anything else is taken as an
// explicit path.
func resolveWeights(cfg *Config, name string) (string, error) {
	switch strings.ToLower(name) {
	case "coco":
		if _, err := os.Stat(cfg.COCOWeights); os.IsNotExist(err) {
			if cfg.COCOWeightsURL == "" {
				return "", errors.Errorf("coco weights missing at %s and no download URL configured", cfg.COCOWeights)
			}
			if err := downloadWeights(cfg.COCOWeightsURL, cfg.COCOWeights); err != nil {
				return "", err
			}
		}
		return cfg.COCOWeights, nil
	case "last":
		return findLastWeights(cfg.LogsDir)
	case "imagenet":
		if cfg.ImagenetWeights == "" {
			return "", errors.New("no imagenet weights configured")
		}
		return cfg.ImagenetWeights, nil
	default:
		return name, nil
	}
}

// findLastWeights returns the newest weights file in the logs directory, the
// equivalent of resuming from the last checkpoint.
func findLastWeights(logsDir string) (string, error) {
	matches, err := filepath.Glob(filepath.Join(logsDir, "*.tflite"))
	if err != nil {
		return "", errors.Wrapf(err, "globbing %s", logsDir)
	}
	if len(matches) == 0 {
		return "", errors.Errorf("no weights found in %s", logsDir)
	}

	last := ""
	var lastMod int64
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			return "", errors.Wrapf(err, "stat %s", path)
		}
		if mod := info.ModTime().UnixNano(); last == "" || mod > lastMod {
			last = path
			lastMod = mod
		}
	}
	return last, nil
}

func downloadWeights(url, dest string) error {
	logger.Info("downloading weights", zap.String("url", url), zap.String("dest", dest))

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.Wrap(err, "creating weights dir")
	}

	resp, err := http.Get(url)
	if err != nil {
		return errors.Wrap(err, "downloading weights")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("downloading weights: %s", resp.Status)
	}

	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "creating weights file")
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		os.Remove(dest)
		return errors.Wrap(err, "writing weights file")
	}
	return nil
}
