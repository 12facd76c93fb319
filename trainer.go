package main

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// manifestEntry is what the training harness receives for every catalog
// record: the image, its instance mask files and the declared geometry.
type manifestEntry struct {
	ID        string   `json:"id"`
	ImagePath string   `json:"image_path"`
	MaskPaths []string `json:"mask_paths"`
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	ClassIDs  []int    `json:"class_ids"`
}

type trainManifest struct {
	Subset  string          `json:"subset"`
	Entries []manifestEntry `json:"entries"`
}

type progressLine struct {
	Epoch int     `json:"epoch"`
	Loss  float64 `json:"loss"`
	Done  bool    `json:"done"`
}

// Trainer drives the external training stack. Go only prepares the catalogs;
// the actual Mask R-CNN training happens in a subprocess that reads two JSON
// manifests from stdin and reports progress as "json"-prefixed lines.
type Trainer struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	rd      *bufio.Reader
	classID int
}

func NewTrainer(cfg *Config, weightsPath string) (*Trainer, error) {
	if len(cfg.TrainCommand) == 0 {
		return nil, errors.New("no train command configured")
	}

	args := append([]string{}, cfg.TrainCommand[1:]...)
	args = append(args,
		"--weights", weightsPath,
		"--logs", cfg.LogsDir,
		"--epochs", strconv.Itoa(cfg.Epochs),
	)
	cmd := exec.Command(cfg.TrainCommand[0], args...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, errors.Wrap(err, "trainer stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errors.Wrap(err, "trainer stdout")
	}
	if err := cmd.Start(); err != nil {
		return nil, errors.Wrapf(err, "starting %s", cfg.TrainCommand[0])
	}

	return &Trainer{
		cmd:     cmd,
		stdin:   stdin,
		rd:      bufio.NewReader(stdout),
		classID: cfg.ClassID,
	}, nil
}

// Run streams the train and validation manifests to the harness and relays
// its progress until it reports completion or exits.
func (t *Trainer) Run(train, val *Catalog) error {
	for _, catalog := range []*Catalog{train, val} {
		manifest, err := buildManifest(catalog, t.classID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(manifest)
		if err != nil {
			return errors.Wrap(err, "encoding manifest")
		}
		data = append(data, '\n')
		if _, err := t.stdin.Write(data); err != nil {
			return errors.Wrap(err, "writing manifest")
		}
	}

	for {
		line, err := t.rd.ReadString('\n')
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading trainer output")
		}
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "json") {
			continue
		}
		var progress progressLine
		if err := json.Unmarshal([]byte(line[4:]), &progress); err != nil {
			return errors.Wrap(err, "decoding progress")
		}
		logger.Info("training progress",
			zap.Int("epoch", progress.Epoch),
			zap.Float64("loss", progress.Loss))
		if progress.Done {
			return nil
		}
	}
}

func (t *Trainer) Close() error {
	t.stdin.Close()
	return t.cmd.Wait()
}

// buildManifest resolves each record's mask files eagerly so the harness gets
// plain paths and never needs to repeat the discovery globbing.
func buildManifest(catalog *Catalog, classID int) (*trainManifest, error) {
	manifest := &trainManifest{Subset: catalog.Subset}
	for _, rec := range catalog.Records {
		maskPaths, err := findMaskFiles(rec.MaskBase)
		if err != nil {
			return nil, err
		}
		entry := manifestEntry{
			ID:        rec.ID,
			ImagePath: rec.ImagePath,
			MaskPaths: maskPaths,
			Width:     rec.Width,
			Height:    rec.Height,
		}
		for range maskPaths {
			entry.ClassIDs = append(entry.ClassIDs, classID)
		}
		manifest.Entries = append(manifest.Entries, entry)
	}
	return manifest, nil
}
