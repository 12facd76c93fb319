package main

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var (
	errInvalidSubset     = errors.New("subset must be \"train\" or \"test\"")
	errUnreadableImage   = errors.New("cannot decode image")
	errMaskShapeMismatch = errors.New("mask dimensions do not match image")
)

// ImageRecord is one catalog entry. Width and Height are read from the image
// itself when the catalog is built, so mask files can be validated against
// them later without re-decoding the image.
type ImageRecord struct {
	ID        string
	ImagePath string
	MaskBase  string
	Width     int
	Height    int
}

// Catalog is the immutable index of one dataset subset.
type Catalog struct {
	Subset  string
	Records []ImageRecord
}

// MaskStack holds the per-instance masks of one image. Masks are single
// channel 8-bit Mats where 255 marks instance pixels, all sized to the
// record's Height x Width. ClassIDs runs parallel to Masks.
type MaskStack struct {
	Masks    []gocv.Mat
	ClassIDs []int
}

func (s *MaskStack) Close() {
	for i := range s.Masks {
		s.Masks[i].Close()
	}
	s.Masks = nil
	s.ClassIDs = nil
}

// BuildCatalog scans <root>/<subset> for images and records the matching mask
// stem under <root>/<subset>annot for each. The listing is non-recursive and
// the records come back in filename order. Any undecodable image fails the
// whole build.
func BuildCatalog(root, subset string) (*Catalog, error) {
	if subset != "train" && subset != "test" {
		return nil, errors.Wrapf(errInvalidSubset, "got %q", subset)
	}

	imageDir := filepath.Join(root, subset)
	maskDir := filepath.Join(root, subset+"annot")

	entries, err := os.ReadDir(imageDir)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", imageDir)
	}

	catalog := &Catalog{Subset: subset}
	seen := make(map[string]string, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		id := strings.TrimSuffix(name, filepath.Ext(name))
		if prev, ok := seen[id]; ok {
			return nil, errors.Errorf("duplicate image id %q (%s and %s)", id, prev, name)
		}
		seen[id] = name

		imagePath := filepath.Join(imageDir, name)
		img := gocv.IMRead(imagePath, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			return nil, errors.Wrapf(errUnreadableImage, "%s", imagePath)
		}
		rec := ImageRecord{
			ID:        id,
			ImagePath: imagePath,
			MaskBase:  filepath.Join(maskDir, name),
			Width:     img.Cols(),
			Height:    img.Rows(),
		}
		img.Close()
		catalog.Records = append(catalog.Records, rec)
	}

	return catalog, nil
}

// LoadMask materializes the instance masks for r. Mask files are named
// <stem>_<index>.<ext> next to MaskBase; the index may have any number of
// digits and masks come back in ascending index order. No matching files is a
// valid image with zero instances, not an error. Every returned class id is
// classID.
func (r ImageRecord) LoadMask(classID int) (*MaskStack, error) {
	paths, err := findMaskFiles(r.MaskBase)
	if err != nil {
		return nil, err
	}

	stack := &MaskStack{}
	for _, path := range paths {
		m := gocv.IMRead(path, gocv.IMReadGrayscale)
		if m.Empty() {
			m.Close()
			stack.Close()
			return nil, errors.Wrapf(errUnreadableImage, "%s", path)
		}
		if m.Cols() != r.Width || m.Rows() != r.Height {
			cols, rows := m.Cols(), m.Rows()
			m.Close()
			stack.Close()
			return nil, errors.Wrapf(errMaskShapeMismatch,
				"%s is %dx%d, image %s is %dx%d", path, cols, rows, r.ID, r.Width, r.Height)
		}
		bin := gocv.NewMat()
		gocv.Threshold(m, &bin, 0, 255, gocv.ThresholdBinary)
		m.Close()
		stack.Masks = append(stack.Masks, bin)
		stack.ClassIDs = append(stack.ClassIDs, classID)
	}

	return stack, nil
}

// findMaskFiles globs for the instance files of one mask stem and orders them
// by numeric index. The original tooling matched a single index character and
// took whatever order the filesystem produced; sorting numerically keeps the
// stack order stable across runs and lifts the ten-instance ceiling.
func findMaskFiles(maskBase string) ([]string, error) {
	stem := strings.TrimSuffix(maskBase, filepath.Ext(maskBase))
	matches, err := filepath.Glob(stem + "_*.*")
	if err != nil {
		return nil, errors.Wrapf(err, "globbing masks for %s", stem)
	}

	type indexed struct {
		index int
		path  string
	}
	var files []indexed
	for _, path := range matches {
		suffix := strings.TrimPrefix(path, stem+"_")
		idx, err := strconv.Atoi(strings.TrimSuffix(suffix, filepath.Ext(suffix)))
		if err != nil {
			continue
		}
		files = append(files, indexed{index: idx, path: path})
	}
	sort.Slice(files, func(i, j int) bool {
		if files[i].index != files[j].index {
			return files[i].index < files[j].index
		}
		return files[i].path < files[j].path
	})

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.path)
	}
	return paths, nil
}
