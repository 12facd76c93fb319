package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func writeColorImage(t *testing.T, path string, width, height int) {
	t.Helper()
	img := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	defer img.Close()
	require.True(t, gocv.IMWrite(path, img), "writing %s", path)
}

// writeMaskImage writes a grayscale mask with the given pixels set.
func writeMaskImage(t *testing.T, path string, width, height int, pixels ...[2]int) {
	t.Helper()
	m := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	defer m.Close()
	for _, p := range pixels {
		m.SetUCharAt(p[1], p[0], 200)
	}
	require.True(t, gocv.IMWrite(path, m), "writing %s", path)
}

func datasetDirs(t *testing.T, subset string) (string, string, string) {
	t.Helper()
	root := t.TempDir()
	imageDir := filepath.Join(root, subset)
	maskDir := filepath.Join(root, subset+"annot")
	require.NoError(t, os.MkdirAll(imageDir, 0o755))
	require.NoError(t, os.MkdirAll(maskDir, 0o755))
	return root, imageDir, maskDir
}

func TestBuildCatalogInvalidSubset(t *testing.T) {
	_, err := BuildCatalog(t.TempDir(), "bogus")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errInvalidSubset))
}

func TestBuildCatalog(t *testing.T) {
	root, imageDir, _ := datasetDirs(t, "train")
	for _, name := range []string{"ear001.png", "ear002.png", "ear003.png"} {
		writeColorImage(t, filepath.Join(imageDir, name), 8, 6)
	}
	// subdirectories are not descended into
	require.NoError(t, os.MkdirAll(filepath.Join(imageDir, "nested"), 0o755))

	catalog, err := BuildCatalog(root, "train")
	require.NoError(t, err)
	require.Len(t, catalog.Records, 3)

	seen := map[string]bool{}
	for _, rec := range catalog.Records {
		assert.False(t, seen[rec.ID], "duplicate id %s", rec.ID)
		seen[rec.ID] = true
		assert.Equal(t, 8, rec.Width)
		assert.Equal(t, 6, rec.Height)
		assert.FileExists(t, rec.ImagePath)
	}
	assert.Equal(t, "ear001", catalog.Records[0].ID)
	assert.Equal(t, "train", catalog.Subset)
}

func TestBuildCatalogUnreadableImage(t *testing.T) {
	root, imageDir, _ := datasetDirs(t, "test")
	require.NoError(t, os.WriteFile(filepath.Join(imageDir, "broken.png"), []byte("not an image"), 0o644))

	_, err := BuildCatalog(root, "test")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errUnreadableImage))
}

func TestBuildCatalogDuplicateStem(t *testing.T) {
	root, imageDir, _ := datasetDirs(t, "train")
	writeColorImage(t, filepath.Join(imageDir, "ear001.png"), 4, 4)
	writeColorImage(t, filepath.Join(imageDir, "ear001.jpg"), 4, 4)

	_, err := BuildCatalog(root, "train")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate image id")
}

func TestLoadMaskNoInstances(t *testing.T) {
	root, imageDir, _ := datasetDirs(t, "train")
	writeColorImage(t, filepath.Join(imageDir, "ear001.png"), 4, 4)

	catalog, err := BuildCatalog(root, "train")
	require.NoError(t, err)

	stack, err := catalog.Records[0].LoadMask(1)
	require.NoError(t, err)
	defer stack.Close()
	assert.Empty(t, stack.Masks)
	assert.Empty(t, stack.ClassIDs)
}

func TestLoadMaskInstances(t *testing.T) {
	root, imageDir, maskDir := datasetDirs(t, "train")
	writeColorImage(t, filepath.Join(imageDir, "ear007.png"), 4, 4)
	// each instance covers a distinct pixel so the order can be observed
	writeMaskImage(t, filepath.Join(maskDir, "ear007_0.png"), 4, 4, [2]int{0, 0})
	writeMaskImage(t, filepath.Join(maskDir, "ear007_1.png"), 4, 4, [2]int{1, 0})
	writeMaskImage(t, filepath.Join(maskDir, "ear007_10.png"), 4, 4, [2]int{2, 0})
	// not an instance file, must be ignored
	writeMaskImage(t, filepath.Join(maskDir, "ear007_x.png"), 4, 4, [2]int{3, 0})

	catalog, err := BuildCatalog(root, "train")
	require.NoError(t, err)

	stack, err := catalog.Records[0].LoadMask(1)
	require.NoError(t, err)
	defer stack.Close()

	require.Len(t, stack.Masks, 3)
	require.Len(t, stack.ClassIDs, 3)
	for _, id := range stack.ClassIDs {
		assert.Equal(t, 1, id)
	}

	// numeric index order, not lexical (lexically _10 sorts before _2)
	assert.EqualValues(t, 255, stack.Masks[0].GetUCharAt(0, 0))
	assert.EqualValues(t, 255, stack.Masks[1].GetUCharAt(0, 1))
	assert.EqualValues(t, 255, stack.Masks[2].GetUCharAt(0, 2))

	for _, m := range stack.Masks {
		assert.Equal(t, 4, m.Cols())
		assert.Equal(t, 4, m.Rows())
	}
}

func TestLoadMaskShapeMismatch(t *testing.T) {
	root, imageDir, maskDir := datasetDirs(t, "train")
	writeColorImage(t, filepath.Join(imageDir, "ear001.png"), 4, 4)
	writeMaskImage(t, filepath.Join(maskDir, "ear001_0.png"), 8, 8, [2]int{0, 0})

	catalog, err := BuildCatalog(root, "train")
	require.NoError(t, err)

	_, err = catalog.Records[0].LoadMask(1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errMaskShapeMismatch))
}

func TestLoadMaskBinarizes(t *testing.T) {
	root, imageDir, maskDir := datasetDirs(t, "train")
	writeColorImage(t, filepath.Join(imageDir, "ear001.png"), 4, 4)
	// writeMaskImage writes 200, not 255; LoadMask must still produce 255
	writeMaskImage(t, filepath.Join(maskDir, "ear001_0.png"), 4, 4, [2]int{2, 3})

	catalog, err := BuildCatalog(root, "train")
	require.NoError(t, err)

	stack, err := catalog.Records[0].LoadMask(1)
	require.NoError(t, err)
	defer stack.Close()

	require.Len(t, stack.Masks, 1)
	assert.EqualValues(t, 255, stack.Masks[0].GetUCharAt(3, 2))
	assert.EqualValues(t, 0, stack.Masks[0].GetUCharAt(0, 0))
}
