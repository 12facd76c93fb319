/*
 * SPDX-License-Identifier: Unlicense
 *
 * This is free and unencumbered software released into the public domain.
 *
 * Anyone is free to copy, modify, publish, use, compile, sell, or distribute this
 * software, either in source code form or as a compiled binary, for any purpose,
 * commercial or non-commercial, and by any means.
 *
 * For more information, please refer to <http://unlicense.org/>
 */

package main

import (
	"image"

	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// MaskPostProcessing turns a segmentation model's output tensors into
// instance masks sized to the source image.
type MaskPostProcessing interface {
	extractMasks(interp *tflite.Interpreter, maskTh float32, scoreTh float32, width int, height int) []gocv.Mat
}

// tensorScores reads an output tensor as float32 scores regardless of its
// storage type. Quantized uint8 outputs are mapped onto [0,1].
func tensorScores(output *tflite.Tensor) []float32 {
	switch output.Type() {
	case tflite.UInt8:
		f := output.UInt8s()
		scores := make([]float32, len(f))
		for i, v := range f {
			scores[i] = float32(v) / 255
		}
		return scores
	case tflite.Float32:
		f := output.Float32s()
		scores := make([]float32, len(f))
		copy(scores, f)
		return scores
	}
	return nil
}

// resizeToImage scales a model-resolution mask up to the source image
// dimensions. Nearest neighbor keeps the mask binary.
func resizeToImage(mask gocv.Mat, width, height int) gocv.Mat {
	if mask.Cols() == width && mask.Rows() == height {
		return mask
	}
	gocv.Resize(mask, &mask, image.Pt(width, height), 0, 0, gocv.InterpolationNearestNeighbor)
	return mask
}
