/* ---------------------------------------------------------------------------
** This software is in the public domain, furnished "as is", without technical
** support, and with no warranty, express or implied, as to its usefulness for
** any purpose.
** -------------------------------------------------------------------------*/

package main

import (
	"log"

	"github.com/mattn/go-tflite"
	"gocv.io/x/gocv"
)

// StackPostProcessing handles models whose output is a per-instance score
// stack shaped [1,H,W,N]: channel n holds the mask scores of instance n.
type StackPostProcessing struct {
	MaskPostProcessing
}

func (p StackPostProcessing) extractMasks(interp *tflite.Interpreter, maskTh float32, scoreTh float32, width int, height int) []gocv.Mat {
	// Some exports carry a [1,N] detection-score tensor next to the mask
	// stack; when present it gates which channels become instances.
	var scores []float32
	for idx := 0; idx < interp.GetOutputTensorCount(); idx++ {
		output := interp.GetOutputTensor(idx)
		if output.NumDims() == 2 {
			scores = tensorScores(output)
			break
		}
	}

	masks := []gocv.Mat{}
	for idx := 0; idx < interp.GetOutputTensorCount(); idx++ {
		output := interp.GetOutputTensor(idx)
		log.Println("output:", output.Name(), getTensorShape(output), output.Type(), output.QuantizationParams())
		if output.NumDims() != 4 {
			continue
		}
		masks = append(masks, p.extractStackTensor(output, maskTh, scoreTh, scores, width, height)...)
	}
	return masks
}

func (p StackPostProcessing) extractStackTensor(output *tflite.Tensor, maskTh float32, scoreTh float32, instScores []float32, width int, height int) []gocv.Mat {
	scores := tensorScores(output)
	if len(scores) == 0 {
		return nil
	}

	h := output.Dim(1)
	w := output.Dim(2)
	n := output.Dim(3)

	masks := []gocv.Mat{}
	for inst := 0; inst < n; inst++ {
		if inst < len(instScores) && instScores[inst] < scoreTh {
			continue
		}
		m := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
		covered := false
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				if scores[(y*w+x)*n+inst] >= maskTh {
					m.SetUCharAt(y, x, 255)
					covered = true
				}
			}
		}
		if !covered {
			m.Close()
			continue
		}
		masks = append(masks, resizeToImage(m, width, height))
	}
	return masks
}
