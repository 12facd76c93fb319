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

// SemanticPostProcessing handles models that emit a single foreground map
// shaped [1,H,W] (or [1,H,W,1]). The map is thresholded and split into one
// instance per connected component.
type SemanticPostProcessing struct {
	MaskPostProcessing
}

func (p SemanticPostProcessing) extractMasks(interp *tflite.Interpreter, maskTh float32, _ float32, width int, height int) []gocv.Mat {
	masks := []gocv.Mat{}
	for idx := 0; idx < interp.GetOutputTensorCount(); idx++ {
		output := interp.GetOutputTensor(idx)
		log.Println("output:", output.Name(), getTensorShape(output), output.Type(), output.QuantizationParams())
		if output.NumDims() == 3 || (output.NumDims() == 4 && output.Dim(3) == 1) {
			masks = append(masks, p.extractSemanticTensor(output, maskTh, width, height)...)
		}
	}
	return masks
}

func (p SemanticPostProcessing) extractSemanticTensor(output *tflite.Tensor, maskTh float32, width int, height int) []gocv.Mat {
	scores := tensorScores(output)
	if len(scores) == 0 {
		return nil
	}

	h := output.Dim(1)
	w := output.Dim(2)

	fg := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1)
	defer fg.Close()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if scores[y*w+x] >= maskTh {
				fg.SetUCharAt(y, x, 255)
			}
		}
	}

	labels := gocv.NewMat()
	defer labels.Close()
	count := gocv.ConnectedComponents(fg, &labels)
	if count <= 1 {
		return nil
	}

	masks := make([]gocv.Mat, 0, count-1)
	for lbl := 1; lbl < count; lbl++ {
		masks = append(masks, gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC1))
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if lbl := int(labels.GetIntAt(y, x)); lbl > 0 {
				masks[lbl-1].SetUCharAt(y, x, 255)
			}
		}
	}
	for i := range masks {
		masks[i] = resizeToImage(masks[i], width, height)
	}
	return masks
}
