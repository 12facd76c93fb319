package main

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// ColorSplash desaturates img everywhere no instance mask covers it. The gray
// copy keeps all three channels, so covered pixels can be copied back over it
// unchanged. With an empty stack the result is the plain gray image. The
// caller owns the returned Mat.
func ColorSplash(img gocv.Mat, masks []gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	out := gocv.NewMat()
	gocv.CvtColor(gray, &out, gocv.ColorGrayToBGR)

	if len(masks) == 0 {
		return out
	}

	union := mergeMasks(masks)
	defer union.Close()
	img.CopyToWithMask(&out, union)
	return out
}

// mergeMasks ORs an instance stack into a single foreground mask.
func mergeMasks(masks []gocv.Mat) gocv.Mat {
	union := masks[0].Clone()
	for _, m := range masks[1:] {
		gocv.BitwiseOr(union, m, &union)
	}
	return union
}

// maskBounds returns the tight bounding box of the set pixels in a single
// channel mask, or the zero rectangle when the mask is empty.
func maskBounds(mask gocv.Mat) image.Rectangle {
	var bbox image.Rectangle
	found := false
	for y := 0; y < mask.Rows(); y++ {
		for x := 0; x < mask.Cols(); x++ {
			if mask.GetUCharAt(y, x) == 0 {
				continue
			}
			if !found {
				bbox = image.Rect(x, y, x+1, y+1)
				found = true
				continue
			}
			if x < bbox.Min.X {
				bbox.Min.X = x
			}
			if x+1 > bbox.Max.X {
				bbox.Max.X = x + 1
			}
			if y+1 > bbox.Max.Y {
				bbox.Max.Y = y + 1
			}
		}
	}
	return bbox
}

// drawInstances overlays one labeled box per instance on img, in place.
func drawInstances(img gocv.Mat, stack *MaskStack, className string) {
	for i, m := range stack.Masks {
		bbox := maskBounds(m)
		if bbox.Empty() {
			continue
		}
		gocv.Rectangle(&img, bbox, color.RGBA{255, 255, 0, 0}, 1)
		label := fmt.Sprintf("%s %d", className, stack.ClassIDs[i])
		gocv.PutText(&img, label, bbox.Max, gocv.FontHersheyComplex, 0.5, color.RGBA{255, 0, 0, 255}, 1)
	}
}
