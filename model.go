package main

import (
	"image"
	"log"
	"time"

	"github.com/mattn/go-tflite"
	"github.com/mattn/go-tflite/delegates/edgetpu"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Model wraps a tflite instance-segmentation interpreter. Everything the
// detection framework owns (backbone, proposals, mask heads) lives behind the
// interpreter; this side only fills the input tensor and reads masks back out.
type Model struct {
	model    *tflite.Model
	interp   *tflite.Interpreter
	postproc MaskPostProcessing
	maskTh   float32
	scoreTh  float32
	classID  int
}

func NewModel(modelPath string, cfg *Config) (*Model, error) {
	model := tflite.NewModelFromFile(modelPath)
	if model == nil {
		return nil, errors.Errorf("cannot load model %s", modelPath)
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()

	options.SetNumThread(4)

	// add TPU
	devices, err := edgetpu.DeviceList()
	if err != nil {
		log.Printf("Could not get EdgeTPU devices: %v", err)
	}
	if len(devices) == 0 {
		log.Println("No edge TPU devices found")
	} else {
		options.AddDelegate(edgetpu.New(devices[0]))
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.New("cannot create interpreter")
	}

	status := interpreter.AllocateTensors()
	if status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.New("allocate failed")
	}

	m := &Model{
		model:   model,
		interp:  interpreter,
		maskTh:  cfg.MaskThresh,
		scoreTh: cfg.ScoreThresh,
		classID: cfg.ClassID,
	}
	m.postproc = choosePostProcessing(interpreter)
	return m, nil
}

func (m *Model) Close() {
	m.interp.Delete()
	m.model.Delete()
}

// choosePostProcessing picks a mask extraction strategy from the shape of the
// first output tensor: a trailing instance axis means a per-instance stack,
// anything else is treated as a single foreground map.
func choosePostProcessing(interp *tflite.Interpreter) MaskPostProcessing {
	output := interp.GetOutputTensor(0)
	if output.NumDims() == 4 && output.Dim(3) > 1 {
		return StackPostProcessing{}
	}
	return SemanticPostProcessing{}
}

func getTensorShape(tensor *tflite.Tensor) []int {
	shape := []int{}
	for idx := 0; idx < tensor.NumDims(); idx++ {
		shape = append(shape, tensor.Dim(idx))
	}
	return shape
}

func fillInput(input *tflite.Tensor, img gocv.Mat) {
	wanted_height := input.Dim(1)
	wanted_width := input.Dim(2)
	resized := gocv.NewMat()
	switch input.Type() {
	case tflite.UInt8:
		gocv.Resize(img, &resized, image.Pt(wanted_width, wanted_height), 0, 0, gocv.InterpolationDefault)
		if v, err := resized.DataPtrUint8(); err == nil {
			copy(input.UInt8s(), v)
		}
	case tflite.Float32:
		img.ConvertTo(&resized, gocv.MatTypeCV32F)
		gocv.Resize(resized, &resized, image.Pt(wanted_width, wanted_height), 0, 0, gocv.InterpolationDefault)
		if v, err := resized.DataPtrFloat32(); err == nil {
			for i := 0; i < len(v); i++ {
				v[i] = (v[i] - 127.5) / 127.5
			}
			copy(input.Float32s(), v)
		}
	}
	resized.Close()
}

// Detect runs one image through the interpreter and returns the predicted
// instance masks, sized to the image and all labeled with the foreground
// class.
func (m *Model) Detect(img gocv.Mat) (*MaskStack, error) {
	input := m.interp.GetInputTensor(0)
	log.Println("input shape:", input.Name(), getTensorShape(input), input.Type(), input.QuantizationParams())
	fillInput(input, img)

	status := m.interp.Invoke()
	if status != tflite.OK {
		return nil, errors.New("invoke failed")
	}

	masks := m.postproc.extractMasks(m.interp, m.maskTh, m.scoreTh, img.Cols(), img.Rows())
	stack := &MaskStack{Masks: masks}
	for range masks {
		stack.ClassIDs = append(stack.ClassIDs, m.classID)
	}
	return stack, nil
}

// maskWorker serializes interpreter access for the HTTP surface: requests go
// in one channel, predicted stacks come out the other. An empty Mat shuts the
// worker down.
func (m *Model) maskWorker(in chan gocv.Mat, out chan *MaskStack) {
	idleDuration := 10 * time.Millisecond
	timeout := time.NewTimer(idleDuration)
	defer timeout.Stop()
	for {
		timeout.Reset(idleDuration)
		select {
		case img := <-in:
			if img.Empty() {
				return
			}
			stack, err := m.Detect(img)
			if err != nil {
				log.Println("detect failed:", err)
				stack = &MaskStack{}
			}
			out <- stack
			img.Close()
		case <-timeout.C:
		}
	}
}
