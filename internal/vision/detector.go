package vision

import (
	"fmt"
	"math"
	"sort"

	ort "github.com/yalue/onnxruntime_go"
)

// Face is one detected face with landmark positions for both eyes.
type Face struct {
	BBox       [4]float32 // x1, y1, x2, y2 in source-image pixels
	Confidence float32
	LeftEye    [2]float32
	RightEye   [2]float32
}

// detector runs a RetinaFace-family ONNX model (det_10g).
type detector struct {
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	inputW        int
	inputH        int
}

var detStrides = []int{8, 16, 32}

const detAnchors = 2

func newDetector(modelPath string, threshold float32) (*detector, error) {
	inputW, inputH := 640, 640

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// det_10g outputs, per stride: scores [N,1], boxes [N,4],
	// landmarks [N,10], where N = (640/stride)^2 * 2.
	type outputSpec struct {
		name  string
		shape ort.Shape
	}
	outputs := []outputSpec{
		{"448", ort.NewShape(12800, 1)},
		{"471", ort.NewShape(3200, 1)},
		{"494", ort.NewShape(800, 1)},
		{"451", ort.NewShape(12800, 4)},
		{"474", ort.NewShape(3200, 4)},
		{"497", ort.NewShape(800, 4)},
		{"454", ort.NewShape(12800, 10)},
		{"477", ort.NewShape(3200, 10)},
		{"500", ort.NewShape(800, 10)},
	}

	outputNames := make([]string, len(outputs))
	outputTensors := make([]*ort.Tensor[float32], len(outputs))
	outputValues := make([]ort.Value, len(outputs))
	for i, spec := range outputs {
		outputNames[i] = spec.name
		t, err := ort.NewEmptyTensor[float32](spec.shape)
		if err != nil {
			for j := 0; j < i; j++ {
				outputTensors[j].Destroy()
			}
			inputTensor.Destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", spec.name, err)
		}
		outputTensors[i] = t
		outputValues[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		for _, t := range outputTensors {
			t.Destroy()
		}
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: outputTensors,
		threshold:     threshold,
		inputW:        inputW,
		inputH:        inputH,
	}, nil
}

// detect runs the model on a preprocessed CHW input and returns all
// faces above the confidence threshold, after overlap suppression.
func (d *detector) detect(input []float32, origW, origH int) ([]Face, error) {
	copy(d.inputTensor.GetData(), input)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	faces := d.decode(origW, origH)
	return suppressOverlaps(faces, 0.4), nil
}

// decode converts the anchor-grid outputs into pixel-space faces.
func (d *detector) decode(origW, origH int) []Face {
	var faces []Face

	scaleW := float32(origW) / float32(d.inputW)
	scaleH := float32(origH) / float32(d.inputH)

	for si, stride := range detStrides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+3].GetData()
		marks := d.outputTensors[si+6].GetData()

		fmW := d.inputW / stride
		fmH := d.inputH / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fmH; cy++ {
			for cx := 0; cx < fmW; cx++ {
				for a := 0; a < detAnchors; a++ {
					if scores[idx] >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						face := Face{
							Confidence: scores[idx],
							BBox: [4]float32{
								clamp((ax-boxes[idx*4+0]*st)*scaleW, 0, float32(origW)),
								clamp((ay-boxes[idx*4+1]*st)*scaleH, 0, float32(origH)),
								clamp((ax+boxes[idx*4+2]*st)*scaleW, 0, float32(origW)),
								clamp((ay+boxes[idx*4+3]*st)*scaleH, 0, float32(origH)),
							},
						}
						// Landmarks 0 and 1 are the eye centers.
						face.LeftEye = [2]float32{
							(ax + marks[idx*10+0]*st) * scaleW,
							(ay + marks[idx*10+1]*st) * scaleH,
						}
						face.RightEye = [2]float32{
							(ax + marks[idx*10+2]*st) * scaleW,
							(ay + marks[idx*10+3]*st) * scaleH,
						}
						faces = append(faces, face)
					}
					idx++
				}
			}
		}
	}

	return faces
}

func (d *detector) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		if t != nil {
			t.Destroy()
		}
	}
}

// suppressOverlaps drops lower-confidence faces whose boxes overlap a
// kept face beyond the IoU threshold.
func suppressOverlaps(faces []Face, iouThreshold float32) []Face {
	if len(faces) < 2 {
		return faces
	}

	sort.Slice(faces, func(i, j int) bool {
		return faces[i].Confidence > faces[j].Confidence
	})

	var kept []Face
	for _, f := range faces {
		overlaps := false
		for _, k := range kept {
			if iou(f.BBox, k.BBox) > iouThreshold {
				overlaps = true
				break
			}
		}
		if !overlaps {
			kept = append(kept, f)
		}
	}
	return kept
}

func iou(a, b [4]float32) float32 {
	x1 := float32(math.Max(float64(a[0]), float64(b[0])))
	y1 := float32(math.Max(float64(a[1]), float64(b[1])))
	x2 := float32(math.Min(float64(a[2]), float64(b[2])))
	y2 := float32(math.Min(float64(a[3]), float64(b[3])))

	inter := float32(math.Max(0, float64(x2-x1))) * float32(math.Max(0, float64(y2-y1)))
	areaA := (a[2] - a[0]) * (a[3] - a[1])
	areaB := (b[2] - b[0]) * (b[3] - b[1])
	union := areaA + areaB - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
