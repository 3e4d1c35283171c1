package vision

import (
	"context"
	"fmt"
	"image"
	"math"
	"path/filepath"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/faceauth/internal/config"
	"github.com/your-org/faceauth/internal/errs"
	"github.com/your-org/faceauth/internal/observability"
)

// ONNXProvider implements Provider with local ONNX models: a RetinaFace
// detector for face localisation and an ArcFace embedder. Sessions use
// pre-bound tensors, so calls are serialised with a mutex.
type ONNXProvider struct {
	mu       sync.Mutex
	detector *detector
	embedder *embedder
}

// NewONNXProvider loads both models from cfg.ModelsDir. The caller must
// have initialised the ONNX Runtime environment.
func NewONNXProvider(cfg config.VisionConfig) (*ONNXProvider, error) {
	det, err := newDetector(filepath.Join(cfg.ModelsDir, "det_10g.onnx"), float32(cfg.DetectionThreshold))
	if err != nil {
		return nil, fmt.Errorf("load detector: %w", err)
	}

	emb, err := newEmbedder(filepath.Join(cfg.ModelsDir, "w600k_r50.onnx"), cfg.EmbeddingDim)
	if err != nil {
		det.close()
		return nil, fmt.Errorf("load embedder: %w", err)
	}

	return &ONNXProvider{detector: det, embedder: emb}, nil
}

func (p *ONNXProvider) Dimension() int {
	return p.embedder.dim
}

// Embed extracts the embedding for the single face in image. Zero or
// multiple detected faces are taxonomy errors the caller surfaces as
// "retake photo".
func (p *ONNXProvider) Embed(ctx context.Context, image []byte) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	img, face, err := p.detectSingle(image)
	if err != nil {
		return nil, err
	}

	crop := cropFace(img, face.BBox)
	if crop == nil {
		return nil, errs.New(errs.CodeNoFaceDetected, "face region empty")
	}

	start := time.Now()
	input := toCHW(crop, p.embedder.inputW, p.embedder.inputH, 127.5, 127.5)
	emb, err := p.embedder.extract(input)
	observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return emb, nil
}

// EyeOpenness measures how open the subject's eyes are in this frame.
// The score is the normalised intensity variance of small patches around
// both detected eye centers: an open eye (iris against sclera) is high
// contrast, a closed lid is nearly uniform skin.
func (p *ONNXProvider) EyeOpenness(ctx context.Context, image []byte) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	img, face, err := p.detectSingle(image)
	if err != nil {
		return 0, err
	}

	faceW := float64(face.BBox[2] - face.BBox[0])
	if faceW <= 0 {
		return 0, errs.New(errs.CodeNoFaceDetected, "face region empty")
	}
	// Patch size scales with the face so distance does not skew the score.
	patch := int(faceW * 0.12)
	if patch < 4 {
		patch = 4
	}

	left := patchStdDev(img, int(face.LeftEye[0]), int(face.LeftEye[1]), patch)
	right := patchStdDev(img, int(face.RightEye[0]), int(face.RightEye[1]), patch)

	// Normalise to roughly [0,1]; 64 is the intensity spread of a
	// fully open eye patch under ordinary lighting.
	openness := ((left + right) / 2) / 64.0
	if openness > 1 {
		openness = 1
	}
	return openness, nil
}

func (p *ONNXProvider) detectSingle(data []byte) (img image.Image, face Face, err error) {
	img, err = decodeImage(data)
	if err != nil {
		return img, face, errs.Wrap(errs.CodeValidation, "decode image", err)
	}

	bounds := img.Bounds()
	start := time.Now()
	input := toCHW(img, p.detector.inputW, p.detector.inputH, 127.5, 128.0)
	faces, err := p.detector.detect(input, bounds.Dx(), bounds.Dy())
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return img, face, fmt.Errorf("detect: %w", err)
	}

	switch len(faces) {
	case 0:
		return img, face, errs.New(errs.CodeNoFaceDetected, "no face detected in image")
	case 1:
		return img, faces[0], nil
	default:
		return img, face, errs.Newf(errs.CodeMultipleFaces, "%d faces detected, expected one", len(faces))
	}
}

// Close releases the ONNX sessions.
func (p *ONNXProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.detector != nil {
		p.detector.close()
	}
	if p.embedder != nil {
		p.embedder.close()
	}
}

// embedder runs an ArcFace-family ONNX model over aligned face crops.
type embedder struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	dim          int
}

func newEmbedder(modelPath string, dim int) (*embedder, error) {
	inputW, inputH := 112, 112

	inputShape := ort.NewShape(1, 3, int64(inputH), int64(inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	outputShape := ort.NewShape(1, int64(dim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input.1"},
		[]string{"683"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		inputW:       inputW,
		inputH:       inputH,
		dim:          dim,
	}, nil
}

// extract runs the model on a preprocessed crop and returns an
// L2-normalised embedding.
func (e *embedder) extract(input []float32) ([]float32, error) {
	copy(e.inputTensor.GetData(), input)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	emb := make([]float32, e.dim)
	copy(emb, e.outputTensor.GetData())

	var sum float64
	for _, v := range emb {
		sum += float64(v) * float64(v)
	}
	if norm := float32(math.Sqrt(sum)); norm > 0 {
		for i := range emb {
			emb[i] /= norm
		}
	}
	return emb, nil
}

func (e *embedder) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}
