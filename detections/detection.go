package detections

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/pomegranate-lab/stage-detection-service/models"

	ort "github.com/yalue/onnxruntime_go"
)

type SessionOptions struct {
	IntraOpThreads int
	InterOpThreads int
}

// ModelSession owns one onnxruntime session together with the tensors bound to
// it. A session must not be run by two goroutines at once.
type ModelSession struct {
	Session      *ort.AdvancedSession
	Input        *ort.Tensor[float32]
	Output       *ort.Tensor[float32]
	spec         *ModelSpec
	preprocessor *Preprocessor
}

func NewModelSession(spec *ModelSpec, opts SessionOptions) (*ModelSession, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("error creating session options: %w", err)
	}
	defer options.Destroy()

	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("error setting intra-op threads: %w", err)
		}
	}
	if opts.InterOpThreads > 0 {
		if err := options.SetInterOpNumThreads(opts.InterOpThreads); err != nil {
			return nil, fmt.Errorf("error setting inter-op threads: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](spec.InputShape())
	if err != nil {
		return nil, fmt.Errorf("error creating input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](spec.OutputShape())
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("error creating output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		spec.Path,
		[]string{spec.InputName},
		[]string{spec.OutputName},
		[]ort.ArbitraryTensor{inputTensor},
		[]ort.ArbitraryTensor{outputTensor},
		options,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("error creating session: %w", err)
	}

	return &ModelSession{
		Session:      session,
		Input:        inputTensor,
		Output:       outputTensor,
		spec:         spec,
		preprocessor: NewPreprocessor(spec.InputSize),
	}, nil
}

func (m *ModelSession) Destroy() {
	if m.Session != nil {
		m.Session.Destroy()
	}
	if m.Input != nil {
		m.Input.Destroy()
	}
	if m.Output != nil {
		m.Output.Destroy()
	}
}

// WarmUp runs the graph once on a blank input so the first request does not pay
// for lazy allocations inside onnxruntime.
func (m *ModelSession) WarmUp() error {
	clear(m.Input.GetData())
	if err := m.Session.Run(); err != nil {
		return &ProcessingError{Stage: "warmup", Cause: err}
	}
	return nil
}

type ProcessingError struct {
	Stage string
	Cause error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Stage, e.Cause)
	}
	return e.Stage
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Infer runs one image through the model. The model only ever sees a single
// image per call, so exactly one ResultSet is returned.
func (m *ModelSession) Infer(ctx context.Context, img image.Image, opts DecodeOptions, timings *models.ProcessingTimings) ([]ResultSet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	letterboxStart := time.Now()
	canvas, params := Letterbox(img, m.spec.InputSize)
	timings.Letterbox = time.Since(letterboxStart)

	prepStart := time.Now()
	if err := m.preprocessor.Process(canvas, m.Input.GetData()); err != nil {
		return nil, &ProcessingError{Stage: "prepare input buffer", Cause: err}
	}
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	if err := m.Session.Run(); err != nil {
		return nil, &ProcessingError{Stage: "model inference", Cause: err}
	}
	timings.Inference = time.Since(inferStart)

	postStart := time.Now()
	b := img.Bounds()
	boxes, err := DecodeOutput(m.Output.GetData(), m.spec.NumClasses, m.spec.NumAnchors, params, b.Dx(), b.Dy(), opts)
	if err != nil {
		return nil, &ProcessingError{Stage: "process predictions", Cause: err}
	}
	timings.Postprocess = time.Since(postStart)

	return []ResultSet{{Boxes: boxes}}, nil
}
