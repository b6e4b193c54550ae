package inference

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/tphakala/lensnet-go/internal/cpuspec"
	"github.com/tphakala/lensnet-go/internal/errors"
	"github.com/tphakala/lensnet-go/internal/logger"
)

const (
	acceleratorXNNPACK = "xnnpack"
	acceleratorCPU     = "cpu"
)

// TFLiteLoader loads TensorFlow Lite classification models from a directory.
type TFLiteLoader struct {
	dir        string
	threads    int
	useXNNPACK bool
	log        logger.Logger
}

// NewTFLiteLoader creates a loader for models stored in dir. A threads value
// of zero sizes the interpreter from the host CPU.
func NewTFLiteLoader(dir string, threads int, useXNNPACK bool) *TFLiteLoader {
	return &TFLiteLoader{
		dir:        dir,
		threads:    threads,
		useXNNPACK: useXNNPACK,
		log:        GetLogger(),
	}
}

// AssetsPresent reports whether both the model and label file of t exist.
func (l *TFLiteLoader) AssetsPresent(t ModelType) bool {
	spec, ok := t.Spec()
	if !ok {
		return false
	}
	for _, name := range []string{spec.ModelFile, spec.LabelFile} {
		if _, err := os.Stat(filepath.Join(l.dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Load implements Loader.
func (l *TFLiteLoader) Load(ctx context.Context, t ModelType) (Model, error) {
	spec, ok := t.Spec()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, t)
	}
	start := time.Now()
	modelPath := filepath.Join(l.dir, spec.ModelFile)
	labelPath := filepath.Join(l.dir, spec.LabelFile)

	for _, p := range []string{modelPath, labelPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, errors.New(fmt.Errorf("%w: %s", ErrModelAssetMissing, p)).
				Component("inference").
				Category(errors.CategoryModelLoad).
				Priority(errors.PriorityCritical).
				ModelContext(string(t), p).
				Build()
		}
	}

	labels, err := ReadLabels(labelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryLabelLoad).
			ModelContext(string(t), labelPath).
			Build()
	}

	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryFileIO).
			ModelContext(string(t), modelPath).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.Newf("cannot load TensorFlow Lite model %s", spec.ModelFile).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(string(t), modelPath).
			Context("model_size_mb", len(data)/1024/1024).
			Timing("model-init", time.Since(start)).
			Build()
	}

	threads := l.threadCount()
	m, err := l.newModel(model, spec, labels, threads, l.useXNNPACK)
	if err != nil && l.useXNNPACK {
		// reduced capability retry without the delegate
		l.log.Warn("XNNPACK initialization failed, retrying on plain CPU",
			logger.String("model", string(t)),
			logger.Error(err))
		m, err = l.newModel(model, spec, labels, threads, false)
	}
	if err != nil {
		model.Delete()
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryModelInit).
			ModelContext(string(t), modelPath).
			Timing("model-init", time.Since(start)).
			Build()
	}

	// TFLite keeps its own copy of the model bytes
	runtime.GC()
	return m, nil
}

func (l *TFLiteLoader) threadCount() int {
	if l.threads > 0 {
		return min(l.threads, runtime.NumCPU())
	}
	return max(1, cpuspec.GetCPUSpec().GetOptimalThreadCount())
}

func (l *TFLiteLoader) newModel(model *tflite.Model, spec ModelSpec, labels []string, threads int, useXNNPACK bool) (*tfliteModel, error) {
	options := tflite.NewInterpreterOptions()
	accel := acceleratorCPU
	if useXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))}) //nolint:gosec // bounded by CPU count
		if delegate == nil {
			options.Delete()
			return nil, fmt.Errorf("cannot create XNNPACK delegate")
		}
		options.AddDelegate(delegate)
		options.SetNumThread(1)
		accel = acceleratorXNNPACK
	} else {
		options.SetNumThread(threads)
	}
	options.SetErrorReporter(func(msg string, _ any) {
		GetLogger().Error("TFLite error", logger.String("message", msg))
	}, nil)

	interp := tflite.NewInterpreter(model, options)
	if interp == nil {
		options.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}
	if status := interp.AllocateTensors(); status != tflite.OK {
		interp.Delete()
		options.Delete()
		return nil, fmt.Errorf("tensor allocation failed: %v", status)
	}

	input := interp.GetInputTensor(0)
	output := interp.GetOutputTensor(0)
	if input == nil || output == nil || input.NumDims() != 4 {
		interp.Delete()
		options.Delete()
		return nil, fmt.Errorf("unexpected model signature")
	}

	classes := output.Dim(output.NumDims() - 1)
	labels, err := alignLabels(labels, classes)
	if err != nil {
		interp.Delete()
		options.Delete()
		return nil, err
	}

	return &tfliteModel{
		model:   model,
		options: options,
		interp:  interp,
		spec:    spec,
		labels:  labels,
		width:   input.Dim(2),
		height:  input.Dim(1),
		info: Info{
			Type:       spec.Type,
			Name:       spec.Name,
			Classes:    classes,
			Accelerate: accel,
			Threads:    threads,
		},
	}, nil
}

// tfliteModel is a loaded interpreter. The interpreter is not reentrant, so
// Predict is serialized.
type tfliteModel struct {
	mu      sync.Mutex
	model   *tflite.Model
	options *tflite.InterpreterOptions
	interp  *tflite.Interpreter
	spec    ModelSpec
	labels  []string
	width   int
	height  int
	info    Info
	closed  bool
}

func (m *tfliteModel) Info() Info { return m.info }

func (m *tfliteModel) Predict(ctx context.Context, img image.Image) ([]Prediction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrAdapterClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	input := m.interp.GetInputTensor(0)
	if input == nil {
		return nil, fmt.Errorf("cannot get input tensor")
	}
	rgb := resizeRGBA(img, m.width, m.height)
	switch input.Type() {
	case tflite.UInt8:
		fillUint8(input.UInt8s(), rgb)
	case tflite.Float32:
		fillFloat32(input.Float32s(), rgb, m.spec.Mean, m.spec.Std)
	default:
		return nil, fmt.Errorf("unsupported input tensor type %v", input.Type())
	}

	if status := m.interp.Invoke(); status != tflite.OK {
		return nil, fmt.Errorf("tensor invoke failed: %v", status)
	}

	output := m.interp.GetOutputTensor(0)
	scores := make([]float32, len(m.labels))
	switch output.Type() {
	case tflite.UInt8:
		q := output.QuantizationParams()
		for i, v := range output.UInt8s()[:len(scores)] {
			scores[i] = float32(q.Scale * float64(int(v)-q.ZeroPoint))
		}
	default:
		copy(scores, output.Float32s())
	}

	preds := make([]Prediction, len(scores))
	for i, s := range scores {
		preds[i] = Prediction{Label: m.labels[i], Confidence: s}
	}
	return preds, nil
}

func (m *tfliteModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.interp.Delete()
	m.options.Delete()
	m.model.Delete()
	return nil
}
