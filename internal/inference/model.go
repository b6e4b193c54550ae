// Package inference wraps on-device image classification models behind a
// swappable, cached adapter.
package inference

import (
	"context"
	"fmt"
	"image"
	"slices"
	"strings"
)

// ModelType identifies one of the supported classification models.
type ModelType string

const (
	MobileNetV2       ModelType = "mobilenet_v2"
	EfficientNetLite0 ModelType = "efficientnet_lite0"
	ResNet50          ModelType = "resnet50"
)

// ModelSpec describes the on-disk assets and input contract of a model.
type ModelSpec struct {
	Type      ModelType
	Name      string  // human readable
	ModelFile string  // relative to the model directory
	LabelFile string  // relative to the model directory
	InputSize int     // square input edge in pixels
	Mean      float32 // float input normalization: (v - Mean) / Std
	Std       float32
}

var modelSpecs = map[ModelType]ModelSpec{
	MobileNetV2: {
		Type: MobileNetV2, Name: "MobileNet V2",
		ModelFile: "mobilenet_v2_1.0_224.tflite", LabelFile: "imagenet_labels.txt",
		InputSize: 224, Mean: 127.5, Std: 127.5,
	},
	EfficientNetLite0: {
		Type: EfficientNetLite0, Name: "EfficientNet Lite0",
		ModelFile: "efficientnet_lite0.tflite", LabelFile: "imagenet_labels.txt",
		InputSize: 224, Mean: 127, Std: 128,
	},
	ResNet50: {
		Type: ResNet50, Name: "ResNet-50",
		ModelFile: "resnet50.tflite", LabelFile: "imagenet_labels.txt",
		InputSize: 224, Mean: 127.5, Std: 127.5,
	},
}

// SupportedModels returns the supported model types in a stable order.
func SupportedModels() []ModelType {
	types := make([]ModelType, 0, len(modelSpecs))
	for t := range modelSpecs {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

// ParseModelType accepts the canonical id in any case.
func ParseModelType(s string) (ModelType, error) {
	t := ModelType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := modelSpecs[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModel, s)
	}
	return t, nil
}

// Spec returns the model specification.
func (t ModelType) Spec() (ModelSpec, bool) {
	spec, ok := modelSpecs[t]
	return spec, ok
}

func (t ModelType) String() string { return string(t) }

// Prediction is a raw model score for one class.
type Prediction struct {
	Label      string
	Confidence float32
}

// Info describes a loaded model.
type Info struct {
	Type       ModelType
	Name       string
	Classes    int
	Accelerate string // "xnnpack" or "cpu"
	Threads    int
}

// Model is a loaded classification model. Implementations must be safe for
// concurrent Predict calls.
type Model interface {
	Info() Info
	Predict(ctx context.Context, img image.Image) ([]Prediction, error)
	Close() error
}

// Loader creates models by type.
type Loader interface {
	Load(ctx context.Context, t ModelType) (Model, error)
}
