package detections

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	ort "github.com/yalue/onnxruntime_go"
	"gopkg.in/yaml.v3"
)

// NamesMetadataKey is the custom metadata key YOLO exporters use for the class table.
const NamesMetadataKey = "names"

var ErrNoClassNames = errors.New("no class names found")

// ModelSpec describes the tensors of a loaded YOLO detection model. It is built
// once at startup and shared read-only by every session.
type ModelSpec struct {
	Path       string
	InputName  string
	OutputName string
	InputSize  int
	NumClasses int
	NumAnchors int
	ClassNames map[int]string
}

// ClassName resolves a class index, falling back to the index itself.
func (s *ModelSpec) ClassName(idx int) string {
	if name, ok := s.ClassNames[idx]; ok {
		return name
	}
	return strconv.Itoa(idx)
}

func (s *ModelSpec) InputShape() ort.Shape {
	return ort.NewShape(1, 3, int64(s.InputSize), int64(s.InputSize))
}

func (s *ModelSpec) OutputShape() ort.Shape {
	return ort.NewShape(1, int64(BoxChannels+s.NumClasses), int64(s.NumAnchors))
}

// LoadModelSpec inspects the ONNX file at modelPath. When classNamesPath is set
// its YAML table replaces the names embedded in the model metadata.
func LoadModelSpec(modelPath, classNamesPath string) (*ModelSpec, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %s: %w", modelPath, err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model inputs/outputs: %w", err)
	}

	var names map[int]string
	if classNamesPath != "" {
		data, err := os.ReadFile(classNamesPath)
		if err != nil {
			return nil, fmt.Errorf("error reading class names file: %w", err)
		}
		names, err = ParseClassNames(string(data))
		if err != nil {
			return nil, fmt.Errorf("error parsing class names file %s: %w", classNamesPath, err)
		}
	} else {
		names, err = readMetadataNames(modelPath)
		if err != nil && !errors.Is(err, ErrNoClassNames) {
			return nil, err
		}
	}

	return buildModelSpec(modelPath, inputs, outputs, names)
}

func readMetadataNames(modelPath string) (map[int]string, error) {
	meta, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		return nil, fmt.Errorf("error reading model metadata: %w", err)
	}
	defer meta.Destroy()

	raw, ok, err := meta.LookupCustomMetadataMap(NamesMetadataKey)
	if err != nil {
		return nil, fmt.Errorf("error looking up %q metadata: %w", NamesMetadataKey, err)
	}
	if !ok {
		return nil, ErrNoClassNames
	}
	return ParseClassNames(raw)
}

// ParseClassNames accepts either an index map ({0: 'Bud', 1: 'Flower'}, the
// form written into YOLO ONNX metadata) or a plain YAML list of names.
func ParseClassNames(raw string) (map[int]string, error) {
	var indexed map[int]string
	if err := yaml.Unmarshal([]byte(raw), &indexed); err == nil {
		if len(indexed) == 0 {
			return nil, ErrNoClassNames
		}
		return indexed, nil
	}

	var list []string
	if err := yaml.Unmarshal([]byte(raw), &list); err != nil {
		return nil, fmt.Errorf("class names are neither a map nor a list: %w", err)
	}
	if len(list) == 0 {
		return nil, ErrNoClassNames
	}
	indexed = make(map[int]string, len(list))
	for i, name := range list {
		indexed[i] = name
	}
	return indexed, nil
}

func buildModelSpec(path string, inputs, outputs []ort.InputOutputInfo, names map[int]string) (*ModelSpec, error) {
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected 1 input and 1 output, got %d and %d", len(inputs), len(outputs))
	}
	in, out := inputs[0], outputs[0]
	if in.DataType != ort.TensorElementDataTypeFloat || out.DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("expected float32 tensors, got input %v and output %v", in.DataType, out.DataType)
	}
	if len(in.Dimensions) != 4 {
		return nil, fmt.Errorf("unexpected input shape %v", in.Dimensions)
	}
	if len(out.Dimensions) != 3 {
		return nil, fmt.Errorf("unexpected output shape %v", out.Dimensions)
	}

	spec := &ModelSpec{
		Path:       path,
		InputName:  in.Name,
		OutputName: out.Name,
		InputSize:  DefaultInputSize,
		ClassNames: names,
	}

	h, w := in.Dimensions[2], in.Dimensions[3]
	if h > 0 && w > 0 {
		if h != w {
			return nil, fmt.Errorf("non-square model input %dx%d", w, h)
		}
		spec.InputSize = int(h)
	}

	if c := out.Dimensions[1]; c > 0 {
		spec.NumClasses = int(c) - BoxChannels
	} else {
		spec.NumClasses = len(names)
	}
	if spec.NumClasses <= 0 {
		return nil, fmt.Errorf("cannot infer class count from output shape %v", out.Dimensions)
	}

	if a := out.Dimensions[2]; a > 0 {
		spec.NumAnchors = int(a)
	} else {
		spec.NumAnchors = anchorsFor(spec.InputSize)
	}

	return spec, nil
}

// anchorsFor counts the grid cells of the stride 8, 16 and 32 heads.
func anchorsFor(size int) int {
	total := 0
	for _, stride := range []int{8, 16, 32} {
		cells := size / stride
		total += cells * cells
	}
	return total
}
