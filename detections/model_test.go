package detections

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	ort "github.com/yalue/onnxruntime_go"
)

const stageNamesMetadata = "{0: 'Bud', 1: 'Dry', 2: 'Early-growth', 3: 'Flower', 4: 'Maturity', 5: 'Mid-Growth', 6: 'not-pomegranate'}"

func tensorInfo(name string, dims ...int64) ort.InputOutputInfo {
	return ort.InputOutputInfo{
		Name:         name,
		OrtValueType: ort.ONNXTypeTensor,
		Dimensions:   ort.NewShape(dims...),
		DataType:     ort.TensorElementDataTypeFloat,
	}
}

func TestParseClassNamesMetadataMap(t *testing.T) {
	names, err := ParseClassNames(stageNamesMetadata)
	require.NoError(t, err)
	assert.Len(t, names, 7)
	assert.Equal(t, "Bud", names[0])
	assert.Equal(t, "Mid-Growth", names[5])
	assert.Equal(t, "not-pomegranate", names[6])
}

func TestParseClassNamesList(t *testing.T) {
	names, err := ParseClassNames("- Bud\n- Flower\n")
	require.NoError(t, err)
	assert.Equal(t, map[int]string{0: "Bud", 1: "Flower"}, names)
}

func TestParseClassNamesEmpty(t *testing.T) {
	_, err := ParseClassNames("")
	assert.ErrorIs(t, err, ErrNoClassNames)

	_, err = ParseClassNames("[]")
	assert.ErrorIs(t, err, ErrNoClassNames)
}

func TestBuildModelSpecStaticShapes(t *testing.T) {
	names, err := ParseClassNames(stageNamesMetadata)
	require.NoError(t, err)

	spec, err := buildModelSpec("best.onnx",
		[]ort.InputOutputInfo{tensorInfo("images", 1, 3, 640, 640)},
		[]ort.InputOutputInfo{tensorInfo("output0", 1, 11, 8400)},
		names)
	require.NoError(t, err)

	assert.Equal(t, "images", spec.InputName)
	assert.Equal(t, "output0", spec.OutputName)
	assert.Equal(t, 640, spec.InputSize)
	assert.Equal(t, 7, spec.NumClasses)
	assert.Equal(t, 8400, spec.NumAnchors)
	assert.Equal(t, ort.NewShape(1, 11, 8400), spec.OutputShape())
	assert.Equal(t, ort.NewShape(1, 3, 640, 640), spec.InputShape())
}

func TestBuildModelSpecDynamicShapes(t *testing.T) {
	spec, err := buildModelSpec("best.onnx",
		[]ort.InputOutputInfo{tensorInfo("images", -1, 3, -1, -1)},
		[]ort.InputOutputInfo{tensorInfo("output0", -1, -1, -1)},
		map[int]string{0: "Bud", 1: "Flower"})
	require.NoError(t, err)

	assert.Equal(t, DefaultInputSize, spec.InputSize)
	assert.Equal(t, 2, spec.NumClasses)
	assert.Equal(t, 8400, spec.NumAnchors)
}

func TestBuildModelSpecRejectsUnsupportedModels(t *testing.T) {
	_, err := buildModelSpec("m.onnx",
		[]ort.InputOutputInfo{tensorInfo("a", 1, 3, 640, 640), tensorInfo("b", 1, 3, 640, 640)},
		[]ort.InputOutputInfo{tensorInfo("output0", 1, 11, 8400)}, nil)
	assert.Error(t, err)

	_, err = buildModelSpec("m.onnx",
		[]ort.InputOutputInfo{tensorInfo("images", 1, 3, 640, 320)},
		[]ort.InputOutputInfo{tensorInfo("output0", 1, 11, 8400)}, nil)
	assert.Error(t, err)

	_, err = buildModelSpec("m.onnx",
		[]ort.InputOutputInfo{tensorInfo("images", 1, 3, 640, 640)},
		[]ort.InputOutputInfo{tensorInfo("output0", 1, -1, 8400)}, nil)
	assert.Error(t, err)
}

func TestClassNameFallback(t *testing.T) {
	spec := &ModelSpec{ClassNames: map[int]string{0: "Bud"}}
	assert.Equal(t, "Bud", spec.ClassName(0))
	assert.Equal(t, "3", spec.ClassName(3))
}

func TestAnchorsFor(t *testing.T) {
	assert.Equal(t, 8400, anchorsFor(640))
	assert.Equal(t, 2100, anchorsFor(320))
}
