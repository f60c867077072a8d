package detections

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// Preprocessor writes an image into a planar RGB float32 tensor scaled to [0,1].
type Preprocessor struct {
	size       int
	numWorkers int
}

func NewPreprocessor(size int) *Preprocessor {
	return &Preprocessor{
		size:       size,
		numWorkers: max(1, min(runtime.GOMAXPROCS(0), size)),
	}
}

// CPUFeatures lists the vector extensions onnxruntime can take advantage of on
// this host. Only used for startup diagnostics.
func CPUFeatures() []string {
	var features []string
	switch runtime.GOARCH {
	case "amd64", "386":
		if cpu.X86.HasSSE41 {
			features = append(features, "sse4.1")
		}
		if cpu.X86.HasAVX2 {
			features = append(features, "avx2")
		}
		if cpu.X86.HasFMA {
			features = append(features, "fma")
		}
		if cpu.X86.HasAVX512F {
			features = append(features, "avx512f")
		}
	case "arm64":
		if cpu.ARM64.HasASIMD {
			features = append(features, "asimd")
		}
		if cpu.ARM64.HasFPHP {
			features = append(features, "fp16")
		}
		if cpu.ARM64.HasSVE {
			features = append(features, "sve")
		}
	}
	return features
}

// Process fills dst from img, which must be exactly size x size.
func (p *Preprocessor) Process(img image.Image, dst []float32) error {
	b := img.Bounds()
	if b.Dx() != p.size || b.Dy() != p.size {
		return fmt.Errorf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), p.size, p.size)
	}
	if want := 3 * p.size * p.size; len(dst) != want {
		return fmt.Errorf("tensor holds %d values, want %d", len(dst), want)
	}

	row := func(y int, buffer []float32) { p.processGenericRow(img, y, buffer) }
	if nrgba, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		row = func(y int, buffer []float32) { p.processNRGBARow(nrgba, y, buffer) }
	}

	p.processParallel(dst, row)
	return nil
}

func (p *Preprocessor) processParallel(buffer []float32, row func(y int, buffer []float32)) {
	rowsPerWorker := p.size / p.numWorkers

	var wg sync.WaitGroup
	wg.Add(p.numWorkers)

	for w := 0; w < p.numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == p.numWorkers-1 {
			endRow = p.size
		}

		go func(start, end int) {
			defer wg.Done()
			for y := start; y < end; y++ {
				row(y, buffer)
			}
		}(startRow, endRow)
	}

	wg.Wait()
}

// processNRGBARow reads Pix directly and ignores alpha. Decoded images are
// flattened to opaque before letterboxing.
func (p *Preprocessor) processNRGBARow(img *image.NRGBA, y int, buffer []float32) {
	channelSize := p.size * p.size
	src := img.Pix[y*img.Stride : y*img.Stride+p.size*4]
	offset := y * p.size
	for x := 0; x < p.size; x++ {
		i := offset + x
		buffer[i] = float32(src[x*4]) / 255.0
		buffer[channelSize+i] = float32(src[x*4+1]) / 255.0
		buffer[channelSize*2+i] = float32(src[x*4+2]) / 255.0
	}
}

func (p *Preprocessor) processGenericRow(img image.Image, y int, buffer []float32) {
	channelSize := p.size * p.size
	b := img.Bounds()
	offset := y * p.size
	for x := 0; x < p.size; x++ {
		i := offset + x
		r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
		buffer[i] = float32(r>>8) / 255.0
		buffer[channelSize+i] = float32(g>>8) / 255.0
		buffer[channelSize*2+i] = float32(bl>>8) / 255.0
	}
}
