package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/pomegranate-lab/stage-detection-service/detections"
	"github.com/pomegranate-lab/stage-detection-service/metrics"
	"github.com/pomegranate-lab/stage-detection-service/models"
)

var (
	ErrEmptyImage    = errors.New("empty image")
	ErrTooManyPixels = errors.New("image has too many pixels")
)

// Detector runs the detection model on a decoded image.
type Detector interface {
	Detect(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]detections.ResultSet, error)
}

type pooledDetector struct {
	pool    *ModelSessionPool
	opts    detections.DecodeOptions
	metrics *metrics.Metrics
}

func newPooledDetector(pool *ModelSessionPool, opts detections.DecodeOptions, m *metrics.Metrics) *pooledDetector {
	return &pooledDetector{pool: pool, opts: opts, metrics: m}
}

func (d *pooledDetector) Detect(ctx context.Context, img image.Image, timings *models.ProcessingTimings) ([]detections.ResultSet, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	session, err := d.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer d.pool.Release(session)

	sets, err := session.Infer(ctx, img, d.opts, timings)
	if err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.ObserveInference(timings.Inference)
	}
	return sets, nil
}

// decodeImage decodes any registered format and applies the EXIF orientation.
// Images whose header declares more than maxPixels pixels are refused before
// any pixel buffer is allocated. Alpha is discarded: transparent pixels keep
// their stored color.
func decodeImage(data []byte, maxPixels int64) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, ErrEmptyImage
	}
	if maxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > maxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooManyPixels, cfg.Width, cfg.Height, maxPixels)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	if img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	return dropAlpha(img), nil
}

type opaquer interface {
	Opaque() bool
}

func dropAlpha(img image.Image) image.Image {
	if o, ok := img.(opaquer); ok && o.Opaque() {
		return img
	}
	flat := imaging.Clone(img)
	for i := 3; i < len(flat.Pix); i += 4 {
		flat.Pix[i] = 0xff
	}
	return flat
}
