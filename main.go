package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/pomegranate-lab/stage-detection-service/config"
	"github.com/pomegranate-lab/stage-detection-service/detections"
	"github.com/pomegranate-lab/stage-detection-service/logging"
	"github.com/pomegranate-lab/stage-detection-service/metrics"
	"github.com/pomegranate-lab/stage-detection-service/stages"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	if cfg.Debug && !logger.IsLevelEnabled(logrus.DebugLevel) {
		logger.SetLevel(logrus.DebugLevel)
	}

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server failed: %v", err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	if err := initRuntime(cfg.OnnxLibPath); err != nil {
		return err
	}
	defer ort.DestroyEnvironment()

	spec, err := detections.LoadModelSpec(cfg.ModelPath, cfg.ClassNamesPath)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"model":      spec.Path,
		"input_size": spec.InputSize,
		"classes":    spec.NumClasses,
		"anchors":    spec.NumAnchors,
	}).Info("Model loaded")
	for idx := 0; idx < spec.NumClasses; idx++ {
		logger.Debugf("class %d: %s", idx, spec.ClassName(idx))
	}

	labels, err := stages.LoadLabelMap(cfg.LabelsPath)
	if err != nil {
		return fmt.Errorf("failed to load label map: %w", err)
	}

	sessionOpts := detections.SessionOptions{IntraOpThreads: cfg.IntraOpThreads, InterOpThreads: 1}
	pool, err := NewModelSessionPool(cfg.PoolSize, func() (*detections.ModelSession, error) {
		session, err := detections.NewModelSession(spec, sessionOpts)
		if err != nil {
			return nil, err
		}
		if err := session.WarmUp(); err != nil {
			session.Destroy()
			return nil, err
		}
		return session, nil
	})
	if err != nil {
		return fmt.Errorf("failed to create model session pool: %w", err)
	}
	defer pool.Destroy()

	logger.WithFields(logrus.Fields{
		"pool_size":     cfg.PoolSize,
		"intra_threads": cfg.IntraOpThreads,
		"cpu_features":  strings.Join(detections.CPUFeatures(), ","),
	}).Info("Model sessions ready")

	m := metrics.New()
	m.RegisterPool(pool)

	decodeOpts := detections.DecodeOptions{
		ConfThreshold: float32(cfg.ConfThreshold),
		IoUThreshold:  float32(cfg.IoUThreshold),
		MaxDetections: cfg.MaxDetections,
	}

	state := &AppState{
		Detector:       newPooledDetector(pool, decodeOpts, m),
		ClassNames:     spec,
		Labels:         labels,
		Pool:           pool,
		Metrics:        m,
		Log:            logger,
		MaxUploadBytes: cfg.MaxUploadBytes(),
		MaxImagePixels: cfg.MaxImagePixels,
	}

	srv := &http.Server{
		Handler:      newRouter(state),
		Addr:         cfg.Addr(),
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Starting server on http://%s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case sig := <-sigChan:
		logger.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}
