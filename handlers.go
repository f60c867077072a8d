package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pomegranate-lab/stage-detection-service/metrics"
	"github.com/pomegranate-lab/stage-detection-service/models"
	"github.com/pomegranate-lab/stage-detection-service/stages"
)

const (
	ImageField = "image"

	// multipartMemory is how much of a multipart body is held in memory
	// before parts spill to temporary files.
	multipartMemory = 10 << 20
)

var (
	ErrMissingImage  = errors.New("missing image")
	ErrImageTooLarge = errors.New("image too large")
	errBadEncoding   = errors.New("image field is not valid base64")
)

type AppState struct {
	Detector       Detector
	ClassNames     stages.ClassNamer
	Labels         stages.LabelMap
	Pool           *ModelSessionPool
	Metrics        *metrics.Metrics
	Log            *logrus.Logger
	MaxUploadBytes int64
	MaxImagePixels int64
}

func logTimings(log logrus.FieldLogger, t *models.ProcessingTimings) {
	log.WithFields(logrus.Fields{
		"decode":      t.ImageDecode,
		"letterbox":   t.Letterbox,
		"preprocess":  t.Preprocess,
		"inference":   t.Inference,
		"postprocess": t.Postprocess,
		"aggregate":   t.Aggregate,
		"total":       t.Total,
	}).Debug("processing times")
}

func handlePredict(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		ctx := r.Context()
		requestID := RequestIDFrom(ctx)
		timings := &models.ProcessingTimings{RequestID: requestID}
		log := state.Log.WithField("request_id", requestID)

		imgBytes, err := readImage(w, r, state.MaxUploadBytes)
		if err != nil {
			switch {
			case errors.Is(err, ErrImageTooLarge):
				log.WithError(err).Warn(LogImageTooLarge)
				sendErrorResponse(w, MsgImageTooLarge, http.StatusRequestEntityTooLarge)
			case errors.Is(err, errBadEncoding):
				log.WithError(err).Warn(LogDecodeFailure)
				sendErrorResponse(w, MsgDecodeFailure, http.StatusBadRequest)
			default:
				log.WithError(err).Warn(LogMissingImage)
				sendErrorResponse(w, MsgMissingImage, http.StatusBadRequest)
			}
			return
		}

		decodeStart := time.Now()
		img, err := decodeImage(imgBytes, state.MaxImagePixels)
		timings.ImageDecode = time.Since(decodeStart)
		if err != nil {
			log.WithError(err).Warn(LogDecodeFailure)
			sendErrorResponse(w, MsgDecodeFailure, http.StatusBadRequest)
			return
		}

		sets, err := state.Detector.Detect(ctx, img, timings)
		if err != nil {
			log.WithError(err).Error(LogInternalError)
			sendErrorResponse(w, MsgInternalError, http.StatusInternalServerError)
			return
		}

		aggregateStart := time.Now()
		response := stages.Aggregate(sets, state.ClassNames, state.Labels)
		timings.Aggregate = time.Since(aggregateStart)

		if state.Metrics != nil {
			state.Metrics.ObserveStageCounts(response.StageCounts)
		}

		timings.Total = time.Since(startTotal)
		response.Time = roundSeconds(timings.Total)
		logTimings(log, timings)

		sendJSON(w, response, http.StatusOK)
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	sendJSON(w, models.HealthResponse{Status: "ok", Model: "loaded"}, http.StatusOK)
}

func (s *AppState) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	if s.Pool == nil {
		sendJSON(w, models.PoolStats{}, http.StatusOK)
		return
	}
	sendJSON(w, s.Pool.Stats(), http.StatusOK)
}

// readImage extracts the raw image bytes from a multipart upload or a JSON body
// carrying base64. Any other content type has no image.
func readImage(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, fmt.Errorf("%w: content type: %v", ErrMissingImage, err)
	}

	switch mediaType {
	case "multipart/form-data":
		return handleMultipartRequest(r)
	case "application/json":
		return handleJSONRequest(r)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrMissingImage, mediaType)
	}
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, classifyBodyError(err)
	}

	file, _, err := r.FormFile(ImageField)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingImage, err)
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, classifyBodyError(err)
	}
	if req.Image == "" {
		return nil, ErrMissingImage
	}

	data := req.Image
	// Accept data URLs as produced by FileReader.readAsDataURL.
	if strings.HasPrefix(data, "data:") {
		if i := strings.Index(data, ","); i >= 0 {
			data = data[i+1:]
		}
	}

	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadEncoding, err)
	}
	return decoded, nil
}

func classifyBodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return fmt.Errorf("%w: limit %d bytes", ErrImageTooLarge, maxErr.Limit)
	}
	return fmt.Errorf("%w: %v", ErrMissingImage, err)
}

// roundSeconds reports d in seconds rounded to two decimals.
func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}

func sendJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendErrorResponse(w http.ResponseWriter, message string, status int) {
	sendJSON(w, models.ErrorResponse{Error: message}, status)
}
