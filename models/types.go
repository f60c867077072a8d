package models

import "time"

type Detection struct {
	Stage      string     `json:"stage"`
	StageAr    string     `json:"stageAr"`
	Confidence float64    `json:"confidence"`
	BBox       [4]float64 `json:"bbox"`
}

type PredictResponse struct {
	Dominant    string         `json:"dominant"`
	DominantAr  string         `json:"dominantAr"`
	Total       int            `json:"total"`
	Detections  []Detection    `json:"detections"`
	StageCounts map[string]int `json:"stageCounts"`
	Time        float64        `json:"time"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Model  string `json:"model"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PoolStats struct {
	PoolSize        int   `json:"pool_size"`
	SessionsInUse   int   `json:"sessions_in_use"`
	TotalAcquired   int64 `json:"total_acquired"`
	TotalReleased   int64 `json:"total_released"`
	AcquireFailures int64 `json:"acquire_failures"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Letterbox   time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Aggregate   time.Duration
	Total       time.Duration
}
