package result

import (
	"encoding/json"
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Score and target bounds shared by every record type.
const (
	MinScore  = 0
	MaxScore  = 100
	MinTarget = 0
	MaxTarget = 255
)

// Detection is one bounding box reported by the sensor.
type Detection struct {
	// X is the left edge in pixels
	X int `json:"x"`

	// Y is the top edge in pixels
	Y int `json:"y"`

	// W is the box width in pixels
	W int `json:"w"`

	// H is the box height in pixels
	H int `json:"h"`

	// Score is the confidence (0-100)
	Score int `json:"score"`

	// TargetID is the class index (0-255)
	TargetID int `json:"target"`
}

// Confidence returns the detection score.
func (d Detection) Confidence() int { return d.Score }

// Target returns the class id.
func (d Detection) Target() int { return d.TargetID }

// Area returns W*H.
func (d Detection) Area() int { return d.W * d.H }

// Center returns the geometric center of the box.
func (d Detection) Center() (float64, float64) {
	return float64(d.X) + float64(d.W)/2, float64(d.Y) + float64(d.H)/2
}

// Classification is one whole-image class score.
type Classification struct {
	TargetID int `json:"target"`
	Score    int `json:"score"`
}

// Confidence returns the classification score.
func (c Classification) Confidence() int { return c.Score }

// Target returns the class id.
func (c Classification) Target() int { return c.TargetID }

// KeyPoint is one landmark.
type KeyPoint struct {
	X        int `json:"x"`
	Y        int `json:"y"`
	Score    int `json:"score"`
	TargetID int `json:"target"`
}

// Confidence returns the keypoint score.
func (k KeyPoint) Confidence() int { return k.Score }

// Target returns the class id.
func (k KeyPoint) Target() int { return k.TargetID }

// Center returns the point itself.
func (k KeyPoint) Center() (float64, float64) { return float64(k.X), float64(k.Y) }

// Scored is implemented by every record type.
type Scored interface {
	Confidence() int
	Target() int
}

// Located is implemented by records with a position.
type Located interface {
	Scored
	Center() (float64, float64)
}

func distance(l Located, x, y float64) float64 {
	cx, cy := l.Center()
	return math.Hypot(cx-x, cy-y)
}

// InferenceResult is an immutable snapshot of one read.
//
// Results are created by Parser.Parse or NewInvalid and never change
// afterwards. Accessors return copies, so callers may keep and modify
// what they receive without affecting the snapshot.
type InferenceResult struct {
	id        uuid.UUID
	raw       []byte
	timestamp time.Time
	valid     bool
	code      int
	hasCode   bool
	width     int
	height    int
	dropped   int

	detections      []Detection
	classifications []Classification
	keypoints       []KeyPoint
}

// NewInvalid returns a result marking a read that produced nothing usable.
func NewInvalid(raw []byte, at time.Time) *InferenceResult {
	return &InferenceResult{
		id:        uuid.New(),
		raw:       slices.Clone(raw),
		timestamp: at,
	}
}

// ID uniquely identifies this snapshot.
func (r *InferenceResult) ID() uuid.UUID { return r.id }

// Raw returns a copy of the response payload.
func (r *InferenceResult) Raw() []byte { return slices.Clone(r.raw) }

// Timestamp is when the response was received.
func (r *InferenceResult) Timestamp() time.Time { return r.timestamp }

// Valid reports whether a well-formed response was received.
// It says nothing about whether anything was detected.
func (r *InferenceResult) Valid() bool { return r.valid }

// Code returns the device result code, if the response carried one.
func (r *InferenceResult) Code() (int, bool) { return r.code, r.hasCode }

// Resolution returns the image bounds used to validate records.
func (r *InferenceResult) Resolution() (width, height int) { return r.width, r.height }

// Dropped is the number of array elements skipped as malformed or out of range.
func (r *InferenceResult) Dropped() int { return r.dropped }

// Detections returns a copy of the bounding boxes.
func (r *InferenceResult) Detections() []Detection { return slices.Clone(r.detections) }

// Classifications returns a copy of the class scores.
func (r *InferenceResult) Classifications() []Classification {
	return slices.Clone(r.classifications)
}

// KeyPoints returns a copy of the landmarks.
func (r *InferenceResult) KeyPoints() []KeyPoint { return slices.Clone(r.keypoints) }

// Empty reports whether the result holds no records of any type.
func (r *InferenceResult) Empty() bool {
	return len(r.detections) == 0 && len(r.classifications) == 0 && len(r.keypoints) == 0
}

// Age returns how old the snapshot is at now.
func (r *InferenceResult) Age(now time.Time) time.Duration { return now.Sub(r.timestamp) }

// Query starts a detection query over this result.
func (r *InferenceResult) Query() DetectionQuery {
	return DetectionQuery{f: filterSet[Detection]{items: r.detections}}
}

// QueryClassifications starts a classification query over this result.
func (r *InferenceResult) QueryClassifications() ClassificationQuery {
	return ClassificationQuery{f: filterSet[Classification]{items: r.classifications}}
}

// QueryKeypoints starts a keypoint query over this result.
func (r *InferenceResult) QueryKeypoints() KeyPointQuery {
	return KeyPointQuery{f: filterSet[KeyPoint]{items: r.keypoints}}
}

type resultJSON struct {
	ID              uuid.UUID        `json:"id"`
	Timestamp       time.Time        `json:"timestamp"`
	Valid           bool             `json:"valid"`
	Code            *int             `json:"code,omitempty"`
	Width           int              `json:"width"`
	Height          int              `json:"height"`
	Dropped         int              `json:"dropped"`
	Detections      []Detection      `json:"detections"`
	Classifications []Classification `json:"classifications"`
	KeyPoints       []KeyPoint       `json:"keypoints"`
}

// MarshalJSON encodes the snapshot without the raw payload.
func (r *InferenceResult) MarshalJSON() ([]byte, error) {
	out := resultJSON{
		ID:              r.id,
		Timestamp:       r.timestamp,
		Valid:           r.valid,
		Width:           r.width,
		Height:          r.height,
		Dropped:         r.dropped,
		Detections:      nonNil(r.detections),
		Classifications: nonNil(r.classifications),
		KeyPoints:       nonNil(r.keypoints),
	}
	if r.hasCode {
		code := r.code
		out.Code = &code
	}
	return json.Marshal(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
