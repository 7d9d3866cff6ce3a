package result

import (
	"bytes"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/moffa90/go-visionai/fault"
	"github.com/moffa90/go-visionai/logging"
)

// Array keys and tuple layouts in inference payloads.
const (
	// KeyBoxes holds [x, y, w, h, score, target] tuples
	KeyBoxes = "boxes"

	// KeyClasses holds [score, target] tuples
	KeyClasses = "classes"

	// KeyPoints holds [x, y, score, target] tuples
	KeyPoints = "points"

	// KeyResolution holds the flat [width, height] image size
	KeyResolution = "resolution"

	// KeyCode holds the top-level device result code
	KeyCode = "code"

	boxFields   = 6
	classFields = 2
	pointFields = 4
)

// Default image bounds used when the payload carries no resolution.
const (
	DefaultImageWidth  = 240
	DefaultImageHeight = 240
)

// Parser turns response payloads into InferenceResult snapshots.
//
// Parsing is element-tolerant: a malformed or out-of-range tuple is logged
// and skipped, and the rest of the array is still parsed. A missing array
// yields an empty list, not an error.
//
// Parser holds no mutable state and is safe for concurrent use.
type Parser struct {
	width  int
	height int
	logger logging.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithImageSize sets the image bounds used to validate records.
func WithImageSize(width, height int) ParserOption {
	return func(p *Parser) {
		if width > 0 && height > 0 {
			p.width = width
			p.height = height
		}
	}
}

// WithParserLogger sets the logger that reports skipped elements.
func WithParserLogger(l logging.Logger) ParserOption {
	return func(p *Parser) {
		p.logger = logging.OrNop(l)
	}
}

// NewParser creates a Parser.
//
// Example:
//
//	p := result.NewParser(result.WithImageSize(320, 240))
//	res := p.Parse(payload, time.Now())
//	for _, d := range res.Detections() {
//	    fmt.Println(d.X, d.Y, d.Score)
//	}
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		width:  DefaultImageWidth,
		height: DefaultImageHeight,
		logger: logging.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse builds a snapshot from raw, received at the given time.
//
// The result is valid when raw is non-empty and contains an object; it
// stays valid when no records were found.
func (p *Parser) Parse(raw []byte, at time.Time) *InferenceResult {
	res := &InferenceResult{
		id:        uuid.New(),
		raw:       slices.Clone(raw),
		timestamp: at,
		width:     p.width,
		height:    p.height,
	}

	if len(bytes.TrimSpace(raw)) == 0 || bytes.IndexByte(raw, '{') < 0 {
		return res
	}
	res.valid = true

	if code, ok := IntField(raw, KeyCode); ok {
		res.code = code
		res.hasCode = true
	}

	if wh, ok := flatArray(raw, KeyResolution); ok && len(wh) == 2 && wh[0] > 0 && wh[1] > 0 {
		res.width, res.height = wh[0], wh[1]
	}

	b := bounds{width: res.width, height: res.height}

	res.detections = parseArray(p, raw, KeyBoxes, boxFields, b.detection, &res.dropped)
	res.classifications = parseArray(p, raw, KeyClasses, classFields, b.classification, &res.dropped)
	res.keypoints = parseArray(p, raw, KeyPoints, pointFields, b.keypoint, &res.dropped)

	return res
}

// parseArray decodes every element of the named array with decode,
// skipping and counting the elements that fail.
func parseArray[T any](p *Parser, raw []byte, key string, fields int,
	decode func([]int) (T, error), dropped *int) []T {

	elems, found := arrayElements(raw, key)
	if !found {
		return nil
	}

	out := make([]T, 0, len(elems))
	for i, el := range elems {
		v, err := decodeElement(el, fields, decode)
		if err != nil {
			*dropped++
			p.logger.Debug("skipping element", "key", key, "index", i, "error", err)
			continue
		}
		out = append(out, v)
	}
	return out
}

func decodeElement[T any](el element, fields int, decode func([]int) (T, error)) (T, error) {
	var zero T
	if !el.complete {
		return zero, fault.New(fault.KindParse, "parse element", "unterminated tuple %q", el.text)
	}
	vals, err := splitInts(el.text)
	if err != nil {
		return zero, fault.Wrap(fault.KindParse, "parse element", fmt.Errorf("tuple %q: %w", el.text, err))
	}
	if len(vals) != fields {
		return zero, fault.New(fault.KindParse, "parse element",
			"tuple %q has %d fields, expected %d", el.text, len(vals), fields)
	}
	return decode(vals)
}

type bounds struct {
	width  int
	height int
}

func (b bounds) detection(v []int) (Detection, error) {
	d := Detection{X: v[0], Y: v[1], W: v[2], H: v[3], Score: v[4], TargetID: v[5]}
	if d.X < 0 || d.Y < 0 || d.W < 0 || d.H < 0 {
		return d, fault.New(fault.KindValidation, "validate detection", "negative geometry %v", v[:4])
	}
	// Compared without adding so huge fields cannot wrap around.
	if d.X > b.width || d.W > b.width-d.X || d.Y > b.height || d.H > b.height-d.Y {
		return d, fault.New(fault.KindValidation, "validate detection",
			"box %d,%d %dx%d exceeds image %dx%d", d.X, d.Y, d.W, d.H, b.width, b.height)
	}
	if err := checkScoreTarget("validate detection", d.Score, d.TargetID); err != nil {
		return d, err
	}
	return d, nil
}

func (b bounds) classification(v []int) (Classification, error) {
	c := Classification{Score: v[0], TargetID: v[1]}
	if err := checkScoreTarget("validate classification", c.Score, c.TargetID); err != nil {
		return c, err
	}
	return c, nil
}

// keypoint accepts pixel coordinates 0..width-1 and 0..height-1.
func (b bounds) keypoint(v []int) (KeyPoint, error) {
	k := KeyPoint{X: v[0], Y: v[1], Score: v[2], TargetID: v[3]}
	if k.X < 0 || k.Y < 0 || k.X >= b.width || k.Y >= b.height {
		return k, fault.New(fault.KindValidation, "validate keypoint",
			"point %d,%d outside image %dx%d", k.X, k.Y, b.width, b.height)
	}
	if err := checkScoreTarget("validate keypoint", k.Score, k.TargetID); err != nil {
		return k, err
	}
	return k, nil
}

func checkScoreTarget(op string, score, target int) error {
	if score < MinScore || score > MaxScore {
		return fault.New(fault.KindValidation, op, "score %d outside %d-%d", score, MinScore, MaxScore)
	}
	if target < MinTarget || target > MaxTarget {
		return fault.New(fault.KindValidation, op, "target %d outside %d-%d", target, MinTarget, MaxTarget)
	}
	return nil
}
