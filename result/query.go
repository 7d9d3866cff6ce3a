package result

import (
	"slices"

	"github.com/moffa90/go-visionai/fault"
)

// filterSet is the shared core of the query builders: a snapshot list plus
// the predicates applied to it. It is a value type; adding a predicate
// never affects a previously returned builder.
type filterSet[T Scored] struct {
	items []T
	preds []func(T) bool
}

func (f filterSet[T]) with(pred func(T) bool) filterSet[T] {
	return filterSet[T]{items: f.items, preds: append(slices.Clip(f.preds), pred)}
}

func (f filterSet[T]) keep(v T) bool {
	for _, p := range f.preds {
		if !p(v) {
			return false
		}
	}
	return true
}

func (f filterSet[T]) matches() []T {
	out := make([]T, 0, len(f.items))
	for _, v := range f.items {
		if f.keep(v) {
			out = append(out, v)
		}
	}
	return out
}

func (f filterSet[T]) first() (T, bool) {
	for _, v := range f.items {
		if f.keep(v) {
			return v, true
		}
	}
	var zero T
	return zero, false
}

func (f filterSet[T]) count() int {
	n := 0
	for _, v := range f.items {
		if f.keep(v) {
			n++
		}
	}
	return n
}

// maxBy returns the matching item with the largest key. The first item
// encountered wins ties.
func (f filterSet[T]) maxBy(key func(T) float64) (T, bool) {
	var best T
	var bestKey float64
	found := false
	for _, v := range f.items {
		if !f.keep(v) {
			continue
		}
		k := key(v)
		if !found || k > bestKey {
			best, bestKey, found = v, k, true
		}
	}
	return best, found
}

func (f filterSet[T]) best() (T, bool) {
	return f.maxBy(func(v T) float64 { return float64(v.Confidence()) })
}

func (f filterSet[T]) bestOrFail(op string) (T, error) {
	v, ok := f.best()
	if !ok {
		return v, fault.New(fault.KindNoMatch, op, "no item matches the query")
	}
	return v, nil
}

func nearest[T Located](f filterSet[T], x, y float64) (T, bool) {
	return f.maxBy(func(v T) float64 { return -distance(v, x, y) })
}

func confidenceBetween[T Scored](lo, hi int) func(T) bool {
	return func(v T) bool { return v.Confidence() >= lo && v.Confidence() <= hi }
}

func targetIs[T Scored](id int) func(T) bool {
	return func(v T) bool { return v.Target() == id }
}

// DetectionQuery filters the detections of one result.
//
// Example:
//
//	d, err := res.Query().TargetID(0).MinConfidence(80).BestOrFail()
type DetectionQuery struct {
	f filterSet[Detection]
}

// MinConfidence keeps detections scoring at least score.
func (q DetectionQuery) MinConfidence(score int) DetectionQuery {
	return DetectionQuery{q.f.with(confidenceBetween[Detection](score, MaxScore))}
}

// MaxConfidence keeps detections scoring at most score.
func (q DetectionQuery) MaxConfidence(score int) DetectionQuery {
	return DetectionQuery{q.f.with(confidenceBetween[Detection](MinScore, score))}
}

// ConfidenceRange keeps detections scoring within [lo, hi].
func (q DetectionQuery) ConfidenceRange(lo, hi int) DetectionQuery {
	return DetectionQuery{q.f.with(confidenceBetween[Detection](lo, hi))}
}

// TargetID keeps detections of one class.
func (q DetectionQuery) TargetID(id int) DetectionQuery {
	return DetectionQuery{q.f.with(targetIs[Detection](id))}
}

// InRegion keeps detections lying entirely inside the rectangle.
func (q DetectionQuery) InRegion(x, y, w, h int) DetectionQuery {
	return DetectionQuery{q.f.with(func(d Detection) bool {
		return d.X >= x && d.Y >= y &&
			d.W <= w && d.X-x <= w-d.W &&
			d.H <= h && d.Y-y <= h-d.H
	})}
}

// MinArea keeps detections with W*H of at least area.
func (q DetectionQuery) MinArea(area int) DetectionQuery {
	return DetectionQuery{q.f.with(func(d Detection) bool { return d.Area() >= area })}
}

// MaxArea keeps detections with W*H of at most area.
func (q DetectionQuery) MaxArea(area int) DetectionQuery {
	return DetectionQuery{q.f.with(func(d Detection) bool { return d.Area() <= area })}
}

// Where keeps detections satisfying pred.
func (q DetectionQuery) Where(pred func(Detection) bool) DetectionQuery {
	return DetectionQuery{q.f.with(pred)}
}

// Matches returns every matching detection in original order.
func (q DetectionQuery) Matches() []Detection { return q.f.matches() }

// Best returns the highest-scoring match; the first one wins ties.
func (q DetectionQuery) Best() (Detection, bool) { return q.f.best() }

// BestOrFail is Best, failing with a no-match error when nothing matches.
func (q DetectionQuery) BestOrFail() (Detection, error) { return q.f.bestOrFail("best detection") }

// Largest returns the match with the largest area; the first one wins ties.
func (q DetectionQuery) Largest() (Detection, bool) {
	return q.f.maxBy(func(d Detection) float64 { return float64(d.Area()) })
}

// NearestTo returns the match whose center is closest to (x, y).
func (q DetectionQuery) NearestTo(x, y float64) (Detection, bool) { return nearest(q.f, x, y) }

// First returns the first match.
func (q DetectionQuery) First() (Detection, bool) { return q.f.first() }

// Count returns the number of matches.
func (q DetectionQuery) Count() int { return q.f.count() }

// Any reports whether anything matched.
func (q DetectionQuery) Any() bool { return q.f.count() > 0 }

// None reports whether nothing matched.
func (q DetectionQuery) None() bool { return q.f.count() == 0 }

// ClassificationQuery filters the classifications of one result.
type ClassificationQuery struct {
	f filterSet[Classification]
}

// MinConfidence keeps classifications scoring at least score.
func (q ClassificationQuery) MinConfidence(score int) ClassificationQuery {
	return ClassificationQuery{q.f.with(confidenceBetween[Classification](score, MaxScore))}
}

// MaxConfidence keeps classifications scoring at most score.
func (q ClassificationQuery) MaxConfidence(score int) ClassificationQuery {
	return ClassificationQuery{q.f.with(confidenceBetween[Classification](MinScore, score))}
}

// ConfidenceRange keeps classifications scoring within lo..hi.
func (q ClassificationQuery) ConfidenceRange(lo, hi int) ClassificationQuery {
	return ClassificationQuery{q.f.with(confidenceBetween[Classification](lo, hi))}
}

// TargetID keeps classifications of class id.
func (q ClassificationQuery) TargetID(id int) ClassificationQuery {
	return ClassificationQuery{q.f.with(targetIs[Classification](id))}
}

// Where keeps classifications matching pred.
func (q ClassificationQuery) Where(pred func(Classification) bool) ClassificationQuery {
	return ClassificationQuery{q.f.with(pred)}
}

// Matches returns the matching classifications in payload order.
func (q ClassificationQuery) Matches() []Classification { return q.f.matches() }

// Best returns the highest-scoring match.
func (q ClassificationQuery) Best() (Classification, bool) { return q.f.best() }

// First returns the first match.
func (q ClassificationQuery) First() (Classification, bool) { return q.f.first() }

// Count returns the number of matches.
func (q ClassificationQuery) Count() int { return q.f.count() }

// Any reports whether anything matched.
func (q ClassificationQuery) Any() bool { return q.f.count() > 0 }

// None reports whether nothing matched.
func (q ClassificationQuery) None() bool { return q.f.count() == 0 }

// BestOrFail is Best with a KindNoMatch error when nothing matched.
func (q ClassificationQuery) BestOrFail() (Classification, error) {
	return q.f.bestOrFail("best classification")
}

// KeyPointQuery filters the keypoints of one result.
type KeyPointQuery struct {
	f filterSet[KeyPoint]
}

// MinConfidence keeps keypoints scoring at least score.
func (q KeyPointQuery) MinConfidence(score int) KeyPointQuery {
	return KeyPointQuery{q.f.with(confidenceBetween[KeyPoint](score, MaxScore))}
}

// MaxConfidence keeps keypoints scoring at most score.
func (q KeyPointQuery) MaxConfidence(score int) KeyPointQuery {
	return KeyPointQuery{q.f.with(confidenceBetween[KeyPoint](MinScore, score))}
}

// ConfidenceRange keeps keypoints scoring within lo..hi.
func (q KeyPointQuery) ConfidenceRange(lo, hi int) KeyPointQuery {
	return KeyPointQuery{q.f.with(confidenceBetween[KeyPoint](lo, hi))}
}

// TargetID keeps keypoints of class id.
func (q KeyPointQuery) TargetID(id int) KeyPointQuery {
	return KeyPointQuery{q.f.with(targetIs[KeyPoint](id))}
}

// InRegion keeps keypoints inside the rectangle, edges included.
func (q KeyPointQuery) InRegion(x, y, w, h int) KeyPointQuery {
	return KeyPointQuery{q.f.with(func(k KeyPoint) bool {
		return k.X >= x && k.Y >= y && k.X-x <= w && k.Y-y <= h
	})}
}

// Where keeps keypoints matching pred.
func (q KeyPointQuery) Where(pred func(KeyPoint) bool) KeyPointQuery {
	return KeyPointQuery{q.f.with(pred)}
}

// Matches returns the matching keypoints in payload order.
func (q KeyPointQuery) Matches() []KeyPoint { return q.f.matches() }

// Best returns the highest-scoring match.
func (q KeyPointQuery) Best() (KeyPoint, bool) { return q.f.best() }

// First returns the first match.
func (q KeyPointQuery) First() (KeyPoint, bool) { return q.f.first() }

// Count returns the number of matches.
func (q KeyPointQuery) Count() int { return q.f.count() }

// Any reports whether anything matched.
func (q KeyPointQuery) Any() bool { return q.f.count() > 0 }

// None reports whether nothing matched.
func (q KeyPointQuery) None() bool { return q.f.count() == 0 }

// BestOrFail is Best with a KindNoMatch error when nothing matched.
func (q KeyPointQuery) BestOrFail() (KeyPoint, error) { return q.f.bestOrFail("best keypoint") }

// NearestTo returns the match closest to (x, y).
func (q KeyPointQuery) NearestTo(x, y float64) (KeyPoint, bool) { return nearest(q.f, x, y) }
