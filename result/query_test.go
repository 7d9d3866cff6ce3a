package result

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-visionai/fault"
)

func sample(t *testing.T) *InferenceResult {
	t.Helper()
	raw := []byte(`{"code":0,"data":{"boxes":[` +
		`[10,10,20,20,85,0],` +
		`[100,100,50,50,45,0],` +
		`[150,20,30,10,90,1]]}}`)
	res := NewParser().Parse(raw, t0)
	require.Len(t, res.Detections(), 3)
	return res
}

func TestQuery_TargetAndConfidence(t *testing.T) {
	res := sample(t)

	best, err := res.Query().TargetID(0).MinConfidence(80).BestOrFail()
	require.NoError(t, err)
	assert.Equal(t, 85, best.Score)
	assert.Equal(t, 0, best.TargetID)

	assert.Equal(t, 0, res.Query().TargetID(5).Count())
	assert.True(t, res.Query().TargetID(5).None())
	assert.False(t, res.Query().TargetID(5).Any())
}

func TestQuery_BestOrFailNoMatch(t *testing.T) {
	res := sample(t)

	_, err := res.Query().TargetID(5).BestOrFail()
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrNoMatch))
	assert.False(t, fault.IsFatal(err))
}

func TestQuery_Filters(t *testing.T) {
	res := sample(t)

	tests := []struct {
		name   string
		q      DetectionQuery
		scores []int
	}{
		{"all", res.Query(), []int{85, 45, 90}},
		{"min confidence", res.Query().MinConfidence(85), []int{85, 90}},
		{"max confidence", res.Query().MaxConfidence(85), []int{85, 45}},
		{"confidence range", res.Query().ConfidenceRange(40, 86), []int{85, 45}},
		{"region", res.Query().InRegion(0, 0, 200, 50), []int{85, 90}},
		{"unbounded region", res.Query().InRegion(5, 0, math.MaxInt, 200), []int{85, 45, 90}},
		{"min area", res.Query().MinArea(400), []int{85, 45}},
		{"max area", res.Query().MaxArea(400), []int{85, 90}},
		{"where", res.Query().Where(func(d Detection) bool { return d.X > 50 }), []int{45, 90}},
		{"chained", res.Query().TargetID(0).MaxArea(1000), []int{85}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int
			for _, d := range tt.q.Matches() {
				got = append(got, d.Score)
			}
			assert.Equal(t, tt.scores, got)
			assert.Equal(t, len(tt.scores), tt.q.Count())
		})
	}
}

func TestQuery_BranchesAreIndependent(t *testing.T) {
	res := sample(t)

	base := res.Query().MinConfidence(40)
	a := base.TargetID(0)
	b := base.TargetID(1)
	c := base.TargetID(0).MinConfidence(50)

	assert.Equal(t, 3, base.Count())
	assert.Equal(t, 2, a.Count())
	assert.Equal(t, 1, b.Count())
	assert.Equal(t, 1, c.Count())
	assert.Equal(t, 2, a.Count())
}

func TestQuery_Retrieval(t *testing.T) {
	res := sample(t)

	best, ok := res.Query().Best()
	require.True(t, ok)
	assert.Equal(t, 90, best.Score)

	largest, ok := res.Query().Largest()
	require.True(t, ok)
	assert.Equal(t, 2500, largest.Area())

	first, ok := res.Query().MaxConfidence(50).First()
	require.True(t, ok)
	assert.Equal(t, 45, first.Score)

	near, ok := res.Query().NearestTo(160, 30)
	require.True(t, ok)
	assert.Equal(t, 1, near.TargetID)

	_, ok = res.Query().TargetID(9).Largest()
	assert.False(t, ok)
	_, ok = res.Query().TargetID(9).NearestTo(0, 0)
	assert.False(t, ok)
}

func TestQuery_DoesNotMutateResult(t *testing.T) {
	res := sample(t)

	matches := res.Query().TargetID(0).Matches()
	matches[0].Score = 0

	assert.Equal(t, 85, res.Detections()[0].Score)
	assert.Len(t, res.Detections(), 3)
}

func TestQueryClassifications(t *testing.T) {
	res := NewParser().Parse([]byte(`{"classes":[[70,1],[95,2],[40,1]]}`), t0)

	best, err := res.QueryClassifications().TargetID(1).BestOrFail()
	require.NoError(t, err)
	assert.Equal(t, 70, best.Score)

	assert.Equal(t, 2, res.QueryClassifications().ConfidenceRange(60, 100).Count())
	assert.True(t, res.QueryClassifications().MinConfidence(96).None())

	_, err = res.QueryClassifications().MinConfidence(99).BestOrFail()
	assert.ErrorIs(t, err, fault.ErrNoMatch)
}

func TestQueryKeypoints(t *testing.T) {
	res := NewParser().Parse([]byte(`{"points":[[10,10,80,0],[100,120,60,1],[200,200,90,0]]}`), t0)

	near, ok := res.QueryKeypoints().NearestTo(95, 115)
	require.True(t, ok)
	assert.Equal(t, 1, near.TargetID)

	assert.Equal(t, 2, res.QueryKeypoints().InRegion(0, 0, 150, 150).Count())
	assert.Equal(t, 3, res.QueryKeypoints().InRegion(10, 10, math.MaxInt, 190).Count())
	assert.Equal(t, 2, res.QueryKeypoints().TargetID(0).Count())

	best, err := res.QueryKeypoints().TargetID(0).BestOrFail()
	require.NoError(t, err)
	assert.Equal(t, 90, best.Score)
}
