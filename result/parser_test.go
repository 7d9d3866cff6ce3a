package result

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moffa90/go-visionai/fault"
)

var t0 = time.Date(2024, 8, 26, 12, 0, 0, 0, time.UTC)

func TestParse_SkipsMalformedTuple(t *testing.T) {
	raw := []byte(`{"code":0,"data":{"boxes":[[10,10,5,5,90,0],[bad,data],[20,20,5,5,70,1]]}}`)

	res := NewParser().Parse(raw, t0)

	require.True(t, res.Valid())
	dets := res.Detections()
	require.Len(t, dets, 2)
	assert.Equal(t, Detection{X: 10, Y: 10, W: 5, H: 5, Score: 90, TargetID: 0}, dets[0])
	assert.Equal(t, Detection{X: 20, Y: 20, W: 5, H: 5, Score: 70, TargetID: 1}, dets[1])
	assert.Equal(t, 1, res.Dropped())
}

func TestParse_RejectsOutOfBounds(t *testing.T) {
	tests := []struct {
		name  string
		tuple string
	}{
		{"x+w beyond width", "[230,10,20,5,90,0]"},
		{"y+h beyond height", "[10,230,5,20,90,0]"},
		{"negative x", "[-1,10,5,5,90,0]"},
		{"negative width", "[10,10,-5,5,90,0]"},
		{"score above 100", "[10,10,5,5,101,0]"},
		{"negative score", "[10,10,5,5,-1,0]"},
		{"target above 255", "[10,10,5,5,50,256]"},
		{"too few fields", "[10,10,5,5,50]"},
		{"too many fields", "[10,10,5,5,50,1,1]"},
		{"x+w wraps around", "[9223372036854775807,10,1,5,90,0]"},
		{"y+h wraps around", "[10,10,5,9223372036854775807,90,0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := []byte(`{"code":0,"data":{"boxes":[[1,1,2,2,60,3],` + tt.tuple + `]}}`)
			res := NewParser().Parse(raw, t0)

			require.True(t, res.Valid())
			require.Len(t, res.Detections(), 1)
			assert.Equal(t, 3, res.Detections()[0].TargetID)
			assert.Equal(t, 1, res.Dropped())
		})
	}
}

func TestParse_BoxOnEdgeIsKept(t *testing.T) {
	raw := []byte(`{"boxes":[[230,230,10,10,50,0]]}`)
	res := NewParser().Parse(raw, t0)
	assert.Len(t, res.Detections(), 1)
}

func TestParse_KeyPointOnLastPixel(t *testing.T) {
	raw := []byte(`{"points":[[239,239,50,0],[240,10,50,1],[10,240,50,2]]}`)
	res := NewParser().Parse(raw, t0)

	require.Len(t, res.KeyPoints(), 1)
	assert.Equal(t, 0, res.KeyPoints()[0].TargetID)
	assert.Equal(t, 2, res.Dropped())
}

func TestParse_ElementErrorKinds(t *testing.T) {
	b := bounds{width: DefaultImageWidth, height: DefaultImageHeight}

	tests := []struct {
		name string
		el   element
		want error
	}{
		{"unterminated", element{text: "1,2,3", complete: false}, fault.ErrParse},
		{"not a number", element{text: "1,x,3,4,5,6", complete: true}, fault.ErrParse},
		{"wrong arity", element{text: "1,2,3", complete: true}, fault.ErrParse},
		{"outside image", element{text: "230,10,20,5,90,0", complete: true}, fault.ErrValidation},
		{"bad score", element{text: "10,10,5,5,101,0", complete: true}, fault.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeElement(tt.el, boxFields, b.detection)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.False(t, fault.IsFatal(err))
		})
	}
}

func TestParse_MissingArrays(t *testing.T) {
	res := NewParser().Parse([]byte(`{"type":1,"name":"INVOKE","code":0,"data":{}}`), t0)

	assert.True(t, res.Valid())
	assert.True(t, res.Empty())
	assert.Empty(t, res.Detections())
	assert.Empty(t, res.Classifications())
	assert.Empty(t, res.KeyPoints())
	assert.Equal(t, 0, res.Dropped())
}

func TestParse_Validity(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		valid bool
	}{
		{"empty", "", false},
		{"whitespace", "  \r\n", false},
		{"no object", "ERROR", false},
		{"empty object", "{}", true},
		{"object with arrays", `{"boxes":[]}`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := NewParser().Parse([]byte(tt.raw), t0)
			assert.Equal(t, tt.valid, res.Valid())
			assert.True(t, res.Empty())
		})
	}
}

func TestParse_UnterminatedTuple(t *testing.T) {
	raw := []byte(`{"boxes":[[10,10,5,5,90,0],[20,20,5`)
	res := NewParser().Parse(raw, t0)

	require.Len(t, res.Detections(), 1)
	assert.Equal(t, 90, res.Detections()[0].Score)
	assert.Equal(t, 1, res.Dropped())
}

func TestParse_ClassesAndPoints(t *testing.T) {
	raw := []byte(`{"code":0,"data":{"classes":[[88,2],[12,7],[300,1]],` +
		`"points":[[120,80,77,0],[500,10,60,1],[5,6,40,2]]}}`)

	res := NewParser().Parse(raw, t0)

	assert.Equal(t, []Classification{{TargetID: 2, Score: 88}, {TargetID: 7, Score: 12}}, res.Classifications())
	assert.Equal(t, []KeyPoint{{X: 120, Y: 80, Score: 77, TargetID: 0}, {X: 5, Y: 6, Score: 40, TargetID: 2}}, res.KeyPoints())
	assert.Equal(t, 2, res.Dropped())
}

func TestParse_ResolutionOverride(t *testing.T) {
	raw := []byte(`{"data":{"boxes":[[300,200,10,10,80,0]],"resolution":[640,480]}}`)

	res := NewParser().Parse(raw, t0)
	w, h := res.Resolution()
	assert.Equal(t, 640, w)
	assert.Equal(t, 480, h)
	assert.Len(t, res.Detections(), 1)

	res = NewParser(WithImageSize(320, 240)).Parse([]byte(`{"boxes":[[300,200,10,10,80,0]]}`), t0)
	w, h = res.Resolution()
	assert.Equal(t, 320, w)
	assert.Equal(t, 240, h)
	assert.Len(t, res.Detections(), 1)
}

func TestParse_Code(t *testing.T) {
	res := NewParser().Parse([]byte(`{"code":3,"data":{}}`), t0)
	code, ok := res.Code()
	assert.True(t, ok)
	assert.Equal(t, 3, code)

	res = NewParser().Parse([]byte(`{"data":{}}`), t0)
	_, ok = res.Code()
	assert.False(t, ok)
}

func TestInferenceResult_Immutable(t *testing.T) {
	raw := []byte(`{"boxes":[[10,10,5,5,90,0]]}`)
	res := NewParser().Parse(raw, t0)

	raw[2] = 'X'
	dets := res.Detections()
	dets[0].Score = 1
	got := res.Raw()
	got[0] = 'Z'

	assert.Equal(t, 90, res.Detections()[0].Score)
	assert.Equal(t, byte('{'), res.Raw()[0])
	assert.Equal(t, byte('b'), res.Raw()[2])
}

func TestInferenceResult_Identity(t *testing.T) {
	p := NewParser()
	a := p.Parse([]byte(`{}`), t0)
	b := p.Parse([]byte(`{}`), t0)

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, t0, a.Timestamp())
	assert.Equal(t, 5*time.Second, a.Age(t0.Add(5*time.Second)))
}

func TestNewInvalid(t *testing.T) {
	res := NewInvalid([]byte("garbage"), t0)
	assert.False(t, res.Valid())
	assert.True(t, res.Empty())
	assert.Equal(t, []byte("garbage"), res.Raw())
}

func TestInferenceResult_MarshalJSON(t *testing.T) {
	res := NewParser().Parse([]byte(`{"code":0,"boxes":[[1,2,3,4,50,6]]}`), t0)

	data, err := json.Marshal(res)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, true, out["valid"])
	assert.Equal(t, float64(0), out["code"])
	assert.Equal(t, []any{}, out["keypoints"])
	assert.Len(t, out["detections"], 1)
	assert.NotContains(t, out, "raw")
}

func BenchmarkParse(b *testing.B) {
	raw := []byte(`{"type":1,"name":"INVOKE","code":0,"data":{"boxes":[[10,10,5,5,90,0],` +
		`[20,20,5,5,70,1],[30,30,40,40,55,2],[100,100,20,20,99,3]],"resolution":[240,240]}}`)
	p := NewParser()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = p.Parse(raw, t0)
	}
}
