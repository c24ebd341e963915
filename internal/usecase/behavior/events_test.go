package behavior

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectUnmarshal(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Rect
		wantErr bool
	}{
		{"short form", `{"left":10,"top":20,"w":300,"h":150}`, Rect{10, 20, 300, 150}, false},
		{"long form", `{"left":0,"top":0,"width":64,"height":32}`, Rect{0, 0, 64, 32}, false},
		{"short form wins", `{"left":0,"top":0,"w":1,"h":2,"width":64,"height":32}`, Rect{0, 0, 1, 2}, false},
		{"missing top", `{"left":0,"w":1,"h":2}`, Rect{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r Rect
			err := json.Unmarshal([]byte(tt.in), &r)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, r)
		})
	}
}

func TestRectNormalize(t *testing.T) {
	r := Rect{Left: 100, Top: 100, Width: 200, Height: 100}

	x, y, oob := r.normalize(200, 150)
	assert.InDelta(t, 0.5, x, 1e-9)
	assert.InDelta(t, 0.5, y, 1e-9)
	assert.False(t, oob)

	x, y, oob = r.normalize(50, 400)
	assert.Equal(t, 0.0, x)
	assert.Equal(t, 1.0, y)
	assert.True(t, oob)
}

func TestMetaRect(t *testing.T) {
	m, err := DecodeMeta([]byte(`{"device":"mouse","roi_map":{
		"canvas-container":{"left":0,"top":0,"w":0,"h":100},
		"scratcha-container":{"left":0,"top":0,"w":10,"h":10},
		"broken":"nope"}}`))
	require.NoError(t, err)

	assert.Nil(t, m.rect(CanvasROIKey), "zero width has no area")
	assert.NotNil(t, m.rect(WrapperROIKey))
	assert.Nil(t, m.rect("broken"))
	assert.Nil(t, m.rect("absent"))
}

func TestDecodeMeta_Invalid(t *testing.T) {
	_, err := DecodeMeta([]byte(`[1,2]`))
	assert.Error(t, err)

	m, err := DecodeMeta(nil)
	require.NoError(t, err)
	assert.Empty(t, m.ROIMap)
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Event
	}{
		{"pointerdown", `{"type":"pointerdown","t":12.7,"x_raw":1,"y_raw":2}`, PointerDown{Sample{T: 12, X: 1, Y: 2}}},
		{"pointerup", `{"type":"pointerup","t":13,"x_raw":3,"y_raw":4}`, PointerUp{Sample{T: 13, X: 3, Y: 4}}},
		{"click", `{"type":"click","t":14,"x_raw":5,"y_raw":6}`, Click{Sample{T: 14, X: 5, Y: 6}}},
		{"moves", `{"type":"moves","payload":{"base_t":100.9,"dts":[8,8],"xrs":[1,2],"yrs":[3,4]}}`,
			MovesBatch{BaseT: 100, DTs: []float64{8, 8}, Xs: []float64{1, 2}, Ys: []float64{3, 4}}},
		{"moves_free ys fallback", `{"type":"moves_free","payload":{"base_t":5,"dts":[1],"xrs":[7],"ys":[9]}}`,
			MovesBatch{BaseT: 5, DTs: []float64{1}, Xs: []float64{7}, Ys: []float64{9}}},
		{"missing coordinate", `{"type":"click","t":14,"x_raw":5}`, nil},
		{"moves without payload", `{"type":"moves"}`, nil},
		{"unknown type", `{"type":"keydown","t":1}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.in))
			require.NoError(t, err)
			assert.Equal(t, tt.want, ev)
		})
	}
}

func TestDecodeEvents(t *testing.T) {
	events, err := DecodeEvents([]json.RawMessage{
		json.RawMessage(`{"type":"click","t":1,"x_raw":1,"y_raw":1}`),
		json.RawMessage(`{"type":"focus"}`),
	})
	require.NoError(t, err)
	assert.Len(t, events, 1)

	_, err = DecodeEvents([]json.RawMessage{json.RawMessage(`{"type":`)})
	assert.Error(t, err)
}

func TestMovesBatchSamples(t *testing.T) {
	batch := MovesBatch{
		BaseT: 1000,
		DTs:   []float64{0, 2.9, -4, 10},
		Xs:    []float64{1, 2, 3, 4, 5},
		Ys:    []float64{1, 2, 3},
	}

	got := batch.samples(nil)

	// shortest of the three arrays wins; non-positive dts advance by 1ms
	require.Len(t, got, 3)
	assert.Equal(t, []Sample{
		{T: 1000, X: 1, Y: 1},
		{T: 1001, X: 2, Y: 2},
		{T: 1003, X: 3, Y: 3},
	}, got)
}
