package behavior

import (
	"encoding/json"
	"fmt"
	"math"
)

// ROI keys sent by the widget in meta.roi_map.
const (
	CanvasROIKey  = "canvas-container"
	WrapperROIKey = "scratcha-container"
)

// Rect is a region of interest in page pixels.
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// UnmarshalJSON accepts both the widget's short form (w, h) and width/height.
func (r *Rect) UnmarshalJSON(data []byte) error {
	var raw struct {
		Left   *float64 `json:"left"`
		Top    *float64 `json:"top"`
		W      *float64 `json:"w"`
		H      *float64 `json:"h"`
		Width  *float64 `json:"width"`
		Height *float64 `json:"height"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.W == nil {
		raw.W = raw.Width
	}
	if raw.H == nil {
		raw.H = raw.Height
	}
	if raw.Left == nil || raw.Top == nil || raw.W == nil || raw.H == nil {
		return fmt.Errorf("rect: left, top, w and h are required")
	}
	*r = Rect{Left: *raw.Left, Top: *raw.Top, Width: *raw.W, Height: *raw.H}
	return nil
}

// valid reports whether the rectangle has a usable area.
func (r Rect) valid() bool {
	return r.Width > 0 && r.Height > 0
}

// normalize maps a raw point into the rectangle's unit square. The returned
// coordinates are clamped to [0,1]; oob is set when the point lies outside.
func (r Rect) normalize(xRaw, yRaw float64) (x, y float64, oob bool) {
	xr := (xRaw - r.Left) / math.Max(1, r.Width)
	yr := (yRaw - r.Top) / math.Max(1, r.Height)
	oob = xr < 0 || xr > 1 || yr < 0 || yr > 1
	return clamp01(xr), clamp01(yr), oob
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}

// Meta is the non-event part of the telemetry payload.
type Meta struct {
	ROIMap map[string]json.RawMessage `json:"roi_map"`
}

// DecodeMeta parses the meta document. Unknown keys are ignored.
func DecodeMeta(data []byte) (Meta, error) {
	var m Meta
	if len(data) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode meta: %w", err)
	}
	return m, nil
}

// rect resolves a named ROI. Missing, malformed or zero-area rectangles yield nil.
func (m Meta) rect(key string) *Rect {
	raw, ok := m.ROIMap[key]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var r Rect
	if err := json.Unmarshal(raw, &r); err != nil || !r.valid() {
		return nil
	}
	return &r
}

// Sample is one flattened pointer observation.
type Sample struct {
	T float64
	X float64
	Y float64
}

// Event is one decoded telemetry event.
type Event interface {
	// samples appends the event's pointer observations to dst.
	samples(dst []Sample) []Sample
}

// PointerDown is a pointerdown event.
type PointerDown struct{ Sample }

// PointerUp is a pointerup event.
type PointerUp struct{ Sample }

// Click is a click event.
type Click struct{ Sample }

func (e PointerDown) samples(dst []Sample) []Sample { return append(dst, e.Sample) }

func (e PointerUp) samples(dst []Sample) []Sample { return append(dst, e.Sample) }

func (e Click) samples(dst []Sample) []Sample { return append(dst, e.Sample) }

// MovesBatch is a batch of pointer moves: a base timestamp plus per-sample
// delta-times and raw coordinates.
type MovesBatch struct {
	BaseT float64
	DTs   []float64
	Xs    []float64
	Ys    []float64
}

func (e MovesBatch) samples(dst []Sample) []Sample {
	n := min(len(e.DTs), len(e.Xs), len(e.Ys))
	t := e.BaseT
	for i := 0; i < n; i++ {
		dst = append(dst, Sample{T: t, X: e.Xs[i], Y: e.Ys[i]})
		dt := math.Trunc(e.DTs[i])
		if dt <= 0 {
			dt = 1
		}
		t += dt
	}
	return dst
}

type rawEvent struct {
	Type    string       `json:"type"`
	T       *float64     `json:"t"`
	XRaw    *float64     `json:"x_raw"`
	YRaw    *float64     `json:"y_raw"`
	Payload *rawMovesDoc `json:"payload"`
}

type rawMovesDoc struct {
	BaseT float64   `json:"base_t"`
	DTs   []float64 `json:"dts"`
	XRs   []float64 `json:"xrs"`
	YRs   []float64 `json:"yrs"`
	Ys    []float64 `json:"ys"`
}

// DecodeEvent turns one raw event into its variant. It returns (nil, nil)
// for event types that carry no pointer position and for events missing a
// required field.
func DecodeEvent(data []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}

	switch raw.Type {
	case "moves", "moves_free":
		if raw.Payload == nil {
			return nil, nil
		}
		ys := raw.Payload.YRs
		if len(ys) == 0 {
			ys = raw.Payload.Ys
		}
		return MovesBatch{
			BaseT: math.Trunc(raw.Payload.BaseT),
			DTs:   raw.Payload.DTs,
			Xs:    raw.Payload.XRs,
			Ys:    ys,
		}, nil
	case "pointerdown", "pointerup", "click":
		if raw.T == nil || raw.XRaw == nil || raw.YRaw == nil {
			return nil, nil
		}
		s := Sample{T: math.Trunc(*raw.T), X: *raw.XRaw, Y: *raw.YRaw}
		switch raw.Type {
		case "pointerdown":
			return PointerDown{s}, nil
		case "pointerup":
			return PointerUp{s}, nil
		default:
			return Click{s}, nil
		}
	default:
		return nil, nil
	}
}

// DecodeEvents decodes a list of raw events, dropping the ones DecodeEvent
// ignores. A syntactically invalid event fails the whole list.
func DecodeEvents(raws []json.RawMessage) ([]Event, error) {
	events := make([]Event, 0, len(raws))
	for i, raw := range raws {
		ev, err := DecodeEvent(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events, nil
}
