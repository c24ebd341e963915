package behavior

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
)

// bnEps is torch.nn.BatchNorm1d's default epsilon.
const bnEps = 1e-5

// Kernel geometry of the two convolution stages.
const (
	conv1Kernel = 7
	conv1Pad    = 3
	conv2Kernel = 5
	conv2Pad    = 2
)

// tensor is one exported parameter: a shape and its row-major data.
type tensor struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// weightsFile is the on-disk format: a flattened state dict keyed by the
// training code's parameter names.
type weightsFile struct {
	Tensors map[string]tensor `json:"tensors"`
}

// batchNorm is an inference-mode batch norm folded into y = x*scale + shift.
type batchNorm struct {
	scale []float64
	shift []float64
}

func (b batchNorm) apply(x *mat.Dense, relu bool) {
	raw := x.RawMatrix()
	for c := 0; c < raw.Rows; c++ {
		row := raw.Data[c*raw.Stride : c*raw.Stride+raw.Cols]
		sc, sh := b.scale[c], b.shift[c]
		for t := range row {
			v := row[t]*sc + sh
			if relu && v < 0 {
				v = 0
			}
			row[t] = v
		}
	}
}

// conv1d is a same-length 1D convolution evaluated as im2col + GEMM.
type conv1d struct {
	weight *mat.Dense // out × (in*k)
	bias   []float64
	in     int
	k      int
	pad    int
}

func (c conv1d) forward(x *mat.Dense) *mat.Dense {
	_, steps := x.Dims()
	cols := mat.NewDense(c.in*c.k, steps, nil)
	for ch := 0; ch < c.in; ch++ {
		for j := 0; j < c.k; j++ {
			row := ch*c.k + j
			for t := 0; t < steps; t++ {
				src := t + j - c.pad
				if src >= 0 && src < steps {
					cols.Set(row, t, x.At(ch, src))
				}
			}
		}
	}

	outCh, _ := c.weight.Dims()
	out := mat.NewDense(outCh, steps, nil)
	out.Mul(c.weight, cols)
	raw := out.RawMatrix()
	for o := 0; o < outCh; o++ {
		row := raw.Data[o*raw.Stride : o*raw.Stride+steps]
		for t := range row {
			row[t] += c.bias[o]
		}
	}
	return out
}

// Model is the behavioral CNN in inference mode:
// input BN → conv(7) BN ReLU → conv(5) BN ReLU → mean over time → linear.
type Model struct {
	inputBN batchNorm
	conv1   conv1d
	bn1     batchNorm
	conv2   conv1d
	bn2     batchNorm
	headW   []float64
	headB   float64
}

// Forward returns the raw logit for one window. It does not mutate w and is
// safe for concurrent use.
func (m *Model) Forward(w *Window) float64 {
	x := mat.NewDense(Channels, WindowLen, nil)
	for t := 0; t < WindowLen; t++ {
		for c := 0; c < Channels; c++ {
			x.Set(c, t, float64(w[t][c]))
		}
	}
	m.inputBN.apply(x, false)

	h := m.conv1.forward(x)
	m.bn1.apply(h, true)
	h = m.conv2.forward(h)
	m.bn2.apply(h, true)

	raw := h.RawMatrix()
	logit := m.headB
	for c := 0; c < raw.Rows; c++ {
		var sum float64
		for _, v := range raw.Data[c*raw.Stride : c*raw.Stride+raw.Cols] {
			sum += v
		}
		logit += m.headW[c] * sum / float64(raw.Cols)
	}
	return logit
}

// LoadModel reads exported weights from path.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	var wf weightsFile
	if err := json.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}
	return newModel(wf.Tensors)
}

func newModel(ts map[string]tensor) (*Model, error) {
	p := paramReader{tensors: ts}

	conv1W := p.get("feat.0.weight", -1, Channels, conv1Kernel)
	c1 := p.dim0(conv1W)
	conv2W := p.get("feat.3.weight", -1, c1, conv2Kernel)
	c2 := p.dim0(conv2W)

	m := &Model{
		inputBN: p.batchNorm("input_bn", Channels),
		conv1:   p.conv(conv1W, p.get("feat.0.bias", c1), Channels, conv1Kernel, conv1Pad),
		bn1:     p.batchNorm("feat.1", c1),
		conv2:   p.conv(conv2W, p.get("feat.3.bias", c2), c1, conv2Kernel, conv2Pad),
		bn2:     p.batchNorm("feat.4", c2),
		headW:   p.get("head.weight", 1, c2).Data,
	}
	if b := p.get("head.bias", 1); p.err == nil {
		m.headB = b.Data[0]
	}
	if p.err != nil {
		return nil, p.err
	}
	return m, nil
}

// paramReader fetches and shape-checks tensors, remembering the first error.
type paramReader struct {
	tensors map[string]tensor
	err     error
}

// get returns the named tensor; a negative expected dimension matches anything.
func (p *paramReader) get(name string, shape ...int) tensor {
	if p.err != nil {
		return tensor{}
	}
	t, ok := p.tensors[name]
	if !ok {
		p.err = fmt.Errorf("weights: missing %q", name)
		return tensor{}
	}
	if len(t.Shape) != len(shape) {
		p.err = fmt.Errorf("weights: %q has rank %d, want %d", name, len(t.Shape), len(shape))
		return tensor{}
	}
	size := 1
	for i, d := range t.Shape {
		if shape[i] >= 0 && d != shape[i] {
			p.err = fmt.Errorf("weights: %q has shape %v, want %v", name, t.Shape, shape)
			return tensor{}
		}
		size *= d
	}
	if size != len(t.Data) || size == 0 {
		p.err = fmt.Errorf("weights: %q has %d values for shape %v", name, len(t.Data), t.Shape)
		return tensor{}
	}
	return t
}

func (p *paramReader) dim0(t tensor) int {
	if p.err != nil {
		return 0
	}
	return t.Shape[0]
}

func (p *paramReader) batchNorm(prefix string, n int) batchNorm {
	w := p.get(prefix+".weight", n)
	b := p.get(prefix+".bias", n)
	mean := p.get(prefix+".running_mean", n)
	variance := p.get(prefix+".running_var", n)
	if p.err != nil {
		return batchNorm{}
	}
	bn := batchNorm{scale: make([]float64, n), shift: make([]float64, n)}
	for i := 0; i < n; i++ {
		bn.scale[i] = w.Data[i] / math.Sqrt(variance.Data[i]+bnEps)
		bn.shift[i] = b.Data[i] - mean.Data[i]*bn.scale[i]
	}
	return bn
}

func (p *paramReader) conv(w, b tensor, in, k, pad int) conv1d {
	if p.err != nil {
		return conv1d{}
	}
	out := w.Shape[0]
	return conv1d{
		weight: mat.NewDense(out, in*k, append([]float64(nil), w.Data...)),
		bias:   b.Data,
		in:     in,
		k:      k,
		pad:    pad,
	}
}
