// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"math"
)

// Activation is the non-linearity applied to a layer's outputs.
type Activation uint8

const (
	Linear Activation = iota
	ReLU
	Sigmoid
)

const (
	modelVersion uint16 = 1

	headerSize      = 4 + 2 + 2 + 4*3
	layerHeaderSize = 2 + 2 + 1 + 3
	trailerSize     = 4
)

var modelMagic = [4]byte{'V', 'B', 'M', '1'}

type (
	// Layer is a dense layer. Weights are row-major by output: the weights
	// feeding output o are Weights[o*In : (o+1)*In].
	Layer struct {
		In         int
		Out        int
		Activation Activation
		Weights    []float32
		Bias       []float32
	}

	// Model is a small feed-forward classifier with one scalar input and one
	// output probability. It is immutable once parsed.
	Model struct {
		// The raw input is normalized as (x - InputMean) / InputScale.
		InputMean  float32
		InputScale float32

		// An output probability at or above DecisionThreshold is an anomaly.
		DecisionThreshold float32

		Layers []Layer
	}
)

// ParseModel decodes and validates a model artifact.
func ParseModel(data []byte) (*Model, error) {
	if len(data) == 0 {
		return nil, invalidModel("no model data")
	}
	if len(data) < headerSize+trailerSize {
		return nil, invalidModel("truncated header (%d bytes)", len(data))
	}

	body := data[:len(data)-trailerSize]
	sum := binary.LittleEndian.Uint32(data[len(data)-trailerSize:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, invalidModel("checksum mismatch")
	}

	if !bytes.Equal(body[:4], modelMagic[:]) {
		return nil, invalidModel("bad magic %q", body[:4])
	}
	r := reader{buf: body[4:]}

	if v := r.u16(); v != modelVersion {
		return nil, invalidModel("unsupported version %d", v)
	}
	count := int(r.u16())

	m := &Model{
		InputMean:         r.f32(),
		InputScale:        r.f32(),
		DecisionThreshold: r.f32(),
		Layers:            make([]Layer, 0, count),
	}

	for i := range count {
		if r.remaining() < layerHeaderSize {
			return nil, invalidModel("truncated layer %d header", i)
		}
		l := Layer{
			In:         int(r.u16()),
			Out:        int(r.u16()),
			Activation: Activation(r.u8()),
		}
		r.skip(3)

		n := l.In*l.Out + l.Out
		if r.remaining() < 4*n {
			return nil, invalidModel("truncated layer %d parameters", i)
		}
		l.Weights = r.f32s(l.In * l.Out)
		l.Bias = r.f32s(l.Out)
		m.Layers = append(m.Layers, l)
	}

	if r.remaining() != 0 {
		return nil, invalidModel("%d trailing bytes", r.remaining())
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MarshalBinary encodes the model in the artifact format read by ParseModel.
func (m *Model) MarshalBinary() ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(modelMagic[:])
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, modelVersion)
	_ = binary.Write(&buf, le, uint16(len(m.Layers)))
	_ = binary.Write(&buf, le, m.InputMean)
	_ = binary.Write(&buf, le, m.InputScale)
	_ = binary.Write(&buf, le, m.DecisionThreshold)

	for _, l := range m.Layers {
		_ = binary.Write(&buf, le, uint16(l.In))
		_ = binary.Write(&buf, le, uint16(l.Out))
		buf.Write([]byte{byte(l.Activation), 0, 0, 0})
		_ = binary.Write(&buf, le, l.Weights)
		_ = binary.Write(&buf, le, l.Bias)
	}

	_ = binary.Write(&buf, le, crc32.ChecksumIEEE(buf.Bytes()))
	return buf.Bytes(), nil
}

// Workspace returns the arena bytes needed for one forward pass: two
// activation buffers as wide as the widest layer.
func (m *Model) Workspace() int {
	width := 1
	for _, l := range m.Layers {
		width = max(width, l.In, l.Out)
	}
	return 2 * width * 4
}

func (m *Model) validate() error {
	if len(m.Layers) == 0 {
		return invalidModel("no layers")
	}
	if !finite32(m.InputMean) || !finite32(m.InputScale) ||
		!finite32(m.DecisionThreshold) {
		return invalidModel("non-finite normalization parameters")
	}
	if m.InputScale == 0 {
		return invalidModel("zero input scale")
	}
	if m.DecisionThreshold < 0 || m.DecisionThreshold > 1 {
		return invalidModel(
			"decision threshold %v outside [0, 1]",
			m.DecisionThreshold,
		)
	}

	prev := 1
	for i, l := range m.Layers {
		switch {
		case l.In <= 0 || l.Out <= 0 ||
			l.In > math.MaxUint16 || l.Out > math.MaxUint16:
			return invalidModel("layer %d has invalid shape %dx%d", i, l.In, l.Out)
		case l.In != prev:
			return invalidModel(
				"layer %d expects %d inputs, previous layer has %d outputs",
				i, l.In, prev,
			)
		case l.Activation > Sigmoid:
			return invalidModel("layer %d has unknown activation %d", i, l.Activation)
		case len(l.Weights) != l.In*l.Out || len(l.Bias) != l.Out:
			return invalidModel("layer %d parameter count mismatch", i)
		}
		for _, w := range l.Weights {
			if !finite32(w) {
				return invalidModel("layer %d has non-finite weight", i)
			}
		}
		for _, b := range l.Bias {
			if !finite32(b) {
				return invalidModel("layer %d has non-finite bias", i)
			}
		}
		prev = l.Out
	}
	if prev != 1 {
		return invalidModel("model has %d outputs, expected 1", prev)
	}
	return nil
}

func finite32(f float32) bool {
	return !math.IsNaN(float64(f)) && !math.IsInf(float64(f), 0)
}

type reader struct {
	buf []byte
	off int
}

func (r *reader) remaining() int { return len(r.buf) - r.off }

func (r *reader) skip(n int) { r.off += n }

func (r *reader) u8() uint8 {
	v := r.buf[r.off]
	r.off++
	return v
}

func (r *reader) u16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.off:])
	r.off += 2
	return v
}

func (r *reader) f32() float32 {
	v := math.Float32frombits(binary.LittleEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v
}

func (r *reader) f32s(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = r.f32()
	}
	return out
}
