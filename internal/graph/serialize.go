package graph

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/yad2g/yad2g/internal/tensor"
)

// Magic bytes and version for the serialized graph format.
const (
	// Magic is "Y2DG" little-endian.
	Magic uint32 = 0x47443259

	// FormatVersion is the current serialization version.
	FormatVersion uint32 = 1
)

// Save writes the graph and all attached weight tensors to w.
//
// The layout is a flat little-endian record stream: magic, version,
// output ids, then one length-prefixed record per node in execution
// order with its attrs, input ids, output shape and float32 payloads.
func (g *Graph) Save(w io.Writer) error {
	le := binary.LittleEndian

	for _, v := range []uint32{Magic, FormatVersion} {
		if err := binary.Write(w, le, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	if err := writeIntList(w, g.outputs); err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}

	if err := binary.Write(w, le, uint32(len(g.nodes))); err != nil {
		return fmt.Errorf("write node count: %w", err)
	}
	for _, n := range g.nodes {
		if err := writeNode(w, n); err != nil {
			return fmt.Errorf("write node %s: %w", n.Name, err)
		}
	}
	return nil
}

// SaveFile writes the graph to the given path.
//
//nolint:gosec // G304: path comes from trusted caller, not user input.
func (g *Graph) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := g.Save(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close graph file: %w", err)
	}
	return nil
}

// Load reads a graph previously written with Save.
func Load(r io.Reader) (*Graph, error) {
	le := binary.LittleEndian

	var magic, version uint32
	if err := binary.Read(r, le, &magic); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if magic != Magic {
		return nil, fmt.Errorf("invalid magic: 0x%08X (expected 0x%08X)", magic, Magic)
	}
	if err := binary.Read(r, le, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != FormatVersion {
		return nil, fmt.Errorf("unsupported version: %d (supported: %d)", version, FormatVersion)
	}

	outputs, err := readIntList(r)
	if err != nil {
		return nil, fmt.Errorf("read outputs: %w", err)
	}

	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, fmt.Errorf("read node count: %w", err)
	}
	// Sanity check.
	if count > 1_000_000 {
		return nil, fmt.Errorf("node count too large: %d", count)
	}

	g := New()
	for i := uint32(0); i < count; i++ {
		n, err := readNode(r)
		if err != nil {
			return nil, fmt.Errorf("read node %d: %w", i, err)
		}
		n.ID = len(g.nodes)
		g.nodes = append(g.nodes, n)
	}
	if err := g.SetOutputs(outputs); err != nil {
		return nil, err
	}
	return g, nil
}

// LoadFile reads a graph from disk.
//
//nolint:gosec // G304: path comes from trusted caller, not user input.
func LoadFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open graph file: %w", err)
	}
	defer func() {
		_ = f.Close() // Ignore close error on read-only file.
	}()
	return Load(f)
}

func writeNode(w io.Writer, n *Node) error {
	le := binary.LittleEndian

	if err := writeString(w, n.Name); err != nil {
		return fmt.Errorf("write name: %w", err)
	}
	if err := binary.Write(w, le, uint32(n.Op)); err != nil {
		return fmt.Errorf("write op: %w", err)
	}

	a := n.Attrs
	useBias := uint8(0)
	if a.UseBias {
		useBias = 1
	}
	fixed := []interface{}{
		int32(a.Filters), int32(a.KernelSize), int32(a.Stride), uint8(a.Padding),
		int32(a.PadTop), int32(a.PadLeft), int32(a.BlockSize), int32(a.Scale),
		a.Slope, a.Decay, useBias,
	}
	for _, v := range fixed {
		if err := binary.Write(w, le, v); err != nil {
			return fmt.Errorf("write attrs: %w", err)
		}
	}

	if err := writeIntList(w, n.Inputs); err != nil {
		return fmt.Errorf("write inputs: %w", err)
	}
	if err := writeIntList(w, n.OutShape); err != nil {
		return fmt.Errorf("write shape: %w", err)
	}

	if err := binary.Write(w, le, uint32(len(n.Weights))); err != nil {
		return fmt.Errorf("write tensor count: %w", err)
	}
	for i, t := range n.Weights {
		if err := writeTensor(w, t); err != nil {
			return fmt.Errorf("write tensor %d: %w", i, err)
		}
	}
	return nil
}

func readNode(r io.Reader) (*Node, error) {
	le := binary.LittleEndian

	name, err := readString(r)
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}

	var op uint32
	if err := binary.Read(r, le, &op); err != nil {
		return nil, fmt.Errorf("read op: %w", err)
	}

	var (
		filters, kernel, stride, padTop, padLeft, block, scale int32
		padding, useBias                                       uint8
		slope, decay                                           float32
	)
	fixed := []interface{}{
		&filters, &kernel, &stride, &padding,
		&padTop, &padLeft, &block, &scale,
		&slope, &decay, &useBias,
	}
	for _, v := range fixed {
		if err := binary.Read(r, le, v); err != nil {
			return nil, fmt.Errorf("read attrs: %w", err)
		}
	}

	inputs, err := readIntList(r)
	if err != nil {
		return nil, fmt.Errorf("read inputs: %w", err)
	}
	shape, err := readIntList(r)
	if err != nil {
		return nil, fmt.Errorf("read shape: %w", err)
	}

	var tensorCount uint32
	if err := binary.Read(r, le, &tensorCount); err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	if tensorCount > 16 {
		return nil, fmt.Errorf("tensor count too large: %d", tensorCount)
	}
	tensors := make([]*tensor.Tensor, tensorCount)
	for i := range tensors {
		t, err := readTensor(r)
		if err != nil {
			return nil, fmt.Errorf("read tensor %d: %w", i, err)
		}
		tensors[i] = t
	}

	return &Node{
		Name: name,
		Op:   OpKind(op),
		Attrs: Attrs{
			Filters:    int(filters),
			KernelSize: int(kernel),
			Stride:     int(stride),
			Padding:    PadMode(padding),
			PadTop:     int(padTop),
			PadLeft:    int(padLeft),
			BlockSize:  int(block),
			Scale:      int(scale),
			Slope:      slope,
			Decay:      decay,
			UseBias:    useBias != 0,
		},
		Inputs:   inputs,
		OutShape: tensor.Shape(shape),
		Weights:  tensors,
	}, nil
}

func writeTensor(w io.Writer, t *tensor.Tensor) error {
	le := binary.LittleEndian

	if err := writeIntList(w, t.Shape()); err != nil {
		return fmt.Errorf("write dims: %w", err)
	}
	buf := make([]byte, len(t.Data())*4)
	for i, v := range t.Data() {
		le.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write data: %w", err)
	}
	return nil
}

func readTensor(r io.Reader) (*tensor.Tensor, error) {
	dims, err := readIntList(r)
	if err != nil {
		return nil, fmt.Errorf("read dims: %w", err)
	}
	shape := tensor.Shape(dims)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid tensor shape: %w", err)
	}

	buf := make([]byte, shape.NumElements()*4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read data: %w", err)
	}
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return tensor.FromSlice(data, shape)
}

func writeIntList(w io.Writer, xs []int) error {
	le := binary.LittleEndian
	if err := binary.Write(w, le, uint32(len(xs))); err != nil {
		return err
	}
	for _, x := range xs {
		if err := binary.Write(w, le, int32(x)); err != nil {
			return err
		}
	}
	return nil
}

func readIntList(r io.Reader) ([]int, error) {
	le := binary.LittleEndian
	var count uint32
	if err := binary.Read(r, le, &count); err != nil {
		return nil, err
	}
	// Sanity check: id/dim lists are tiny.
	if count > 1_000_000 {
		return nil, fmt.Errorf("list too large: %d elements", count)
	}
	if count == 0 {
		return nil, nil
	}
	out := make([]int, count)
	for i := range out {
		var v int32
		if err := binary.Read(r, le, &v); err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

// writeString writes a length-prefixed string (not null-terminated).
func writeString(w io.Writer, s string) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	// Sanity check: limit string length to 1MB.
	if length > 1<<20 {
		return "", fmt.Errorf("string too long: %d bytes", length)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("read string data: %w", err)
	}
	return string(data), nil
}
