// Package graph models a converted network as a directed acyclic graph
// of typed nodes with attached weight tensors.
//
// The graph is append-only: nodes are added in topological order by
// construction (every input id refers to an earlier node), so execution
// order is simply node order and no sorting pass is needed. Output
// shapes are inferred as nodes are appended; spatial dimensions may be
// unknown (-1) for fully-convolutional inputs, channel counts never are.
package graph

import (
	"fmt"
	"io"

	"github.com/yad2g/yad2g/internal/tensor"
)

// OpKind identifies a node's operation.
type OpKind uint32

// Node operations.
const (
	OpInput OpKind = iota
	OpConv2D
	OpZeroPad2D
	OpBatchNorm
	OpLeakyReLU
	OpMaxPool2D
	OpGlobalAvgPool
	OpConcat
	OpSpaceToDepth
	OpAdd
	OpUpsample
)

var opNames = map[OpKind]string{
	OpInput:         "Input",
	OpConv2D:        "Conv2D",
	OpZeroPad2D:     "ZeroPad2D",
	OpBatchNorm:     "BatchNorm",
	OpLeakyReLU:     "LeakyReLU",
	OpMaxPool2D:     "MaxPool2D",
	OpGlobalAvgPool: "GlobalAvgPool",
	OpConcat:        "Concat",
	OpSpaceToDepth:  "SpaceToDepth",
	OpAdd:           "Add",
	OpUpsample:      "Upsample",
}

// String returns the operation name.
func (k OpKind) String() string {
	if name, ok := opNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint32(k))
}

// PadMode selects the convolution/pooling padding convention.
type PadMode uint8

// Padding modes.
const (
	PadValid PadMode = iota
	PadSame
)

// String returns the padding mode name.
func (m PadMode) String() string {
	switch m {
	case PadValid:
		return "valid"
	case PadSame:
		return "same"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Attrs holds per-node operation parameters. Only the fields relevant
// to the node's op are meaningful; the rest stay zero.
type Attrs struct {
	Filters    int     // Conv2D: output channels.
	KernelSize int     // Conv2D, MaxPool2D.
	Stride     int     // Conv2D, MaxPool2D.
	Padding    PadMode // Conv2D, MaxPool2D.
	PadTop     int     // ZeroPad2D.
	PadLeft    int     // ZeroPad2D.
	BlockSize  int     // SpaceToDepth.
	Scale      int     // Upsample.
	Slope      float32 // LeakyReLU.
	Decay      float32 // Conv2D: L2 weight decay recorded from [net].
	UseBias    bool    // Conv2D: false when a BatchNorm consumes the bias.
}

// Node is one operation in the graph.
type Node struct {
	ID      int
	Name    string
	Op      OpKind
	Attrs   Attrs
	Inputs  []int            // IDs of upstream nodes, in wiring order.
	Weights []*tensor.Tensor // Pre-computed weight tensors, if any.

	// OutShape is the inferred output shape: [H, W, C] for spatial
	// nodes, [C] after global pooling. Spatial entries may be -1.
	OutShape tensor.Shape
}

// WeightScalars returns the total number of float32 values attached to
// the node.
func (n *Node) WeightScalars() int {
	total := 0
	for _, w := range n.Weights {
		total += w.NumElements()
	}
	return total
}

// Graph is an append-only DAG of nodes.
type Graph struct {
	nodes   []*Node
	outputs []int
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{}
}

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int {
	return len(g.nodes)
}

// Node returns the node with the given id.
func (g *Graph) Node(id int) (*Node, error) {
	if id < 0 || id >= len(g.nodes) {
		return nil, fmt.Errorf("node id %d out of range [0, %d)", id, len(g.nodes))
	}
	return g.nodes[id], nil
}

// Nodes returns the node list in execution order.
func (g *Graph) Nodes() []*Node {
	return g.nodes
}

// Outputs returns the declared output node ids.
func (g *Graph) Outputs() []int {
	return g.outputs
}

// SetOutputs declares the graph's output nodes.
func (g *Graph) SetOutputs(ids []int) error {
	for _, id := range ids {
		if id < 0 || id >= len(g.nodes) {
			return fmt.Errorf("output id %d out of range [0, %d)", id, len(g.nodes))
		}
	}
	g.outputs = append([]int(nil), ids...)
	return nil
}

// AddInput appends the network input node. Spatial dimensions may be -1
// for fully-convolutional networks; the channel count must be known.
func (g *Graph) AddInput(name string, height, width, channels int) (int, error) {
	if channels <= 0 {
		return 0, fmt.Errorf("input node: invalid channel count %d", channels)
	}
	n := &Node{
		ID:       len(g.nodes),
		Name:     name,
		Op:       OpInput,
		OutShape: tensor.Shape{height, width, channels},
	}
	g.nodes = append(g.nodes, n)
	return n.ID, nil
}

// Add appends a node, wiring its inputs and inferring its output shape.
// The node's ID field is assigned by the graph.
func (g *Graph) Add(n *Node) (int, error) {
	if n.Op == OpInput {
		return 0, fmt.Errorf("node %s: use AddInput for input nodes", n.Name)
	}
	if len(n.Inputs) == 0 {
		return 0, fmt.Errorf("node %s: no inputs", n.Name)
	}
	for _, id := range n.Inputs {
		if id < 0 || id >= len(g.nodes) {
			return 0, fmt.Errorf("node %s: input id %d out of range [0, %d)", n.Name, id, len(g.nodes))
		}
	}

	shape, err := g.inferShape(n)
	if err != nil {
		return 0, fmt.Errorf("node %s: %w", n.Name, err)
	}
	n.OutShape = shape
	n.ID = len(g.nodes)
	g.nodes = append(g.nodes, n)
	return n.ID, nil
}

// spatial unpacks an [H, W, C] shape.
func spatial(s tensor.Shape) (h, w, c int, err error) {
	if len(s) != 3 {
		return 0, 0, 0, fmt.Errorf("expected spatial [H W C] input, got shape %v", s)
	}
	return s[0], s[1], s[2], nil
}

// downsample applies stride arithmetic to one spatial dimension,
// propagating unknown (-1) dimensions.
func downsample(dim, kernel, stride int, mode PadMode) int {
	if dim < 0 {
		return -1
	}
	if mode == PadSame {
		return (dim + stride - 1) / stride
	}
	return (dim-kernel)/stride + 1
}

// scaleDim multiplies an upsampled dimension, propagating unknowns.
func scaleDim(dim, factor int) int {
	if dim < 0 {
		return -1
	}
	return dim * factor
}

//nolint:gocognit // Single exhaustive switch over all op kinds.
func (g *Graph) inferShape(n *Node) (tensor.Shape, error) {
	first := g.nodes[n.Inputs[0]].OutShape

	switch n.Op {
	case OpConv2D:
		h, w, _, err := spatial(first)
		if err != nil {
			return nil, err
		}
		if n.Attrs.Filters <= 0 || n.Attrs.KernelSize <= 0 || n.Attrs.Stride <= 0 {
			return nil, fmt.Errorf("invalid conv attrs %+v", n.Attrs)
		}
		return tensor.Shape{
			downsample(h, n.Attrs.KernelSize, n.Attrs.Stride, n.Attrs.Padding),
			downsample(w, n.Attrs.KernelSize, n.Attrs.Stride, n.Attrs.Padding),
			n.Attrs.Filters,
		}, nil

	case OpZeroPad2D:
		h, w, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		return tensor.Shape{padDim(h, n.Attrs.PadTop), padDim(w, n.Attrs.PadLeft), c}, nil

	case OpBatchNorm, OpLeakyReLU:
		return first.Clone(), nil

	case OpMaxPool2D:
		h, w, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		if n.Attrs.KernelSize <= 0 || n.Attrs.Stride <= 0 {
			return nil, fmt.Errorf("invalid pool attrs %+v", n.Attrs)
		}
		return tensor.Shape{
			downsample(h, n.Attrs.KernelSize, n.Attrs.Stride, n.Attrs.Padding),
			downsample(w, n.Attrs.KernelSize, n.Attrs.Stride, n.Attrs.Padding),
			c,
		}, nil

	case OpGlobalAvgPool:
		_, _, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		return tensor.Shape{c}, nil

	case OpConcat:
		h, w, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		for _, id := range n.Inputs[1:] {
			_, _, ci, err := spatial(g.nodes[id].OutShape)
			if err != nil {
				return nil, err
			}
			c += ci
		}
		return tensor.Shape{h, w, c}, nil

	case OpSpaceToDepth:
		h, w, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		b := n.Attrs.BlockSize
		if b <= 0 {
			return nil, fmt.Errorf("invalid block size %d", b)
		}
		return tensor.Shape{divIfKnown(h, b), divIfKnown(w, b), c * b * b}, nil

	case OpAdd:
		if len(n.Inputs) != 2 {
			return nil, fmt.Errorf("add expects 2 inputs, got %d", len(n.Inputs))
		}
		return first.Clone(), nil

	case OpUpsample:
		h, w, c, err := spatial(first)
		if err != nil {
			return nil, err
		}
		if n.Attrs.Scale <= 0 {
			return nil, fmt.Errorf("invalid upsample scale %d", n.Attrs.Scale)
		}
		return tensor.Shape{scaleDim(h, n.Attrs.Scale), scaleDim(w, n.Attrs.Scale), c}, nil

	default:
		return nil, fmt.Errorf("cannot infer shape for op %s", n.Op)
	}
}

func padDim(dim, pad int) int {
	if dim < 0 {
		return -1
	}
	return dim + pad
}

func divIfKnown(dim, by int) int {
	if dim < 0 {
		return -1
	}
	return dim / by
}

// Summary writes a human-readable node table: one row per node with
// name, operation, inferred output shape and attached weight scalars.
// Diagnostic only; nothing parses this.
func (g *Graph) Summary(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%-28s %-14s %-18s %12s  %s\n",
		"Name", "Op", "Output Shape", "Weights", "Inputs"); err != nil {
		return err
	}
	totalWeights := 0
	for _, n := range g.nodes {
		totalWeights += n.WeightScalars()
		if _, err := fmt.Fprintf(w, "%-28s %-14s %-18s %12d  %v\n",
			n.Name, n.Op, formatShape(n.OutShape), n.WeightScalars(), n.Inputs); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "\nNodes: %d   Outputs: %v   Total weights: %d\n",
		len(g.nodes), g.outputs, totalWeights); err != nil {
		return err
	}
	return nil
}

func formatShape(s tensor.Shape) string {
	out := "("
	for i, d := range s {
		if i > 0 {
			out += ", "
		}
		if d < 0 {
			out += "?"
		} else {
			out += fmt.Sprintf("%d", d)
		}
	}
	return out + ")"
}
