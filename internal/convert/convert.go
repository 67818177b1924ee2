// Package convert walks parsed Darknet config sections in order,
// draining the weight stream in lockstep and assembling the layer graph.
//
// The walk order and per-section byte counts are the whole contract:
// every convolutional section consumes exactly the bytes its shape
// parameters dictate, and a single miscount desynchronizes the weights
// of every layer after it. Format problems are therefore always fatal;
// only trailing bytes after a complete walk are downgraded to a warning,
// because some export tools pad the file.
package convert

import (
	"fmt"
	"os"

	"github.com/cyclopcam/logs"

	"github.com/yad2g/yad2g/internal/cfg"
	"github.com/yad2g/yad2g/internal/graph"
	"github.com/yad2g/yad2g/internal/tensor"
	"github.com/yad2g/yad2g/internal/weights"
)

// Variant selects between the two Darknet lineages the converter knows.
type Variant int

const (
	// VariantV3 is the multi-output lineage: modern weight header,
	// outputs recorded at yolo markers, fully-convolutional input.
	VariantV3 Variant = iota

	// VariantV2 is the single-output lineage: legacy 16-byte header,
	// fixed input size from [net], output is the final tail.
	VariantV2
)

// String returns the variant name.
func (v Variant) String() string {
	switch v {
	case VariantV2:
		return "v2"
	case VariantV3:
		return "v3"
	default:
		return fmt.Sprintf("unknown(%d)", int(v))
	}
}

// HeaderLayout returns the weight-file header layout for the variant.
func (v Variant) HeaderLayout() weights.HeaderLayout {
	if v == VariantV2 {
		return weights.LayoutLegacy
	}
	return weights.LayoutModern
}

// Options configures a Converter.
type Options struct {
	Variant Variant
	Log     logs.Log // Optional; nil silences progress output.
}

// Artifacts carries the conversion side products: the anchor list for
// the detection head and the stream accounting.
type Artifacts struct {
	Anchors    string // Comma-separated anchor values; empty if none seen.
	HasAnchors bool

	ConsumedScalars int64 // float32 values read from the stream.
	TrailingBytes   int64 // Unread bytes left after the walk; warning, not error.
}

// TrailingScalars returns the trailing byte count expressed in float32
// scalars. Fractional values indicate the padding is not float-aligned.
func (a *Artifacts) TrailingScalars() float64 {
	return float64(a.TrailingBytes) / 4
}

// WriteAnchors writes the anchors side-channel file for root, named
// <root>_anchors.txt: one line of comma-separated values.
func (a *Artifacts) WriteAnchors(root string) error {
	if !a.HasAnchors {
		return nil
	}
	path := root + "_anchors.txt"
	if err := os.WriteFile(path, []byte(a.Anchors+"\n"), 0o644); err != nil {
		return fmt.Errorf("write anchors file: %w", err)
	}
	return nil
}

// WriteSummary writes the human-readable node dump for root, named
// <root>_summary.txt.
func WriteSummary(root string, g *graph.Graph) error {
	f, err := os.Create(root + "_summary.txt")
	if err != nil {
		return fmt.Errorf("create summary file: %w", err)
	}
	if err := g.Summary(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close summary file: %w", err)
	}
	return nil
}

// Converter turns parsed sections plus a weight stream into a graph.
type Converter struct {
	opts Options
}

// New creates a Converter.
func New(opts Options) *Converter {
	return &Converter{opts: opts}
}

func (c *Converter) infof(format string, args ...interface{}) {
	if c.opts.Log != nil {
		c.opts.Log.Infof(format, args...)
	}
}

// builder is the explicit per-conversion state: the current tail node
// and the materialized-layer list that route/shortcut sections index
// into. A placeholder entry (id -1) marks a yolo terminal: it occupies
// index space but has no node.
type builder struct {
	g            *graph.Graph
	tail         int
	materialized []int
	outIndex     []int // Indices into materialized, recorded at yolo markers.
	decay        float32
}

// resolve maps a possibly negative section index into the materialized
// list, mirroring Python-style negative indexing: -k means k from the end.
func (b *builder) resolve(sectionName string, idx int) (int, error) {
	pos := idx
	if pos < 0 {
		pos += len(b.materialized)
	}
	if pos < 0 || pos >= len(b.materialized) {
		return 0, fmt.Errorf("section %s: layer index %d out of range (have %d layers)",
			sectionName, idx, len(b.materialized))
	}
	id := b.materialized[pos]
	if id < 0 {
		return 0, fmt.Errorf("section %s: layer index %d refers to a yolo placeholder", sectionName, idx)
	}
	return id, nil
}

// channels returns the channel depth of a node's output.
func (b *builder) channels(id int) (int, error) {
	n, err := b.g.Node(id)
	if err != nil {
		return 0, err
	}
	shape := n.OutShape
	if len(shape) != 3 {
		return 0, fmt.Errorf("node %s has non-spatial shape %v", n.Name, shape)
	}
	return shape[2], nil
}

// Convert runs the declaration walk. It consumes r in lockstep with the
// sections and returns the assembled graph plus conversion artifacts.
//
//nolint:gocognit // One dispatch loop over all section kinds.
func (c *Converter) Convert(sections []cfg.Section, r *weights.Reader) (*graph.Graph, *Artifacts, error) {
	b := &builder{g: graph.New(), decay: 5e-4}
	art := &Artifacts{}

	// [net] supplies the input geometry and the weight-decay default.
	if err := c.setupInput(sections, b); err != nil {
		return nil, nil, err
	}

	for i := range sections {
		s := &sections[i]
		kind, err := KindOf(s.Base)
		if err != nil {
			return nil, nil, fmt.Errorf("section %s: %w", s.Name, err)
		}
		c.infof("Parsing section %s", s.Name)

		switch kind {
		case KindConvolutional:
			err = c.convolutional(b, s, r)
		case KindMaxPool:
			err = c.maxpool(b, s)
		case KindAvgPool:
			err = c.avgpool(b, s)
		case KindRoute:
			err = c.route(b, s)
		case KindReorg:
			err = c.reorg(b, s)
		case KindShortcut:
			err = c.shortcut(b, s)
		case KindUpsample:
			err = c.upsample(b, s)
		case KindYolo:
			c.anchors(art, s)
			b.outIndex = append(b.outIndex, len(b.materialized)-1)
			b.materialized = append(b.materialized, -1)
		case KindRegion:
			c.anchors(art, s)
		case KindNet, KindCost, KindSoftmax:
			// Recognized, no graph effect.
		}
		if err != nil {
			return nil, nil, err
		}
	}

	if err := c.declareOutputs(b); err != nil {
		return nil, nil, err
	}

	art.ConsumedScalars = r.FloatsRead()
	trailing, err := r.Trailing()
	if err != nil {
		return nil, nil, err
	}
	art.TrailingBytes = trailing

	c.infof("Read %d of %v weight scalars from Darknet weights.",
		art.ConsumedScalars, float64(art.ConsumedScalars)+art.TrailingScalars())
	return b.g, art, nil
}

func (c *Converter) setupInput(sections []cfg.Section, b *builder) error {
	var net *cfg.Section
	for i := range sections {
		if sections[i].Base == "net" || sections[i].Base == "network" {
			net = &sections[i]
			break
		}
	}

	height, width := -1, -1
	channels := 3
	if net != nil {
		decay, err := net.Float("decay", 5e-4)
		if err != nil {
			return err
		}
		b.decay = float32(decay)
		if channels, err = net.IntOr("channels", 3); err != nil {
			return err
		}
		if c.opts.Variant == VariantV2 {
			if height, err = net.Int("height"); err != nil {
				return err
			}
			if width, err = net.Int("width"); err != nil {
				return err
			}
		}
	} else if c.opts.Variant == VariantV2 {
		return fmt.Errorf("config has no [net] section; input size unknown")
	}

	id, err := b.g.AddInput("input", height, width, channels)
	if err != nil {
		return err
	}
	b.tail = id
	if c.opts.Variant == VariantV2 {
		// The v2 lineage counts the input as materialized layer 0, so
		// route/shortcut indices are offset by one relative to v3.
		b.materialized = append(b.materialized, id)
	}
	return nil
}

//nolint:gocognit // Mirrors the full Darknet convolutional block layout.
func (c *Converter) convolutional(b *builder, s *cfg.Section, r *weights.Reader) error {
	filters, err := s.Int("filters")
	if err != nil {
		return err
	}
	size, err := s.Int("size")
	if err != nil {
		return err
	}
	stride, err := s.Int("stride")
	if err != nil {
		return err
	}
	pad, err := s.IntOr("pad", 0)
	if err != nil {
		return err
	}
	activation := s.Str("activation", "linear")
	batchNormalize := s.Has("batch_normalize")

	// Reject unknown activations before touching the stream so the
	// failure is attributable to this section with zero extra bytes
	// consumed.
	if activation != "linear" && activation != "leaky" {
		return fmt.Errorf("unknown activation function %q in section %s", activation, s.Name)
	}
	if filters <= 0 || size <= 0 || stride <= 0 {
		return fmt.Errorf("section %s: invalid shape parameters (filters=%d size=%d stride=%d)",
			s.Name, filters, size, stride)
	}

	padding := graph.PadValid
	if c.opts.Variant == VariantV2 {
		if pad == 1 {
			padding = graph.PadSame
		}
	} else if pad == 1 && stride == 1 {
		padding = graph.PadSame
	}

	inChannels, err := b.channels(b.tail)
	if err != nil {
		return fmt.Errorf("section %s: %w", s.Name, err)
	}

	c.infof("conv2d bn=%v %s filters=%d size=%d stride=%d in=%d",
		batchNormalize, activation, filters, size, stride, inChannels)

	// Darknet serializes a convolutional block as
	// [bias/beta, [gamma, mean, variance], kernel].
	bias, err := r.ReadFloats(filters)
	if err != nil {
		return fmt.Errorf("section %s: read bias: %w", s.Name, err)
	}
	biasT, err := tensor.FromSlice(bias, tensor.Shape{filters})
	if err != nil {
		return err
	}

	var bnWeights []*tensor.Tensor
	if batchNormalize {
		raw, err := r.ReadFloats(3 * filters)
		if err != nil {
			return fmt.Errorf("section %s: read batch norm: %w", s.Name, err)
		}
		// gamma, running mean, running variance; bias doubles as beta.
		for i := 0; i < 3; i++ {
			t, err := tensor.FromSlice(raw[i*filters:(i+1)*filters], tensor.Shape{filters})
			if err != nil {
				return err
			}
			bnWeights = append(bnWeights, t)
		}
	}

	kernelCount := size * size * inChannels * filters
	raw, err := r.ReadFloats(kernelCount)
	if err != nil {
		return fmt.Errorf("section %s: read kernel: %w", s.Name, err)
	}
	// On-disk kernel layout is Caffe-style (out, in, h, w); the graph
	// wants (h, w, in, out).
	kernel, err := tensor.FromSlice(raw, tensor.Shape{filters, inChannels, size, size})
	if err != nil {
		return err
	}
	kernel, err = kernel.Transpose(2, 3, 1, 0)
	if err != nil {
		return fmt.Errorf("section %s: transpose kernel: %w", s.Name, err)
	}

	tail := b.tail
	if stride > 1 {
		// Darknet pads the top-left corner instead of using 'same' mode
		// for strided convolutions.
		tail, err = b.g.Add(&graph.Node{
			Name:   s.Name + "_pad",
			Op:     graph.OpZeroPad2D,
			Attrs:  graph.Attrs{PadTop: 1, PadLeft: 1},
			Inputs: []int{tail},
		})
		if err != nil {
			return err
		}
	}

	convWeights := []*tensor.Tensor{kernel}
	if !batchNormalize {
		convWeights = append(convWeights, biasT)
	}
	tail, err = b.g.Add(&graph.Node{
		Name: s.Name,
		Op:   graph.OpConv2D,
		Attrs: graph.Attrs{
			Filters:    filters,
			KernelSize: size,
			Stride:     stride,
			Padding:    padding,
			Decay:      b.decay,
			UseBias:    !batchNormalize,
		},
		Inputs:  []int{tail},
		Weights: convWeights,
	})
	if err != nil {
		return err
	}

	if batchNormalize {
		tail, err = b.g.Add(&graph.Node{
			Name:    s.Name + "_bn",
			Op:      graph.OpBatchNorm,
			Inputs:  []int{tail},
			Weights: []*tensor.Tensor{bnWeights[0], biasT, bnWeights[1], bnWeights[2]},
		})
		if err != nil {
			return err
		}
	}

	if activation == "leaky" {
		tail, err = b.g.Add(&graph.Node{
			Name:   s.Name + "_leaky",
			Op:     graph.OpLeakyReLU,
			Attrs:  graph.Attrs{Slope: 0.1},
			Inputs: []int{tail},
		})
		if err != nil {
			return err
		}
	}

	b.tail = tail
	b.materialized = append(b.materialized, tail)
	return nil
}

func (c *Converter) maxpool(b *builder, s *cfg.Section) error {
	size, err := s.Int("size")
	if err != nil {
		return err
	}
	stride, err := s.Int("stride")
	if err != nil {
		return err
	}

	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpMaxPool2D,
		Attrs:  graph.Attrs{KernelSize: size, Stride: stride, Padding: graph.PadSame},
		Inputs: []int{b.tail},
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

func (c *Converter) avgpool(b *builder, s *cfg.Section) error {
	// Only the bare global-pooling form is supported.
	if s.Len() != 0 {
		return fmt.Errorf("%s with params unsupported", s.Name)
	}
	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpGlobalAvgPool,
		Inputs: []int{b.tail},
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

func (c *Converter) route(b *builder, s *cfg.Section) error {
	ids, err := s.Ints("layers")
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return fmt.Errorf("section %s: empty layer list", s.Name)
	}

	resolved := make([]int, len(ids))
	for i, idx := range ids {
		if resolved[i], err = b.resolve(s.Name, idx); err != nil {
			return err
		}
	}

	if len(resolved) == 1 {
		// A single-layer route just re-points the tail; no node is created.
		b.tail = resolved[0]
		b.materialized = append(b.materialized, resolved[0])
		return nil
	}

	c.infof("Concatenating route layers: %v", ids)
	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpConcat,
		Inputs: resolved, // Listed order, not sorted.
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

func (c *Converter) reorg(b *builder, s *cfg.Section) error {
	stride, err := s.Int("stride")
	if err != nil {
		return err
	}
	if stride != 2 {
		return fmt.Errorf("section %s: only reorg with stride 2 supported, got %d", s.Name, stride)
	}

	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpSpaceToDepth,
		Attrs:  graph.Attrs{BlockSize: 2},
		Inputs: []int{b.tail},
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

func (c *Converter) shortcut(b *builder, s *cfg.Section) error {
	from, err := s.Int("from")
	if err != nil {
		return err
	}
	if act := s.Str("activation", "linear"); act != "linear" {
		return fmt.Errorf("section %s: only linear shortcut activation supported, got %q", s.Name, act)
	}

	src, err := b.resolve(s.Name, from)
	if err != nil {
		return err
	}

	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpAdd,
		Inputs: []int{src, b.tail},
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

func (c *Converter) upsample(b *builder, s *cfg.Section) error {
	stride, err := s.Int("stride")
	if err != nil {
		return err
	}
	if stride != 2 {
		return fmt.Errorf("section %s: only upsample with stride 2 supported, got %d", s.Name, stride)
	}

	id, err := b.g.Add(&graph.Node{
		Name:   s.Name,
		Op:     graph.OpUpsample,
		Attrs:  graph.Attrs{Scale: stride},
		Inputs: []int{b.tail},
	})
	if err != nil {
		return err
	}
	b.tail = id
	b.materialized = append(b.materialized, id)
	return nil
}

// anchors records a detection head's anchor list. Every yolo section in
// a config carries the same list, and the original tool overwrote the
// anchors file per section, so the last one seen wins.
func (c *Converter) anchors(art *Artifacts, s *cfg.Section) {
	if a := s.Str("anchors", ""); a != "" {
		art.Anchors = a
		art.HasAnchors = true
	}
}

func (c *Converter) declareOutputs(b *builder) error {
	if c.opts.Variant == VariantV2 {
		return b.g.SetOutputs([]int{b.tail})
	}

	if len(b.outIndex) == 0 {
		return b.g.SetOutputs([]int{b.tail})
	}
	outputs := make([]int, len(b.outIndex))
	for i, idx := range b.outIndex {
		if idx < 0 || idx >= len(b.materialized) || b.materialized[idx] < 0 {
			return fmt.Errorf("output marker %d does not name a materialized layer", idx)
		}
		outputs[i] = b.materialized[idx]
	}
	return b.g.SetOutputs(outputs)
}
