// Copyright 2026 the yad2g authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package graph provides the public API for converted layer graphs.
//
// A Graph is a directed acyclic graph of typed nodes in execution
// order, each carrying its operation parameters and pre-computed weight
// tensors. Graphs round-trip through a flat binary format via Save and
// Load, so an inference runtime can reinstantiate the network without
// ever seeing Darknet's formats.
//
// Example:
//
//	g, err := graph.LoadFile("yolov3.graph")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	g.Summary(os.Stdout)
package graph

import (
	"io"

	"github.com/yad2g/yad2g/internal/graph"
)

// OpKind identifies a node's operation.
type OpKind = graph.OpKind

// Node operations.
const (
	OpInput         OpKind = graph.OpInput
	OpConv2D        OpKind = graph.OpConv2D
	OpZeroPad2D     OpKind = graph.OpZeroPad2D
	OpBatchNorm     OpKind = graph.OpBatchNorm
	OpLeakyReLU     OpKind = graph.OpLeakyReLU
	OpMaxPool2D     OpKind = graph.OpMaxPool2D
	OpGlobalAvgPool OpKind = graph.OpGlobalAvgPool
	OpConcat        OpKind = graph.OpConcat
	OpSpaceToDepth  OpKind = graph.OpSpaceToDepth
	OpAdd           OpKind = graph.OpAdd
	OpUpsample      OpKind = graph.OpUpsample
)

// PadMode selects the convolution/pooling padding convention.
type PadMode = graph.PadMode

// Padding modes.
const (
	PadValid PadMode = graph.PadValid
	PadSame  PadMode = graph.PadSame
)

// Attrs holds per-node operation parameters.
type Attrs = graph.Attrs

// Node is one operation in the graph.
type Node = graph.Node

// Graph is an append-only DAG of nodes.
type Graph = graph.Graph

// New creates an empty graph.
func New() *Graph {
	return graph.New()
}

// Load reads a graph previously written with Save.
func Load(r io.Reader) (*Graph, error) {
	return graph.Load(r)
}

// LoadFile reads a graph from disk.
func LoadFile(path string) (*Graph, error) {
	return graph.LoadFile(path)
}
