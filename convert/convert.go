// Copyright 2026 the yad2g authors. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package convert provides the public API for converting Darknet
// networks into layer graphs.
//
// Example:
//
//	sections, err := convert.ParseConfig("yolov3.cfg")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	r, err := convert.OpenWeights("yolov3.weights", convert.VariantV3)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer r.Close()
//
//	c := convert.New(convert.Options{Variant: convert.VariantV3})
//	g, artifacts, err := c.Convert(sections, r)
package convert

import (
	"github.com/yad2g/yad2g/internal/cfg"
	"github.com/yad2g/yad2g/internal/convert"
	"github.com/yad2g/yad2g/internal/graph"
	"github.com/yad2g/yad2g/internal/weights"
)

// Variant selects between the two Darknet lineages the converter knows.
type Variant = convert.Variant

// Supported variants.
const (
	// VariantV3 is the multi-output lineage: modern weight header,
	// outputs recorded at yolo markers, fully-convolutional input.
	VariantV3 Variant = convert.VariantV3

	// VariantV2 is the single-output lineage: legacy 16-byte header,
	// fixed input size from [net], output is the final tail.
	VariantV2 Variant = convert.VariantV2
)

// Options configures a Converter.
type Options = convert.Options

// Converter turns parsed sections plus a weight stream into a graph.
type Converter = convert.Converter

// Artifacts carries the conversion side products.
type Artifacts = convert.Artifacts

// Section is one parsed config section with a uniquified name.
type Section = cfg.Section

// WeightReader is a sequential cursor over a Darknet weight stream.
type WeightReader = weights.Reader

// New creates a Converter.
func New(opts Options) *Converter {
	return convert.New(opts)
}

// ParseConfig parses a Darknet .cfg file, uniquifying section names.
func ParseConfig(path string) ([]Section, error) {
	return cfg.ParseFile(path)
}

// OpenWeights opens a .weights file with the header layout implied by
// the variant. The caller owns the returned reader and must close it.
func OpenWeights(path string, v Variant) (*WeightReader, error) {
	return weights.Open(path, v.HeaderLayout())
}

// WriteSummary writes the human-readable node dump for root, named
// <root>_summary.txt.
func WriteSummary(root string, g *graph.Graph) error {
	return convert.WriteSummary(root, g)
}
