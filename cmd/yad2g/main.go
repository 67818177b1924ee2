// Command yad2g converts a Darknet network (.cfg + .weights) into a
// layer-graph file, plus an anchors file for the detection head and a
// human-readable summary.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"

	"github.com/yad2g/yad2g/convert"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// requireSuffix validates a path's extension before any heavy work.
func requireSuffix(path, suffix, what string) {
	if !strings.HasSuffix(path, suffix) {
		fatalf("%s %q is not a %s file", what, path, suffix)
	}
}

func main() {
	parser := argparse.NewParser("yad2g", "Yet another Darknet to graph converter")
	cfgPath := parser.String("c", "cfg", &argparse.Options{Help: "Darknet network definition (.cfg)", Required: true})
	weightsPath := parser.String("w", "weights", &argparse.Options{Help: "Darknet weight file (.weights)", Required: true})
	output := parser.String("o", "output", &argparse.Options{Help: "Output graph file (.graph)", Required: true})
	variantName := parser.Selector("V", "variant", []string{"auto", "v2", "v3"},
		&argparse.Options{Help: "Darknet lineage; auto infers v2 from the cfg file name", Required: false, Default: "auto"})
	noSummary := parser.Flag("", "no-summary", &argparse.Options{Help: "Skip the node summary file", Required: false})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	requireSuffix(*cfgPath, ".cfg", "config path")
	requireSuffix(*weightsPath, ".weights", "weights path")
	requireSuffix(*output, ".graph", "output path")

	variant := convert.VariantV3
	switch *variantName {
	case "v2":
		variant = convert.VariantV2
	case "v3":
		variant = convert.VariantV3
	case "auto":
		base := strings.TrimSuffix(filepath.Base(*cfgPath), ".cfg")
		if strings.HasSuffix(base, "v2") {
			variant = convert.VariantV2
		}
	}

	logger, _ := logs.NewLog()
	logger.Infof("Loading weights from %v (%v layout)", *weightsPath, variant)

	r, err := convert.OpenWeights(*weightsPath, variant)
	check(err)
	defer func() {
		_ = r.Close() // Ignore close error on read-only file.
	}()

	h := r.Header()
	logger.Infof("Weights header: %v.%v.%v, %v images seen", h.Major, h.Minor, h.Revision, h.Seen)

	logger.Infof("Parsing Darknet config %v", *cfgPath)
	sections, err := convert.ParseConfig(*cfgPath)
	check(err)

	c := convert.New(convert.Options{Variant: variant, Log: logger})
	g, artifacts, err := c.Convert(sections, r)
	check(err)

	check(g.SaveFile(*output))
	logger.Infof("Saved graph to %v", *output)

	root := strings.TrimSuffix(*output, ".graph")
	check(artifacts.WriteAnchors(root))
	if !*noSummary {
		check(convert.WriteSummary(root, g))
	}

	if artifacts.TrailingBytes > 0 {
		logger.Warnf("%v unused weight scalars (%v trailing bytes)",
			artifacts.TrailingScalars(), artifacts.TrailingBytes)
	}
}
