package convert

import "fmt"

// LayerKind is the closed set of Darknet section kinds the converter
// understands. Classification is exhaustive: a base name outside this
// set is a fatal error, never skipped, because skipping a section would
// desynchronize every subsequent layer's weights.
type LayerKind int

// Recognized section kinds.
const (
	KindNet LayerKind = iota
	KindConvolutional
	KindMaxPool
	KindAvgPool
	KindRoute
	KindReorg
	KindShortcut
	KindUpsample
	KindYolo
	KindRegion
	KindCost
	KindSoftmax
)

var kindNames = map[LayerKind]string{
	KindNet:           "net",
	KindConvolutional: "convolutional",
	KindMaxPool:       "maxpool",
	KindAvgPool:       "avgpool",
	KindRoute:         "route",
	KindReorg:         "reorg",
	KindShortcut:      "shortcut",
	KindUpsample:      "upsample",
	KindYolo:          "yolo",
	KindRegion:        "region",
	KindCost:          "cost",
	KindSoftmax:       "softmax",
}

// String returns the section base name for the kind.
func (k LayerKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

var kindByBase = map[string]LayerKind{
	"net":           KindNet,
	"network":       KindNet,
	"convolutional": KindConvolutional,
	"conv":          KindConvolutional,
	"maxpool":       KindMaxPool,
	"max":           KindMaxPool,
	"avgpool":       KindAvgPool,
	"avg":           KindAvgPool,
	"route":         KindRoute,
	"reorg":         KindReorg,
	"shortcut":      KindShortcut,
	"upsample":      KindUpsample,
	"yolo":          KindYolo,
	"region":        KindRegion,
	"cost":          KindCost,
	"softmax":       KindSoftmax,
}

// KindOf classifies a section base name.
func KindOf(base string) (LayerKind, error) {
	if k, ok := kindByBase[base]; ok {
		return k, nil
	}
	return 0, fmt.Errorf("unsupported section header type: %s", base)
}
