package cfg

import (
	"strings"
	"testing"
)

const tinyConfig = `
[net]
# Training hyperparameters are ignored by the converter.
height = 416
width=416
decay=0.0005

[convolutional]
filters=32
size=3
stride=1
pad=1
activation=leaky

[convolutional]
filters=64
size=3
stride=2
pad=1
activation=leaky

[route]
layers = -1, -3
`

func TestParseUniquifiesSections(t *testing.T) {
	sections, err := Parse(strings.NewReader(tinyConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []string{"net_0", "convolutional_0", "convolutional_1", "route_0"}
	if len(sections) != len(want) {
		t.Fatalf("got %d sections, want %d", len(sections), len(want))
	}
	for i, name := range want {
		if sections[i].Name != name {
			t.Errorf("section %d: Name = %q, want %q", i, sections[i].Name, name)
		}
	}

	if sections[1].Base != "convolutional" || sections[1].Index != 0 {
		t.Errorf("Base/Index = %q/%d, want convolutional/0", sections[1].Base, sections[1].Index)
	}
	if sections[2].Index != 1 {
		t.Errorf("second convolutional Index = %d, want 1", sections[2].Index)
	}
}

func TestParsePreservesPerSectionContent(t *testing.T) {
	sections, err := Parse(strings.NewReader(tinyConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	conv0 := sections[1]
	filters, err := conv0.Int("filters")
	if err != nil {
		t.Fatalf("Int(filters): %v", err)
	}
	if filters != 32 {
		t.Errorf("filters = %d, want 32", filters)
	}
	if act := conv0.Str("activation", ""); act != "leaky" {
		t.Errorf("activation = %q, want leaky", act)
	}

	conv1 := sections[2]
	stride, err := conv1.Int("stride")
	if err != nil {
		t.Fatalf("Int(stride): %v", err)
	}
	if stride != 2 {
		t.Errorf("stride = %d, want 2", stride)
	}
}

func TestParseManyDuplicates(t *testing.T) {
	var b strings.Builder
	const n = 7
	for i := 0; i < n; i++ {
		b.WriteString("[convolutional]\nfilters=")
		b.WriteByte(byte('1' + i))
		b.WriteString("\n")
	}

	sections, err := Parse(strings.NewReader(b.String()))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(sections) != n {
		t.Fatalf("got %d sections, want %d", len(sections), n)
	}
	for i, s := range sections {
		wantName := "convolutional_" + string(rune('0'+i))
		if s.Name != wantName {
			t.Errorf("section %d: Name = %q, want %q", i, s.Name, wantName)
		}
		filters, err := s.Int("filters")
		if err != nil {
			t.Fatalf("Int(filters): %v", err)
		}
		if filters != i+1 {
			t.Errorf("section %d: filters = %d, want %d", i, filters, i+1)
		}
	}
}

func TestParseRouteIndexList(t *testing.T) {
	sections, err := Parse(strings.NewReader(tinyConfig))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	route := sections[3]
	ids, err := route.Ints("layers")
	if err != nil {
		t.Fatalf("Ints(layers): %v", err)
	}
	if len(ids) != 2 || ids[0] != -1 || ids[1] != -3 {
		t.Errorf("layers = %v, want [-1 -3]", ids)
	}
}

func TestParseMalformedHeader(t *testing.T) {
	_, err := Parse(strings.NewReader("[net\nheight=416\n"))
	if err == nil {
		t.Fatal("expected error for unterminated section header")
	}
	if !strings.Contains(err.Error(), "line 1") {
		t.Errorf("error %q does not name the offending line", err)
	}
}

func TestParseKeyBeforeSection(t *testing.T) {
	_, err := Parse(strings.NewReader("height=416\n"))
	if err == nil {
		t.Fatal("expected error for key before section header")
	}
}

func TestParseLastKeyWins(t *testing.T) {
	sections, err := Parse(strings.NewReader("[net]\nheight=416\nheight=608\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	h, err := sections[0].Int("height")
	if err != nil {
		t.Fatalf("Int(height): %v", err)
	}
	if h != 608 {
		t.Errorf("height = %d, want 608", h)
	}
	if sections[0].Len() != 1 {
		t.Errorf("Len = %d, want 1", sections[0].Len())
	}
}

func TestParseDefaults(t *testing.T) {
	sections, err := Parse(strings.NewReader("[net]\nheight=416\n"))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	s := sections[0]

	if v, err := s.IntOr("channels", 3); err != nil || v != 3 {
		t.Errorf("IntOr(channels, 3) = %d, %v; want 3, nil", v, err)
	}
	if v, err := s.Float("decay", 5e-4); err != nil || v != 5e-4 {
		t.Errorf("Float(decay, 5e-4) = %v, %v; want 5e-4, nil", v, err)
	}
}
