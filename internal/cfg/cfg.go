// Package cfg parses Darknet .cfg network definitions.
//
// The format is INI-like: bracketed section headers followed by
// key = value lines. Unlike INI, section names repeat freely (a network
// has many [convolutional] blocks), so every section is given a unique
// name by appending a zero-based occurrence counter to its base name:
// the first two [convolutional] sections become convolutional_0 and
// convolutional_1. Order is preserved; later sections reference earlier
// ones by position, never by name.
package cfg

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Section is one parsed config section.
type Section struct {
	Name  string // Unique name, base + "_" + occurrence index.
	Base  string // Section name as written in the file.
	Index int    // Zero-based occurrence counter for this base name.

	keys   []string // Key order as encountered.
	values map[string]string
}

// Has reports whether the section declares the given key.
func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Len returns the number of keys declared in the section.
func (s *Section) Len() int {
	return len(s.keys)
}

// Keys returns the section's keys in declaration order.
func (s *Section) Keys() []string {
	out := make([]string, len(s.keys))
	copy(out, s.keys)
	return out
}

// Str returns the value for key, or def if the key is absent.
func (s *Section) Str(key, def string) string {
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Int returns the integer value for key.
func (s *Section) Int(key string) (int, error) {
	v, ok := s.values[key]
	if !ok {
		return 0, fmt.Errorf("section %s: missing key %q", s.Name, key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("section %s: key %q: %w", s.Name, key, err)
	}
	return n, nil
}

// IntOr returns the integer value for key, or def if the key is absent.
func (s *Section) IntOr(key string, def int) (int, error) {
	if !s.Has(key) {
		return def, nil
	}
	return s.Int(key)
}

// Float returns the float value for key, or def if the key is absent.
func (s *Section) Float(key string, def float64) (float64, error) {
	v, ok := s.values[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("section %s: key %q: %w", s.Name, key, err)
	}
	return f, nil
}

// Ints returns the comma-separated integer list for key.
// Route sections use this for their layer index lists.
func (s *Section) Ints(key string) ([]int, error) {
	v, ok := s.values[key]
	if !ok {
		return nil, fmt.Errorf("section %s: missing key %q", s.Name, key)
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("section %s: key %q: %w", s.Name, key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseFile parses a Darknet config from disk.
//
//nolint:gosec // G304: path comes from trusted caller, not user input.
func ParseFile(path string) ([]Section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer func() {
		_ = f.Close() // Ignore close error on read-only file.
	}()
	return Parse(f)
}

// Parse parses a Darknet config from a reader, uniquifying section names.
func Parse(r io.Reader) ([]Section, error) {
	var sections []Section
	counters := make(map[string]int)
	var cur *Section

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Blank lines and comments are ignored.
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}

		if strings.HasPrefix(line, "[") {
			if !strings.HasSuffix(line, "]") {
				return nil, fmt.Errorf("line %d: malformed section header %q", lineNo, line)
			}
			base := strings.TrimSpace(line[1 : len(line)-1])
			if base == "" {
				return nil, fmt.Errorf("line %d: empty section header", lineNo)
			}
			idx := counters[base]
			counters[base]++
			sections = append(sections, Section{
				Name:   fmt.Sprintf("%s_%d", base, idx),
				Base:   base,
				Index:  idx,
				values: make(map[string]string),
			})
			cur = &sections[len(sections)-1]
			continue
		}

		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, fmt.Errorf("line %d: expected key=value, got %q", lineNo, line)
		}
		if cur == nil {
			return nil, fmt.Errorf("line %d: key=value before any section header", lineNo)
		}
		key := strings.TrimSpace(line[:eq])
		value := strings.TrimSpace(line[eq+1:])
		if key == "" {
			return nil, fmt.Errorf("line %d: empty key", lineNo)
		}
		if _, dup := cur.values[key]; !dup {
			cur.keys = append(cur.keys, key)
		}
		// Re-declared keys within a section: last one wins.
		cur.values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	return sections, nil
}
