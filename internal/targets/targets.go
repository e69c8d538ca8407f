// Package targets loads target lists from name -> "host[:port]" mappings.
package targets

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/user/pingcheck/internal/model"
)

var (
	ErrEmptyName    = errors.New("target name is empty")
	ErrEmptyHost    = errors.New("target host is empty")
	ErrInvalidPort  = errors.New("target port must be a number in 1..65535")
	ErrNotMapping   = errors.New("target list must be a mapping of name to \"host[:port]\"")
	ErrInvalidValue = errors.New("target value must be a string")
)

// Pair is one raw entry of a target mapping, in file order.
type Pair struct {
	Name  string
	Value string
}

// ParseValue parses "host" or "host:port". The value is split on the first ':'.
func ParseValue(name, value string) (model.Target, error) {
	if strings.TrimSpace(name) == "" {
		return model.Target{}, errors.Wrapf(ErrEmptyName, "value %q", value)
	}

	hostPart, portPart, hasPort := strings.Cut(value, ":")
	host := strings.TrimSpace(hostPart)
	if host == "" {
		return model.Target{}, errors.Wrapf(ErrEmptyHost, "target %q", name)
	}

	t := model.Target{Name: name, Host: host}
	if !hasPort {
		return t, nil
	}

	p, err := strconv.ParseUint(strings.TrimSpace(portPart), 10, 16)
	if err != nil || p == 0 {
		return model.Target{}, errors.Wrapf(ErrInvalidPort, "target %q has port %q", name, portPart)
	}
	t.Port = model.NewPort(uint16(p))
	return t, nil
}

// Format is the inverse of ParseValue.
func Format(t model.Target) string {
	return t.Address()
}

// FromPairs converts raw entries into an ordered target list. The first
// invalid entry aborts the load.
func FromPairs(pairs []Pair) ([]model.Target, error) {
	list := make([]model.Target, 0, len(pairs))
	for _, p := range pairs {
		t, err := ParseValue(p.Name, p.Value)
		if err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, nil
}

// Parse reads a JSON or YAML mapping document, keeping key order.
func Parse(data []byte) ([]model.Target, error) {
	pairs, err := parsePairs(data)
	if err != nil {
		return nil, err
	}
	return FromPairs(pairs)
}

// LoadFile reads and parses a target file.
func LoadFile(path string) ([]model.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read target file %s", path)
	}
	list, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "could not load target file %s", path)
	}
	return list, nil
}

// parsePairs walks the yaml node tree directly, since decoding into a map
// would lose the mapping order. JSON documents are valid YAML.
func parsePairs(data []byte) ([]Pair, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "could not parse target list")
	}

	// Empty document
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return nil, nil
	}

	root := &doc
	if root.Kind == yaml.DocumentNode {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}

	pairs := make([]Pair, 0, len(root.Content)/2)
	for i := 0; i+1 < len(root.Content); i += 2 {
		key, val := root.Content[i], root.Content[i+1]
		if key.Kind != yaml.ScalarNode {
			return nil, errors.Wrapf(ErrNotMapping, "line %d", key.Line)
		}
		if val.Kind != yaml.ScalarNode {
			return nil, errors.Wrapf(ErrInvalidValue, "target %q (line %d)", key.Value, val.Line)
		}
		pairs = append(pairs, Pair{Name: key.Value, Value: val.Value})
	}
	return pairs, nil
}
