package cityscore

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed definitions.yaml
var definitionsYAML []byte

// Definition is the static reference entry for one metric.
type Definition struct {
	MetricName        string `yaml:"name" json:"metric_name"`
	MetricPretty      string `yaml:"pretty" json:"metric_pretty"`
	MetricDescription string `yaml:"description" json:"metric_description"`
	// Trend metrics are scored against a historical baseline: a score above
	// 1 means fewer incidents, not over-target performance.
	Trend bool `yaml:"trend" json:"trend"`
}

// Definitions is an immutable lookup of metric definitions.
type Definitions struct {
	ordered []Definition
	byName  map[string]int
}

// ParseDefinitions reads a YAML document of the form
//
//	metrics:
//	  - name: ...
//	    pretty: ...
//	    description: ...
func ParseDefinitions(data []byte) (*Definitions, error) {
	var doc struct {
		Metrics []Definition `yaml:"metrics"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse metric definitions: %w", err)
	}

	d := &Definitions{byName: make(map[string]int, len(doc.Metrics))}
	for _, m := range doc.Metrics {
		if m.MetricName == "" {
			return nil, fmt.Errorf("metric definition without a name")
		}
		if _, dup := d.byName[m.MetricName]; dup {
			return nil, fmt.Errorf("duplicate metric definition %q", m.MetricName)
		}
		if m.MetricPretty == "" {
			m.MetricPretty = m.MetricName
		}
		d.byName[m.MetricName] = len(d.ordered)
		d.ordered = append(d.ordered, m)
	}
	return d, nil
}

// DefaultDefinitions returns the embedded CityScore definitions.
func DefaultDefinitions() *Definitions {
	d, err := ParseDefinitions(definitionsYAML)
	if err != nil {
		panic(err)
	}
	return d
}

// Lookup returns the definition for a metric code.
func (d *Definitions) Lookup(name string) (Definition, bool) {
	i, ok := d.byName[name]
	if !ok {
		return Definition{}, false
	}
	return d.ordered[i], true
}

// Pretty returns the display label for a metric code, or the code itself
// when no definition exists.
func (d *Definitions) Pretty(name string) string {
	if def, ok := d.Lookup(name); ok {
		return def.MetricPretty
	}
	return name
}

// ByPretty finds a definition by its display label.
func (d *Definitions) ByPretty(pretty string) (Definition, bool) {
	for _, def := range d.ordered {
		if def.MetricPretty == pretty {
			return def, true
		}
	}
	return Definition{}, false
}

// All returns the definitions in document order.
func (d *Definitions) All() []Definition {
	return append([]Definition(nil), d.ordered...)
}

// Names returns the metric codes sorted alphabetically.
func (d *Definitions) Names() []string {
	names := make([]string, 0, len(d.ordered))
	for _, def := range d.ordered {
		names = append(names, def.MetricName)
	}
	sort.Strings(names)
	return names
}

func (d *Definitions) Len() int { return len(d.ordered) }
