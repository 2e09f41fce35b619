package version

import (
	"embed"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed specs/*.yaml
var specFS embed.FS

// Catalogue lists the standard properties defined for a protocol version.
type Catalogue struct {
	Version     string                  `yaml:"version"`
	Description string                  `yaml:"description"`
	Properties  map[string]PropertySpec `yaml:"properties"`
}

// PropertySpec describes one standard property.
type PropertySpec struct {
	// Type is the vector kind: Text, Number, Switch, Light or BLOB.
	Type        string   `yaml:"type"`
	Perm        string   `yaml:"perm,omitempty"`
	Rule        string   `yaml:"rule,omitempty"`
	Description string   `yaml:"description"`
	Elements    []string `yaml:"elements"`
}

var (
	cacheMu sync.RWMutex
	cache   = make(map[string]*Catalogue)
)

// LoadCatalogue loads the standard property catalogue for a version (e.g. "1.7").
func LoadCatalogue(ver string) (*Catalogue, error) {
	cacheMu.RLock()
	if c, ok := cache[ver]; ok {
		cacheMu.RUnlock()
		return c, nil
	}
	cacheMu.RUnlock()

	data, err := specFS.ReadFile("specs/" + ver + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("catalogue version %q not found: %w", ver, err)
	}

	var c Catalogue
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalogue %q: %w", ver, err)
	}

	cacheMu.Lock()
	cache[ver] = &c
	cacheMu.Unlock()

	return &c, nil
}

// LoadCurrentCatalogue loads the catalogue for the current protocol version.
func LoadCurrentCatalogue() (*Catalogue, error) {
	return CatalogueFor(Current)
}

// CatalogueFor returns the newest embedded catalogue with the same major
// version as ver and not newer than it. A server speaking 1.8 is checked
// against the 1.7 catalogue until a newer one is embedded.
func CatalogueFor(ver string) (*Catalogue, error) {
	want, err := Parse(ver)
	if err != nil {
		return nil, err
	}
	versions, err := AvailableCatalogues()
	if err != nil {
		return nil, err
	}
	best := ""
	for _, v := range versions {
		pv, err := Parse(v)
		if err != nil || !pv.Compatible(want) || want.Less(pv) {
			continue
		}
		best = v // versions are in ascending order
	}
	if best == "" {
		return nil, fmt.Errorf("no catalogue compatible with protocol %s", want)
	}
	return LoadCatalogue(best)
}

// AvailableCatalogues returns the version strings of all embedded
// catalogues, oldest first.
func AvailableCatalogues() ([]string, error) {
	entries, err := specFS.ReadDir("specs")
	if err != nil {
		return nil, fmt.Errorf("reading specs directory: %w", err)
	}

	var versions []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".yaml") {
			versions = append(versions, strings.TrimSuffix(name, ".yaml"))
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		a, errA := Parse(versions[i])
		b, errB := Parse(versions[j])
		if errA != nil || errB != nil {
			return versions[i] < versions[j]
		}
		return a.Less(b)
	})
	return versions, nil
}

// Names returns the standard property names, sorted.
func (c *Catalogue) Names() []string {
	out := make([]string, 0, len(c.Properties))
	for name := range c.Properties {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the standard definition of a property.
func (c *Catalogue) Lookup(name string) (PropertySpec, bool) {
	p, ok := c.Properties[name]
	return p, ok
}

// DefinedProperty is a property as a device actually defined it.
type DefinedProperty struct {
	Name     string
	Type     string
	Perm     string
	Elements []string
}

// CheckResult holds the outcome of checking device properties against a
// catalogue.
type CheckResult struct {
	Standard int
	Custom   int
	Warnings []string
}

// CheckDevice compares a device's properties with the standard definitions.
// Properties not in the catalogue are counted as custom; standard properties
// with a different type, permission or element set produce warnings.
func CheckDevice(c *Catalogue, props []DefinedProperty) CheckResult {
	var result CheckResult

	for _, p := range props {
		spec, ok := c.Properties[p.Name]
		if !ok {
			result.Custom++
			continue
		}
		result.Standard++

		if !strings.EqualFold(spec.Type, p.Type) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("property %s is %s, standard type is %s", p.Name, p.Type, spec.Type))
		}
		if spec.Perm != "" && p.Perm != "" && spec.Perm != p.Perm {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("property %s has perm %s, standard perm is %s", p.Name, p.Perm, spec.Perm))
		}

		// Devices may add elements; missing standard ones are worth a note.
		have := makeStringSet(p.Elements)
		for _, e := range spec.Elements {
			if !have[e] {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("property %s missing standard element %s", p.Name, e))
			}
		}
	}

	return result
}

func makeStringSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
