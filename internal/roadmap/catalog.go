package roadmap

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// Subject groups catalog nodes.
type Subject string

const (
	SubjectMath    Subject = "math"
	SubjectCS      Subject = "cs"
	SubjectMarkets Subject = "markets"
	SubjectProject Subject = "project"
	SubjectCareer  Subject = "career"
)

// Tier is the depth of a node. It sets the default effort weight and the
// phase a node fits best.
type Tier string

const (
	TierFoundation Tier = "foundation"
	TierCore       Tier = "core"
	TierAdvanced   Tier = "advanced"
	TierProject    Tier = "project"
	TierCareer     Tier = "career"
)

// CatalogNode is one fixed curriculum entry.
type CatalogNode struct {
	Title         string   `yaml:"title" json:"title"`
	Subject       Subject  `yaml:"subject" json:"subject"`
	Tier          Tier     `yaml:"tier" json:"tier"`
	Skill         string   `yaml:"skill" json:"skill,omitempty"`
	Prerequisites []string `yaml:"prerequisites" json:"prerequisites,omitempty"`
	Goals         []Goal   `yaml:"goals" json:"goals,omitempty"`
	// Phase1Forbidden marks advanced material that may only start in phase 2.
	Phase1Forbidden bool `yaml:"phase1_forbidden" json:"phase1_forbidden,omitempty"`
}

func (n CatalogNode) alignedWith(g Goal) bool {
	for _, x := range n.Goals {
		if x == g {
			return true
		}
	}
	return false
}

// Catalog is an ordered, immutable node list. Catalog order is the final
// tie-break during generation.
type Catalog struct {
	Version string
	nodes   []CatalogNode
	index   map[string]int
}

var (
	errEmptyCatalog = errors.New("catalog has no nodes")
	errBadNode      = errors.New("invalid catalog node")
)

// LoadCatalog parses and checks a YAML catalog.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var doc struct {
		Version string        `yaml:"version"`
		Nodes   []CatalogNode `yaml:"nodes"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return NewCatalog(doc.Version, doc.Nodes)
}

// NewCatalog builds a catalog from nodes. Titles must be unique and every
// prerequisite must name a node in the catalog.
func NewCatalog(version string, nodes []CatalogNode) (*Catalog, error) {
	if len(nodes) == 0 {
		return nil, errEmptyCatalog
	}
	c := &Catalog{
		Version: version,
		nodes:   make([]CatalogNode, len(nodes)),
		index:   make(map[string]int, len(nodes)),
	}
	copy(c.nodes, nodes)
	for i, n := range c.nodes {
		if n.Title == "" {
			return nil, fmt.Errorf("%w: node %d has no title", errBadNode, i)
		}
		if _, dup := c.index[n.Title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q", errBadNode, n.Title)
		}
		if _, ok := tierWeight[n.Tier]; !ok {
			return nil, fmt.Errorf("%w: %q has unknown tier %q", errBadNode, n.Title, n.Tier)
		}
		if _, ok := subjectChallenge[n.Subject]; !ok {
			return nil, fmt.Errorf("%w: %q has unknown subject %q", errBadNode, n.Title, n.Subject)
		}
		c.index[n.Title] = i
	}
	for _, n := range c.nodes {
		for _, p := range n.Prerequisites {
			if _, ok := c.index[p]; !ok {
				return nil, fmt.Errorf("%w: %q requires unknown %q", errBadNode, n.Title, p)
			}
		}
	}
	return c, nil
}

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalogYAML))
})

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := defaultCatalog()
	if err != nil {
		panic(fmt.Sprintf("built-in roadmap catalog: %v", err))
	}
	return c
}

// Node looks up a node by exact title.
func (c *Catalog) Node(title string) (CatalogNode, bool) {
	i, ok := c.index[title]
	if !ok {
		return CatalogNode{}, false
	}
	return c.nodes[i], true
}

// Nodes returns the nodes in catalog order.
func (c *Catalog) Nodes() []CatalogNode {
	out := make([]CatalogNode, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Len returns the number of nodes.
func (c *Catalog) Len() int { return len(c.nodes) }

func (c *Catalog) position(title string) int {
	if i, ok := c.index[title]; ok {
		return i
	}
	return len(c.nodes)
}
