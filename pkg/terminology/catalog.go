package terminology

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/raredx/triage/pkg/common/models"
	"github.com/raredx/triage/pkg/phenotype"
	"golang.org/x/text/cases"
	"gopkg.in/yaml.v3"
)

// Catalog is a loaded set of phenotype terms indexed by code and by folded
// name/synonym.
type Catalog struct {
	terms  []models.PhenotypeTerm
	byCode map[string]int
	byName map[string]int
}

type catalogFile struct {
	Terms []models.PhenotypeTerm `yaml:"terms"`
}

func Load(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	content, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return DefaultCatalog(), err
	}
	var file catalogFile
	if err := yaml.Unmarshal(content, &file); err != nil {
		return nil, err
	}
	if len(file.Terms) == 0 {
		return nil, fmt.Errorf("phenotype catalog empty")
	}
	return NewCatalog(file.Terms), nil
}

// NewCatalog indexes terms. When two terms share a name or synonym the first
// one wins.
func NewCatalog(terms []models.PhenotypeTerm) *Catalog {
	c := &Catalog{
		terms:  make([]models.PhenotypeTerm, 0, len(terms)),
		byCode: make(map[string]int, len(terms)),
		byName: make(map[string]int, len(terms)),
	}
	for _, term := range terms {
		code := phenotype.Normalize(term.ID)
		if code == "" {
			continue
		}
		if _, dup := c.byCode[code]; dup {
			continue
		}
		term.ID = code
		idx := len(c.terms)
		c.terms = append(c.terms, term)
		c.byCode[code] = idx
		c.index(term.Name, idx)
		for _, syn := range term.Synonyms {
			c.index(syn, idx)
		}
	}
	return c
}

func (c *Catalog) index(name string, idx int) {
	key := c.fold(name)
	if key == "" {
		return
	}
	if _, exists := c.byName[key]; !exists {
		c.byName[key] = idx
	}
}

// fold builds a fresh Caser per call; Casers are not safe for concurrent use.
func (c *Catalog) fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// Resolve finds a term whose name or synonym equals name, ignoring case.
func (c *Catalog) Resolve(name string) (models.PhenotypeTerm, bool) {
	if c == nil {
		return models.PhenotypeTerm{}, false
	}
	idx, ok := c.byName[c.fold(name)]
	if !ok {
		return models.PhenotypeTerm{}, false
	}
	return c.terms[idx], true
}

// Lookup finds a term by code in any accepted spelling.
func (c *Catalog) Lookup(code string) (models.PhenotypeTerm, bool) {
	if c == nil {
		return models.PhenotypeTerm{}, false
	}
	idx, ok := c.byCode[phenotype.Normalize(code)]
	if !ok {
		return models.PhenotypeTerm{}, false
	}
	return c.terms[idx], true
}

// Describe returns the catalog term for code, or a bare term carrying only
// the canonical code when the catalog does not know it.
func (c *Catalog) Describe(code string) models.PhenotypeTerm {
	if term, ok := c.Lookup(code); ok {
		return term
	}
	norm := phenotype.Normalize(code)
	return models.PhenotypeTerm{ID: norm, Name: norm}
}

// Filter is the local substring filter over names and synonyms. An empty
// query returns the first limit terms.
func (c *Catalog) Filter(query string, limit int) []models.PhenotypeTerm {
	if c == nil {
		return nil
	}
	if limit <= 0 {
		limit = 50
	}
	q := c.fold(query)
	out := make([]models.PhenotypeTerm, 0, limit)
	for _, term := range c.terms {
		if len(out) == limit {
			break
		}
		if q == "" || c.matches(term, q) {
			out = append(out, term)
		}
	}
	return out
}

func (c *Catalog) matches(term models.PhenotypeTerm, q string) bool {
	if strings.Contains(c.fold(term.Name), q) || strings.Contains(term.ID, strings.ToUpper(q)) {
		return true
	}
	for _, syn := range term.Synonyms {
		if strings.Contains(c.fold(syn), q) {
			return true
		}
	}
	return false
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.terms)
}

func DefaultCatalog() *Catalog {
	return NewCatalog([]models.PhenotypeTerm{
		{
			ID:         "HP:0001250",
			Name:       "Seizure",
			Definition: "A seizure is an intermittent abnormality of nervous system physiology characterised by a transient occurrence of signs and/or symptoms due to abnormal excessive or synchronous neuronal activity in the brain.",
			Synonyms:   []string{"Seizures", "Epileptic seizure"},
		},
		{
			ID:       "HP:0001166",
			Name:     "Arachnodactyly",
			Synonyms: []string{"Long slender fingers", "Spider fingers"},
		},
		{
			ID:       "HP:0002650",
			Name:     "Scoliosis",
			Synonyms: []string{"Curved spine"},
		},
		{
			ID:       "HP:0001382",
			Name:     "Joint hypermobility",
			Synonyms: []string{"Hypermobile joints", "Joint laxity"},
		},
		{
			ID:       "HP:0012378",
			Name:     "Fatigue",
			Synonyms: []string{"Tiredness"},
		},
		{
			ID:       "HP:0003326",
			Name:     "Myalgia",
			Synonyms: []string{"Muscle pain"},
		},
		{
			ID:       "HP:0002829",
			Name:     "Arthralgia",
			Synonyms: []string{"Joint pain"},
		},
		{
			ID:       "HP:0000974",
			Name:     "Hyperextensible skin",
			Synonyms: []string{"Stretchy skin"},
		},
	})
}
