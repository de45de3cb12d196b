// Package prize holds the reward catalog and the weighted selector that draws
// from it.
package prize

import (
	_ "embed"
	"fmt"
	"math"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default_catalog.toml
var defaultCatalog string

// Kind classifies what a prize grants.
type Kind string

const (
	KindDiscount Kind = "discount"
	KindFreeItem Kind = "free_item"
	KindSpecial  Kind = "special"
)

func (k Kind) valid() bool {
	return k == KindDiscount || k == KindFreeItem || k == KindSpecial
}

// Prize is one catalog entry.
type Prize struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Kind   Kind    `json:"kind"`
	Value  float64 `json:"value,omitempty"`
	Weight int     `json:"weight"`
}

// Catalog is an immutable, ordered prize table. Order is the file order and
// fixes the cumulative boundaries used by Draw.
type Catalog struct {
	prizes []Prize
	bounds []int
	total  int
	byID   map[string]int
}

// entry mirrors one [[prize]] table. Exactly one of Weight or Probability
// should be set.
type entry struct {
	ID          string   `toml:"id"`
	Name        string   `toml:"name"`
	Kind        string   `toml:"kind"`
	Value       float64  `toml:"value"`
	Weight      *int     `toml:"weight"`
	Probability *float64 `toml:"probability"`
}

type file struct {
	Prize []entry `toml:"prize"`
}

// NewCatalog validates prizes and fixes their order.
func NewCatalog(prizes []Prize) (*Catalog, error) {
	if len(prizes) == 0 {
		return nil, ErrEmptyCatalog
	}
	c := &Catalog{
		prizes: make([]Prize, len(prizes)),
		bounds: make([]int, len(prizes)),
		byID:   make(map[string]int, len(prizes)),
	}
	for i, p := range prizes {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidPrize, i)
		case !p.Kind.valid():
			return nil, fmt.Errorf("%w: %s has kind %q", ErrInvalidPrize, p.ID, p.Kind)
		case p.Weight <= 0:
			return nil, fmt.Errorf("%w: %s has weight %d", ErrInvalidPrize, p.ID, p.Weight)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePrize, p.ID)
		}
		if p.Name == "" {
			p.Name = p.ID
		}
		c.total += p.Weight
		c.prizes[i] = p
		c.bounds[i] = c.total
		c.byID[p.ID] = i
	}
	return c, nil
}

// Parse reads a TOML catalog. Probabilities are scaled by 100 and rounded, so
// two decimal places of a percentage survive as exact integer weights.
func Parse(data string) (*Catalog, error) {
	var f file
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCatalog, err)
	}
	return fromEntries(f.Prize)
}

// LoadFile reads a TOML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParseCatalog, err)
	}
	return Parse(string(data))
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("prize: built-in catalog: %v", err))
	}
	return c
}

func fromEntries(entries []entry) (*Catalog, error) {
	var byWeight, byProbability int
	prizes := make([]Prize, 0, len(entries))
	for _, e := range entries {
		p := Prize{ID: e.ID, Name: e.Name, Kind: Kind(e.Kind), Value: e.Value}
		switch {
		case e.Weight != nil && e.Probability != nil:
			return nil, fmt.Errorf("%w: %s sets both", ErrMixedWeights, e.ID)
		case e.Weight != nil:
			byWeight++
			p.Weight = *e.Weight
		case e.Probability != nil:
			byProbability++
			p.Weight = int(math.Round(*e.Probability * 100))
		}
		prizes = append(prizes, p)
	}
	if byWeight > 0 && byProbability > 0 {
		return nil, ErrMixedWeights
	}
	return NewCatalog(prizes)
}

// Prizes returns a copy of the catalog in draw order.
func (c *Catalog) Prizes() []Prize {
	out := make([]Prize, len(c.prizes))
	copy(out, c.prizes)
	return out
}

// Get looks up a prize by id.
func (c *Catalog) Get(id string) (Prize, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Prize{}, false
	}
	return c.prizes[i], true
}

// TotalWeight is the draw denominator.
func (c *Catalog) TotalWeight() int { return c.total }

// Len returns the number of prizes.
func (c *Catalog) Len() int { return len(c.prizes) }
