package consent

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/crypto"
	"github.com/Mahaboob26/NEXUS-TRUSAI/internal/features"
)

// Group is one consent unit: a named bundle of feature names.
type Group struct {
	Name     string   `yaml:"name"`
	Features []string `yaml:"features"`
}

// Catalog maps feature names to the group that governs them. A feature listed
// by more than one group belongs to the first group that lists it.
type Catalog struct {
	groups    []Group
	featureOf map[string]string
	hash      string
}

var defaultGroups = []Group{
	{Name: "Financial Data", Features: []string{
		features.ApplicantIncome, features.CoapplicantIncome, features.LoanAmount, features.LoanAmountTerm,
		features.TotalIncome, features.EMI, features.IncomeToEMIRatio, features.CreditUtilization,
	}},
	{Name: "Credit History Data", Features: []string{
		features.CreditHistory, features.CibilProxyScore,
	}},
	{Name: "Demographic Data", Features: []string{
		features.Gender, features.Married, features.Dependents, features.Education,
		features.SelfEmployed, features.PropertyArea,
	}},
	{Name: "Behaviour / Digital Data", Features: []string{
		features.MobileUsageScore, features.TransactionStabilityScore, features.StabilityScore,
		features.DigitalFootprint, features.TransactionScoreAlt,
	}},
	{Name: "Banking Behaviour Data", Features: []string{
		features.AvgBalance, features.TransactionScore, features.BankBalance,
	}},
}

// DefaultCatalog returns the built-in feature groups.
func DefaultCatalog() *Catalog {
	catalog, err := NewCatalog(defaultGroups)
	if err != nil {
		panic(err)
	}
	return catalog
}

func NewCatalog(groups []Group) (*Catalog, error) {
	if len(groups) == 0 {
		return nil, errors.New("catalog has no groups")
	}
	c := &Catalog{featureOf: make(map[string]string)}
	seen := make(map[string]bool, len(groups))
	for _, g := range groups {
		if g.Name == "" {
			return nil, errors.New("catalog group name is required")
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("duplicate catalog group %q", g.Name)
		}
		seen[g.Name] = true
		c.groups = append(c.groups, Group{Name: g.Name, Features: append([]string(nil), g.Features...)})
		for _, f := range g.Features {
			if _, taken := c.featureOf[f]; !taken {
				c.featureOf[f] = g.Name
			}
		}
	}
	return c, nil
}

type catalogFile struct {
	Groups []Group `yaml:"groups"`
}

// LoadCatalog reads a YAML group catalog and records the hash of its bytes.
func LoadCatalog(path string) (*Catalog, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	c, err := NewCatalog(file.Groups)
	if err != nil {
		return nil, err
	}
	c.hash = crypto.DigestWithPrefix(data)
	return c, nil
}

// GroupOf returns the group governing feature, if any.
func (c *Catalog) GroupOf(feature string) (string, bool) {
	g, ok := c.featureOf[feature]
	return g, ok
}

// Names returns group names in registration order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.Name
	}
	return out
}

func (c *Catalog) Has(group string) bool {
	for _, g := range c.groups {
		if g.Name == group {
			return true
		}
	}
	return false
}

// Groups returns each group with the features it actually governs, sorted.
func (c *Catalog) Groups() map[string][]string {
	out := make(map[string][]string, len(c.groups))
	for _, g := range c.groups {
		out[g.Name] = []string{}
	}
	for f, g := range c.featureOf {
		out[g] = append(out[g], f)
	}
	for g := range out {
		sort.Strings(out[g])
	}
	return out
}

// Hash is the digest of the catalog file, empty for the built-in catalog.
func (c *Catalog) Hash() string { return c.hash }
