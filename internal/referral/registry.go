// Package referral maps referral attributions to paying parties and their fee
// fractions.
package referral

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"treasury/internal/infra"
)

// Party is a referring agent that can receive fees.
type Party struct {
	Name        string
	Address     string
	FeeFraction decimal.Decimal
	hasFee      bool
}

type registryFile struct {
	DefaultFeeFraction string `yaml:"default_fee_fraction"`
	Parties            []struct {
		Name        string `yaml:"name"`
		Address     string `yaml:"address"`
		FeeFraction string `yaml:"fee_fraction"`
	} `yaml:"parties"`
}

// Registry is the static set of known referring parties.
type Registry struct {
	parties    map[string]Party
	overrides  map[string]decimal.Decimal
	defaultFee decimal.Decimal
}

// Normalize strips the "refer-" command prefix and lower-cases the name.
func Normalize(raw string) string {
	name := strings.ToLower(strings.TrimSpace(raw))
	return strings.TrimPrefix(name, "refer-")
}

// NewRegistry builds a registry from config. Fee precedence per party is
// REFERRAL_FEES, then the registry file, then the default fee.
func NewRegistry(cfg infra.ReferralConfig) (*Registry, error) {
	r := &Registry{
		parties:    map[string]Party{},
		overrides:  map[string]decimal.Decimal{},
		defaultFee: cfg.FeeDefault,
	}
	for name, fee := range cfg.FeeByParty {
		r.overrides[Normalize(name)] = fee
	}
	if cfg.RegistryPath == "" {
		return r, nil
	}

	data, err := os.ReadFile(cfg.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("read referral registry: %w", err)
	}
	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse referral registry: %w", err)
	}
	if file.DefaultFeeFraction != "" {
		fee, err := parseFraction(file.DefaultFeeFraction)
		if err != nil {
			return nil, fmt.Errorf("default_fee_fraction: %w", err)
		}
		r.defaultFee = fee
	}
	for i, p := range file.Parties {
		name := Normalize(p.Name)
		if name == "" {
			return nil, fmt.Errorf("parties[%d]: name is required", i)
		}
		if _, dup := r.parties[name]; dup {
			return nil, fmt.Errorf("parties[%d]: duplicate party %q", i, name)
		}
		party := Party{Name: name, Address: strings.TrimSpace(p.Address)}
		if p.FeeFraction != "" {
			fee, err := parseFraction(p.FeeFraction)
			if err != nil {
				return nil, fmt.Errorf("parties[%d].fee_fraction: %w", i, err)
			}
			party.FeeFraction = fee
			party.hasFee = true
		}
		r.parties[name] = party
	}
	return r, nil
}

// Restricted reports whether attributions must name a registered party.
func (r *Registry) Restricted() bool {
	return len(r.parties) > 0
}

func (r *Registry) Known(name string) bool {
	_, ok := r.parties[Normalize(name)]
	return ok
}

// Lookup returns the party with its effective fee fraction. Unregistered
// names resolve to a party with no address.
func (r *Registry) Lookup(name string) (Party, bool) {
	name = Normalize(name)
	party, known := r.parties[name]
	if !known {
		party = Party{Name: name}
	}
	if fee, ok := r.overrides[name]; ok {
		party.FeeFraction = fee
	} else if !party.hasFee {
		party.FeeFraction = r.defaultFee
	}
	return party, known
}

func parseFraction(raw string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid fraction %q", raw)
	}
	if v.IsNegative() || v.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, fmt.Errorf("fraction %s outside [0,1]", v)
	}
	return v, nil
}
