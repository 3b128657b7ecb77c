package services

import (
	_ "embed"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"agri-yield-platform/internal/models"
)

//go:embed catalog/insights.yaml
var defaultCatalog []byte

// Catalog holds the narrative templates used by the insight composer.
type Catalog struct {
	Summary struct {
		TrendIncreased string `yaml:"trend_increased"`
		TrendDecreased string `yaml:"trend_decreased"`
		BestSoil       string `yaml:"best_soil"`
		RegionRange    string `yaml:"region_range"`
		TopFactors     string `yaml:"top_factors"`
		BestSeason     string `yaml:"best_season"`
		NoData         string `yaml:"no_data"`
	} `yaml:"summary"`

	Recommendations struct {
		TrendIncreasing string              `yaml:"trend_increasing"`
		TrendDecreasing string              `yaml:"trend_decreasing"`
		BestSoil        string              `yaml:"best_soil"`
		BestRegion      string              `yaml:"best_region"`
		BestSeason      string              `yaml:"best_season"`
		RegionFactor    map[string][]string `yaml:"region_factor"`
		CropFactor      map[string]string   `yaml:"crop_factor"`
	} `yaml:"recommendations"`

	Strategies map[string][]string `yaml:"strategies"`

	General struct {
		Factor     string   `yaml:"factor"`
		Impact     string   `yaml:"impact"`
		Strategies []string `yaml:"strategies"`
	} `yaml:"general"`
}

// DefaultCatalog parses the embedded catalog.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse insight catalog: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid insight catalog: %w", err)
	}
	return &c, nil
}

func (c *Catalog) validate() error {
	for _, f := range models.FeatureFields {
		name := f.FactorName()
		if len(c.Strategies[name]) == 0 {
			return fmt.Errorf("no strategies for factor %s", name)
		}
		if len(c.Recommendations.RegionFactor[name]) == 0 {
			return fmt.Errorf("no region recommendations for factor %s", name)
		}
		if c.Recommendations.CropFactor[name] == "" {
			return fmt.Errorf("no crop recommendation for factor %s", name)
		}
	}
	if len(c.General.Strategies) == 0 {
		return errors.New("general strategies are empty")
	}
	return nil
}

var placeholder = regexp.MustCompile(`\{[a-z_]+\}`)

// render substitutes {name} placeholders. ok is false when a placeholder has
// no value, in which case the line should be skipped.
func render(tmpl string, vars map[string]string) (string, bool) {
	pairs := make([]string, 0, 2*len(vars))
	for k, v := range vars {
		if v == "" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", v)
	}
	out := strings.NewReplacer(pairs...).Replace(tmpl)
	return out, !placeholder.MatchString(out)
}
