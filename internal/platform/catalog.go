package platform

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/connorpauley-png/content-command-sub001/internal/models"
)

const (
	X          = "x"
	Facebook   = "facebook"
	Instagram  = "instagram"
	IGPersonal = "ig_personal"
	LinkedIn   = "linkedin"
	GMB        = "gmb"
	Nextdoor   = "nextdoor"
)

// Spec describes the structural constraints of one publishing target.
type Spec struct {
	Key           string             `yaml:"key" json:"key"`
	Name          string             `yaml:"name" json:"name"`
	CharLimit     int                `yaml:"char_limit" json:"char_limit"`
	SoftTruncate  bool               `yaml:"soft_truncate" json:"soft_truncate"`
	RequiresMedia bool               `yaml:"requires_media" json:"requires_media"`
	Available     bool               `yaml:"available" json:"available"`
	PhotoSource   models.PhotoSource `yaml:"photo_source" json:"photo_source"`
}

type Catalog map[string]Spec

func DefaultCatalog() Catalog {
	return Catalog{
		X:          {Key: X, Name: "X/Twitter", CharLimit: 280, SoftTruncate: true, Available: true, PhotoSource: models.PhotoSourceGenerated},
		Facebook:   {Key: Facebook, Name: "Facebook", CharLimit: 63206, Available: true, PhotoSource: models.PhotoSourceLibrary},
		Instagram:  {Key: Instagram, Name: "Instagram (Business)", CharLimit: 2200, RequiresMedia: true, Available: true, PhotoSource: models.PhotoSourceLibrary},
		IGPersonal: {Key: IGPersonal, Name: "Instagram (Personal)", CharLimit: 2200, RequiresMedia: true, Available: true, PhotoSource: models.PhotoSourceGenerated},
		LinkedIn:   {Key: LinkedIn, Name: "LinkedIn", CharLimit: 3000, Available: true, PhotoSource: models.PhotoSourceGenerated},
		GMB:        {Key: GMB, Name: "Google Business", CharLimit: 1500, PhotoSource: models.PhotoSourceLibrary},
		Nextdoor:   {Key: Nextdoor, Name: "Nextdoor", CharLimit: 10000, PhotoSource: models.PhotoSourceLibrary},
	}
}

type catalogOverride struct {
	Key           string              `yaml:"key"`
	Name          *string             `yaml:"name"`
	CharLimit     *int                `yaml:"char_limit"`
	SoftTruncate  *bool               `yaml:"soft_truncate"`
	RequiresMedia *bool               `yaml:"requires_media"`
	Available     *bool               `yaml:"available"`
	PhotoSource   *models.PhotoSource `yaml:"photo_source"`
}

type catalogFile struct {
	Platforms []catalogOverride `yaml:"platforms"`
}

// LoadCatalog returns the default catalog with the overrides from path applied. An empty path
// yields the defaults.
func LoadCatalog(path string) (Catalog, error) {
	catalog := DefaultCatalog()
	if path == "" {
		return catalog, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read platform catalog: %w", err)
	}
	if err := catalog.Merge(data); err != nil {
		return nil, err
	}
	return catalog, nil
}

// Merge applies YAML overrides. Unknown keys add new platforms.
func (c Catalog) Merge(data []byte) error {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse platform catalog: %w", err)
	}
	for _, o := range file.Platforms {
		if o.Key == "" {
			return fmt.Errorf("platform catalog entry without key")
		}
		spec, ok := c[o.Key]
		if !ok {
			spec = Spec{Key: o.Key, Name: o.Key}
		}
		if o.Name != nil {
			spec.Name = *o.Name
		}
		if o.CharLimit != nil {
			spec.CharLimit = *o.CharLimit
		}
		if o.SoftTruncate != nil {
			spec.SoftTruncate = *o.SoftTruncate
		}
		if o.RequiresMedia != nil {
			spec.RequiresMedia = *o.RequiresMedia
		}
		if o.Available != nil {
			spec.Available = *o.Available
		}
		if o.PhotoSource != nil {
			spec.PhotoSource = *o.PhotoSource
		}
		c[o.Key] = spec
	}
	return nil
}

func (c Catalog) Lookup(key string) (Spec, bool) {
	spec, ok := c[key]
	return spec, ok
}

func (c Catalog) DisplayName(key string) string {
	if spec, ok := c[key]; ok && spec.Name != "" {
		return spec.Name
	}
	return key
}

func (c Catalog) RequiresMedia(key string) bool {
	return c[key].RequiresMedia
}

func (c Catalog) PhotoSourceFor(key string) models.PhotoSource {
	return c[key].PhotoSource
}

func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
