// Package api holds the user-facing configuration of the etf tool.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is read from a YAML file and merged over Default().
type Config struct {
	// MetadataFile is the ETF metadata JSON used when -m is not given.
	MetadataFile string `yaml:"metadata_file"`
	// LogFormat selects the log handler: "text" or "json".
	LogFormat string `yaml:"log_format" validate:"omitempty,oneof=text json"`
	// Indent is the number of spaces per level in written JSON.
	Indent int `yaml:"indent" validate:"gte=0,lte=16"`
	// ASCII escapes non-ASCII characters in written JSON.
	ASCII *bool `yaml:"ascii"`
	// Sectors maps case-insensitive aliases to navigation node uids.
	Sectors map[string]string `yaml:"sectors" validate:"dive,keys,required,endkeys,required"`
	// StatPoints lists the subtrees reported by "etf data stats".
	StatPoints []StatPoint `yaml:"stat_points" validate:"dive"`
}

// StatPoint names a subtree of a country data file.
type StatPoint struct {
	Label string `yaml:"label" validate:"required"`
	// Path is a document path such as "country_specific_data.nodes".
	Path string `yaml:"path" validate:"required"`
}

// Default returns the built-in configuration.
func Default() *Config {
	ascii := true
	return &Config{
		LogFormat: "text",
		Indent:    4,
		ASCII:     &ascii,
		Sectors: map[string]string{
			"energy":      "3665c27e-d055-47d7-8393-5f934f3ced9d",
			"ippu":        "fed65b84-cdad-4e38-8848-ea6af3c391bc",
			"lulucf":      "db7b9be0-76bc-497e-a4ee-9334ec2429d2",
			"agriculture": "43bc1534-201c-416b-a348-e5866d69dddb",
			"waste":       "b1e41219-79a2-493d-ba97-de0e4d7f9d0f",
			"docbox":      "bd942384-e7cd-4280-bf40-a010a549f245",
			"other":       "b5cf62a9-7dff-4330-bbb1-619f1aeddfb4",
			"totals":      "711ab9da-13cd-44d8-b8f4-33a954171186",
		},
		StatPoints: []StatPoint{
			{Label: "Country specific dimension instances", Path: "country_specific_data.dimension_instances"},
			{Label: "Country specific nodes", Path: "country_specific_data.nodes"},
			{Label: "Country specific variables", Path: "country_specific_data.variables"},
			{Label: "Country specific grids", Path: "country_specific_data.grids"},
			{Label: "Country specific drop-downs", Path: "country_specific_data.drop_downs"},
			{Label: "Country specific line descriptions", Path: "country_specific_data.line_description"},
			{Label: "Country specific (meta)data", Path: "country_specific_data"},
			{Label: "Country data", Path: "data"},
		},
	}
}

// SectorUID resolves a sector alias, ignoring case.
func (c *Config) SectorUID(alias string) (string, bool) {
	uid, ok := c.Sectors[strings.ToLower(alias)]
	return uid, ok
}

// UseASCII reports whether written JSON escapes non-ASCII characters.
func (c *Config) UseASCII() bool {
	return c.ASCII == nil || *c.ASCII
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Parse merges YAML data over the defaults. Sector aliases are added to
// the built-in ones; stat points replace them when given.
func Parse(data []byte) (*Config, error) {
	var file Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg := Default()
	if file.MetadataFile != "" {
		cfg.MetadataFile = file.MetadataFile
	}
	if file.LogFormat != "" {
		cfg.LogFormat = file.LogFormat
	}
	if file.Indent != 0 {
		cfg.Indent = file.Indent
	}
	if file.ASCII != nil {
		cfg.ASCII = file.ASCII
	}
	for alias, uid := range file.Sectors {
		cfg.Sectors[strings.ToLower(alias)] = uid
	}
	if len(file.StatPoints) > 0 {
		cfg.StatPoints = file.StatPoints
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads a config file from fs. An empty path yields the defaults.
func Load(fs billy.Filesystem, path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := util.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}
