// Package config loads the YAML run configuration: which file to read, how
// to clean it, which columns form the features and target, and which
// backends to train.
package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
	"roadsafety/internal/models"
	"roadsafety/internal/preprocessing"
)

// RolePrefix marks a column reference that is resolved through Roles.
const RolePrefix = "@"

type Config struct {
	Dataset DatasetConfig `yaml:"dataset"`
	// Roles maps logical names such as "latitude" to exact column names.
	Roles           map[string]string             `yaml:"roles"`
	Sanitize        preprocessing.Policy          `yaml:"sanitize"`
	Selection       preprocessing.Selection       `yaml:"selection"`
	Split           SplitConfig                   `yaml:"split"`
	Preprocess      preprocessing.TransformConfig `yaml:"preprocess"`
	Balance         BalanceConfig                 `yaml:"balance"`
	Task            models.Task                   `yaml:"task"`
	Models          []models.ModelConfig          `yaml:"models"`
	CrossValidation CVConfig                      `yaml:"cross_validation"`
	Importance      ImportanceConfig              `yaml:"importance"`
	Map             MapConfig                     `yaml:"map"`
	Output          OutputConfig                  `yaml:"output"`
}

type DatasetConfig struct {
	Path         string            `yaml:"path"`
	Format       string            `yaml:"format"`
	Delimiter    string            `yaml:"delimiter"`
	Encodings    []string          `yaml:"encodings"`
	DecimalComma bool              `yaml:"decimal_comma"`
	Sheet        string            `yaml:"sheet"`
	Types        map[string]string `yaml:"types"`
}

type SplitConfig struct {
	TestSize float64 `yaml:"test_size"`
	Seed     int64   `yaml:"seed"`
	Shuffle  bool    `yaml:"shuffle"`
	Stratify bool    `yaml:"stratify"`
}

type BalanceConfig struct {
	Enabled bool    `yaml:"enabled"`
	K       int     `yaml:"k"`
	Seed    int64   `yaml:"seed"`
	Ratio   float64 `yaml:"ratio"`
}

type CVConfig struct {
	Folds      int  `yaml:"folds"`
	Stratified bool `yaml:"stratified"`
}

type ImportanceConfig struct {
	// PermutationRepeats is used for backends without built-in importances.
	PermutationRepeats int   `yaml:"permutation_repeats"`
	Seed               int64 `yaml:"seed"`
}

type MapConfig struct {
	Latitude  string   `yaml:"latitude"`
	Longitude string   `yaml:"longitude"`
	Popup     []string `yaml:"popup"`
	Limit     int      `yaml:"limit"`
	Title     string   `yaml:"title"`
}

type OutputConfig struct {
	Dir    string `yaml:"dir"`
	CSV    bool   `yaml:"csv"`
	SQLite bool   `yaml:"sqlite"`
	Charts bool   `yaml:"charts"`
	Bundle bool   `yaml:"bundle"`
}

// Default returns the configuration every file is layered on.
func Default() *Config {
	return &Config{
		Dataset: DatasetConfig{
			Delimiter: ",",
			Encodings: append([]string(nil), data.DefaultEncodings...),
		},
		Roles: map[string]string{},
		Split: SplitConfig{
			TestSize: 0.2,
			Seed:     42,
			Shuffle:  true,
		},
		Preprocess: preprocessing.DefaultTransformConfig(),
		Balance: BalanceConfig{
			K:    preprocessing.DefaultNeighbors,
			Seed: 42,
		},
		Task: models.Classification,
		Importance: ImportanceConfig{
			PermutationRepeats: 5,
			Seed:               42,
		},
		Map: MapConfig{
			Latitude:  RolePrefix + "latitude",
			Longitude: RolePrefix + "longitude",
			Limit:     1000,
			Title:     "Road accidents",
		},
		Output: OutputConfig{
			Dir: "results",
			CSV: true,
		},
	}
}

// Load reads a YAML file over the defaults, resolves role references and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Roles == nil {
		cfg.Roles = map[string]string{}
	}
	if err := cfg.ResolveRoles(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve returns the column behind a reference: "@role" is looked up in
// Roles, anything else is already a column name.
func (c *Config) Resolve(ref string) (string, error) {
	role, ok := strings.CutPrefix(ref, RolePrefix)
	if !ok {
		return ref, nil
	}
	column, ok := c.Roles[role]
	if !ok || column == "" {
		return "", perrors.NewInvalidInputError("Config", fmt.Sprintf("role %q is not mapped to a column", role))
	}
	return column, nil
}

// ResolveRoles rewrites every role reference in the selection and map
// sections to its column name.
func (c *Config) ResolveRoles() error {
	resolve := func(refs ...*string) error {
		for _, ref := range refs {
			column, err := c.Resolve(*ref)
			if err != nil {
				return err
			}
			*ref = column
		}
		return nil
	}

	for i := range c.Selection.Features {
		if err := resolve(&c.Selection.Features[i]); err != nil {
			return err
		}
	}
	for i := range c.Selection.Filters {
		if err := resolve(&c.Selection.Filters[i].Column); err != nil {
			return err
		}
	}
	if err := resolve(&c.Selection.Target); err != nil {
		return err
	}
	for i := range c.Map.Popup {
		if err := resolve(&c.Map.Popup[i]); err != nil {
			return err
		}
	}

	// The map section is optional; unmapped coordinates only matter when a
	// map is drawn.
	for _, ref := range []*string{&c.Map.Latitude, &c.Map.Longitude} {
		if column, err := c.Resolve(*ref); err == nil {
			*ref = column
		}
	}
	return nil
}

// Columns lists every raw column the run reads, so that they can be
// checked right after loading.
func (c *Config) Columns() []string {
	var cols []string
	for _, rule := range c.Sanitize.Fill {
		cols = append(cols, rule.Column)
	}
	for _, rule := range c.Sanitize.OneHot {
		cols = append(cols, rule.Column)
	}
	for _, role := range sortedKeys(c.Roles) {
		cols = append(cols, c.Roles[role])
	}
	slices.Sort(cols)
	return slices.Compact(cols)
}

func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return perrors.NewInvalidInputError("Config", fmt.Sprintf(format, args...))
	}

	if c.Dataset.Path == "" {
		return invalid("dataset.path is required")
	}
	if _, err := c.LoadOptions(); err != nil {
		return err
	}
	if len(c.Selection.Features) == 0 {
		return invalid("selection.features must not be empty")
	}
	if c.Selection.Target == "" {
		return invalid("selection.target is required")
	}
	if slices.Contains(c.Selection.Features, c.Selection.Target) {
		return invalid("target %q is also listed as a feature", c.Selection.Target)
	}

	task, err := models.ParseTask(string(c.Task))
	if err != nil {
		return invalid("%v", err)
	}
	c.Task = task

	if c.Split.TestSize <= 0 || c.Split.TestSize >= 1 {
		return invalid("split.test_size must be between 0 and 1, got %v", c.Split.TestSize)
	}
	if c.Balance.K < 0 || c.Balance.Ratio < 0 {
		return invalid("balance.k and balance.ratio must not be negative")
	}
	if c.Balance.Enabled && task == models.Regression {
		return invalid("balance is only defined for classification")
	}
	for _, d := range c.Sanitize.Derive {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	if len(c.Models) == 0 {
		return invalid("at least one model is required")
	}
	labels := map[string]bool{}
	for i := range c.Models {
		m := &c.Models[i]
		if !slices.Contains(models.Algorithms, m.Algorithm) {
			return invalid("models[%d]: unknown algorithm %q", i, m.Algorithm)
		}
		if m.Task == "" {
			m.Task = task
		}
		if m.Task != task {
			return invalid("models[%d]: task %s does not match run task %s", i, m.Task, task)
		}
		if labels[m.Label()] {
			return invalid("models[%d]: duplicate model name %q", i, m.Label())
		}
		labels[m.Label()] = true
	}

	if c.CrossValidation.Folds == 1 || c.CrossValidation.Folds < 0 {
		return invalid("cross_validation.folds must be 0 (off) or at least 2")
	}
	return nil
}

// LoadOptions converts the dataset section for data.Load.
func (c *Config) LoadOptions() (data.LoadOptions, error) {
	opts := data.DefaultLoadOptions()
	opts.Format = data.Format(strings.ToLower(c.Dataset.Format))
	switch opts.Format {
	case data.FormatAuto, data.FormatCSV, data.FormatXLSX, data.FormatParquet:
	default:
		return opts, perrors.NewInvalidInputError("Config", fmt.Sprintf("unknown dataset format %q", c.Dataset.Format))
	}

	if c.Dataset.Delimiter != "" {
		delim := c.Dataset.Delimiter
		if delim == `\t` {
			delim = "\t"
		}
		r, size := utf8.DecodeRuneInString(delim)
		if size != len(delim) {
			return opts, perrors.NewInvalidInputError("Config", fmt.Sprintf("delimiter must be a single character, got %q", c.Dataset.Delimiter))
		}
		opts.Delimiter = r
	}
	if len(c.Dataset.Encodings) > 0 {
		opts.Encodings = c.Dataset.Encodings
	}
	opts.DecimalComma = c.Dataset.DecimalComma
	opts.Sheet = c.Dataset.Sheet

	if len(c.Dataset.Types) > 0 {
		opts.Types = make(map[string]data.Kind, len(c.Dataset.Types))
		for col, name := range c.Dataset.Types {
			kind, err := data.ParseKind(name)
			if err != nil {
				return opts, perrors.NewValidationError("Config", col, err.Error())
			}
			opts.Types[col] = kind
		}
	}
	return opts, nil
}

// Model returns the configuration of the named model, or the first one
// when name is empty.
func (c *Config) Model(name string) (models.ModelConfig, error) {
	if name == "" {
		return c.Models[0], nil
	}
	for _, m := range c.Models {
		if m.Label() == name {
			return m, nil
		}
	}
	return models.ModelConfig{}, fmt.Errorf("model %q is not configured", name)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
