package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
	"roadsafety/internal/models"
	"roadsafety/internal/preprocessing"
)

const sntConfig = `
dataset:
  path: data/municipios.xlsx
  types:
    codigo_ibge: categorical
roles:
  target: Integrado ao SNT
  population: populacao
sanitize:
  fill:
    - column: km_rodovias_federais
      strategy: constant
      value: "0"
    - column: area_km2
      strategy: median
  one_hot:
    - column: UF
  derive:
    - name: log_populacao
      kind: log1p
      source: populacao
selection:
  features: [km_rodovias_federais, area_km2, "@population", UF_SP]
  target: "@target"
  remap: {"Sim": 1, "Não": 0}
  filters:
    - column: "@population"
      op: ">"
      value: "20000"
balance:
  enabled: true
models:
  - name: rf
    algorithm: forest
    n_trees: 500
  - algorithm: logistic
    max_iter: 1000
  - algorithm: bayes
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sntConfig))
	require.NoError(t, err)

	assert.Equal(t, []string{"km_rodovias_federais", "area_km2", "populacao", "UF_SP"}, cfg.Selection.Features)
	assert.Equal(t, "Integrado ao SNT", cfg.Selection.Target)
	assert.Equal(t, "populacao", cfg.Selection.Filters[0].Column)
	assert.Equal(t, map[string]float64{"Sim": 1, "Não": 0}, cfg.Selection.Remap)
	assert.Equal(t, preprocessing.FillConstant, cfg.Sanitize.Fill[0].Strategy)

	// Defaults survive where the file is silent.
	assert.Equal(t, 0.2, cfg.Split.TestSize)
	assert.Equal(t, int64(42), cfg.Split.Seed)
	assert.True(t, cfg.Split.Shuffle)
	assert.Equal(t, preprocessing.DefaultNeighbors, cfg.Balance.K)
	assert.Equal(t, "median", cfg.Preprocess.Impute)
	assert.Equal(t, models.Classification, cfg.Task)

	require.Len(t, cfg.Models, 3)
	assert.Equal(t, "rf", cfg.Models[0].Label())
	assert.Equal(t, 500, cfg.Models[0].NTrees)
	assert.Equal(t, "logistic", cfg.Models[1].Label())
	for _, m := range cfg.Models {
		assert.Equal(t, models.Classification, m.Task)
	}

	opts, err := cfg.LoadOptions()
	require.NoError(t, err)
	assert.Equal(t, ',', opts.Delimiter)
	assert.Equal(t, data.DefaultEncodings, opts.Encodings)
	assert.Equal(t, data.Categorical, opts.Types["codigo_ibge"])

	assert.Equal(t, []string{"Integrado ao SNT", "UF", "area_km2", "km_rodovias_federais", "populacao"}, cfg.Columns())

	m, err := cfg.Model("logistic")
	require.NoError(t, err)
	assert.Equal(t, 1000, m.MaxIter)
	_, err = cfg.Model("xgb")
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sntConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "data/municipios.xlsx", cfg.Dataset.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseErrors(t *testing.T) {
	doc := func(dataset, selection, models, extra string) []byte {
		if dataset == "" {
			dataset = "{path: x.csv}"
		}
		if selection == "" {
			selection = "{features: [a], target: y}"
		}
		if models == "" {
			models = "[{algorithm: tree}]"
		}
		return []byte("dataset: " + dataset + "\nselection: " + selection + "\nmodels: " + models + "\n" + extra)
	}

	tests := []struct {
		name string
		raw  []byte
	}{
		{"unknown role", doc("", "{features: ['@missing'], target: y}", "", "")},
		{"no features", doc("", "{features: [], target: y}", "", "")},
		{"target is feature", doc("", "{features: [a, y], target: y}", "", "")},
		{"no path", doc("{delimiter: ';'}", "", "", "")},
		{"bad test size", doc("", "", "", "split: {test_size: 1.5}\n")},
		{"unknown algorithm", doc("", "", "[{algorithm: svm}]", "")},
		{"no models", doc("", "", "[]", "")},
		{"duplicate model", doc("", "", "[{algorithm: tree}, {algorithm: tree}]", "")},
		{"model task mismatch", doc("", "", "[{algorithm: tree, task: regression}]", "")},
		{"unknown task", doc("", "", "", "task: ranking\n")},
		{"balance regression", doc("", "", "", "task: regression\nbalance: {enabled: true}\n")},
		{"bad delimiter", doc("{path: x.csv, delimiter: ';;'}", "", "", "")},
		{"bad type", doc("{path: x.csv, types: {a: matrix}}", "", "", "")},
		{"bad format", doc("{path: x.csv, format: json}", "", "", "")},
		{"one fold", doc("", "", "", "cross_validation: {folds: 1}\n")},
		{"bad derivation", doc("", "", "", "sanitize: {derive: [{name: a, kind: log1p, source: a}]}\n")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.raw)
			assert.ErrorIs(t, err, perrors.ErrInvalidInput)
		})
	}

	_, err := Parse(doc("", "", "", "split: [not, a, map]\n"))
	assert.ErrorContains(t, err, "parsing config")

	cfg, err := Parse(doc("", "", "", ""))
	require.NoError(t, err)
	assert.Equal(t, "tree", cfg.Models[0].Label())
}

func TestParseRegression(t *testing.T) {
	cfg, err := Parse([]byte(`
dataset: {path: sinistros.csv, delimiter: ";", decimal_comma: true}
task: regression
selection: {features: [a, b], target: log_sinistros}
models: [{algorithm: linear}, {algorithm: forest, n_trees: 200}]
`))
	require.NoError(t, err)
	assert.Equal(t, models.Regression, cfg.Models[1].Task)

	opts, err := cfg.LoadOptions()
	require.NoError(t, err)
	assert.Equal(t, ';', opts.Delimiter)
	assert.True(t, opts.DecimalComma)
}

func TestExampleConfigs(t *testing.T) {
	paths, err := filepath.Glob("../../configs/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			cfg, err := Load(path)
			require.NoError(t, err)
			for _, f := range cfg.Selection.Features {
				assert.NotContains(t, f, RolePrefix)
			}
		})
	}

	prf, err := Load("../../configs/prf.yaml")
	require.NoError(t, err)
	assert.Equal(t, "latitude", prf.Map.Latitude)
	assert.Len(t, prf.Map.Popup, 6)
}
