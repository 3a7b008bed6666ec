package preprocessing_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roadsafety/internal/data"
	perrors "roadsafety/internal/errors"
	"roadsafety/internal/preprocessing"
)

var nan = math.NaN()

func municipios(t *testing.T) *data.Table {
	t.Helper()
	tbl, err := data.NewTable(
		data.NewStringColumn("Município", []string{"Campinas", "Niterói", "Santos", "Volta Redonda"}),
		data.NewFloatColumn("km_rodovias_federais", []float64{nan, 5.0, nan, 12.0}),
		data.NewFloatColumn("area_km2", []float64{100, nan, 300, 200}),
		data.NewStringColumn("UF", []string{"SP", "RJ", "SP", "RJ"}),
		data.NewFloatColumn("Sinistros", []float64{0, 9, nan, 99}),
	)
	require.NoError(t, err)
	return tbl
}

func roadPolicy() preprocessing.Policy {
	return preprocessing.Policy{
		Fill: []preprocessing.FillRule{
			{Column: "km_rodovias_federais", Strategy: preprocessing.FillConstant, Value: "0"},
			{Column: "area_km2", Strategy: preprocessing.FillMedian},
			{Column: "UF", Strategy: preprocessing.FillConstant, Value: "SP"},
		},
		OneHot: []preprocessing.OneHotRule{{Column: "UF"}},
		Derive: []preprocessing.Derivation{
			{Name: "log_sinistros", Kind: preprocessing.DeriveLog1p, Source: "Sinistros"},
		},
	}
}

func TestSanitizeFills(t *testing.T) {
	t.Run("constant fill", func(t *testing.T) {
		out, err := preprocessing.Sanitize(municipios(t), roadPolicy())
		require.NoError(t, err)

		km, _ := out.Column("km_rodovias_federais")
		assert.Equal(t, []float64{0, 5, 0, 12}, km.Floats())
		assert.Zero(t, km.MissingCount())
	})

	t.Run("median fill", func(t *testing.T) {
		out, err := preprocessing.Sanitize(municipios(t), roadPolicy())
		require.NoError(t, err)

		area, _ := out.Column("area_km2")
		assert.Equal(t, []float64{100, 200, 300, 200}, area.Floats())
	})

	t.Run("mean fill", func(t *testing.T) {
		p := preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "Sinistros", Strategy: preprocessing.FillMean}}}
		out, err := preprocessing.Sanitize(municipios(t), p)
		require.NoError(t, err)

		col, _ := out.Column("Sinistros")
		assert.Equal(t, []float64{0, 9, 36, 99}, col.Floats())
	})

	t.Run("drop rows", func(t *testing.T) {
		p := preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "area_km2", Strategy: preprocessing.FillDrop}}}
		out, err := preprocessing.Sanitize(municipios(t), p)
		require.NoError(t, err)

		assert.Equal(t, 3, out.NumRows())
		name, _ := out.Column("Município")
		assert.Equal(t, "Santos", name.Text(1))
	})

	t.Run("input is not mutated", func(t *testing.T) {
		in := municipios(t)
		before := in.Clone()
		_, err := preprocessing.Sanitize(in, roadPolicy())
		require.NoError(t, err)
		assert.True(t, in.Equal(before))
	})

	t.Run("every policy column is complete", func(t *testing.T) {
		p := roadPolicy()
		p.OneHot = nil
		out, err := preprocessing.Sanitize(municipios(t), p)
		require.NoError(t, err)
		for _, rule := range p.Fill {
			col, ok := out.Column(rule.Column)
			require.True(t, ok)
			assert.Zero(t, col.MissingCount(), rule.Column)
		}
	})
}

func TestSanitizeErrors(t *testing.T) {
	tests := []struct {
		name   string
		policy preprocessing.Policy
		target error
	}{
		{
			name:   "statistic on all-missing column",
			policy: preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "vazia", Strategy: preprocessing.FillMedian}}},
			target: perrors.ErrEmptyColumn,
		},
		{
			name:   "unknown column",
			policy: preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "IDHM", Strategy: preprocessing.FillMedian}}},
			target: perrors.ErrColumnNotFound,
		},
		{
			name:   "median of categorical column",
			policy: preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "UF", Strategy: preprocessing.FillMedian}}},
			target: perrors.ErrInvalidInput,
		},
		{
			name:   "constant of wrong type",
			policy: preprocessing.Policy{Fill: []preprocessing.FillRule{{Column: "area_km2", Strategy: preprocessing.FillConstant, Value: "zero"}}},
			target: perrors.ErrInvalidInput,
		},
		{
			name:   "one-hot reference not in column",
			policy: preprocessing.Policy{OneHot: []preprocessing.OneHotRule{{Column: "UF", Reference: "MG"}}},
			target: perrors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := municipios(t)
			require.NoError(t, tbl.Set(data.NewFloatColumn("vazia", []float64{nan, nan, nan, nan})))

			_, err := preprocessing.Sanitize(tbl, tt.policy)
			assert.ErrorIs(t, err, tt.target)
		})
	}

	t.Run("empty column error names the column", func(t *testing.T) {
		tbl := municipios(t)
		require.NoError(t, tbl.Set(data.NewFloatColumn("vazia", []float64{nan, nan, nan, nan})))
		_, err := preprocessing.Sanitize(tbl, preprocessing.Policy{
			Fill: []preprocessing.FillRule{{Column: "vazia", Strategy: preprocessing.FillMedian}},
		})
		var pe *perrors.PipelineError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "vazia", pe.Column)
	})
}

func TestOneHot(t *testing.T) {
	tbl, err := data.NewTable(data.NewStringColumn("UF", []string{"SP", "RJ", "SP"}))
	require.NoError(t, err)

	t.Run("explicit reference", func(t *testing.T) {
		out, err := preprocessing.Sanitize(tbl, preprocessing.Policy{
			OneHot: []preprocessing.OneHotRule{{Column: "UF", Reference: "RJ"}},
		})
		require.NoError(t, err)

		sp, ok := out.Column("UF_SP")
		require.True(t, ok)
		assert.Equal(t, data.Bool, sp.Kind)
		assert.Equal(t, []float64{1, 0, 1}, sp.Floats())

		_, ok = out.Column("UF_RJ")
		assert.False(t, ok)
		_, ok = out.Column("UF")
		assert.False(t, ok)
	})

	t.Run("default reference is first sorted category", func(t *testing.T) {
		out, err := preprocessing.Sanitize(tbl, preprocessing.Policy{
			OneHot: []preprocessing.OneHotRule{{Column: "UF"}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"UF_SP"}, out.Columns())
	})

	t.Run("missing category gives zero indicators", func(t *testing.T) {
		withGap, err := data.NewTable(data.NewStringColumn("UF", []string{"SP", "", "MG"}))
		require.NoError(t, err)
		out, err := preprocessing.Sanitize(withGap, preprocessing.Policy{
			OneHot: []preprocessing.OneHotRule{{Column: "UF"}},
		})
		require.NoError(t, err)
		sp, _ := out.Column("UF_SP")
		assert.Equal(t, []float64{1, 0, 0}, sp.Floats())
	})
}

func TestSanitizeIdempotent(t *testing.T) {
	p := roadPolicy()
	p.Derive = append(p.Derive,
		preprocessing.Derivation{Name: "km_faixa", Kind: preprocessing.DeriveBucket, Source: "km_rodovias_federais"},
	)
	p.Fill = append(p.Fill, preprocessing.FillRule{Column: "Sinistros", Strategy: preprocessing.FillDrop})

	once, err := preprocessing.Sanitize(municipios(t), p)
	require.NoError(t, err)
	twice, err := preprocessing.Sanitize(once, p)
	require.NoError(t, err)

	assert.True(t, once.Equal(twice))
}

func TestSanitizeIdempotentSingleCategory(t *testing.T) {
	tests := []struct {
		name string
		rule preprocessing.OneHotRule
	}{
		{name: "default reference", rule: preprocessing.OneHotRule{Column: "UF"}},
		{name: "explicit reference", rule: preprocessing.OneHotRule{Column: "UF", Reference: "SP"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := data.NewTable(
				data.NewStringColumn("UF", []string{"SP", "", "SP"}),
				data.NewFloatColumn("x", []float64{1, 2, 3}),
			)
			require.NoError(t, err)
			p := preprocessing.Policy{
				Fill:   []preprocessing.FillRule{{Column: "UF", Strategy: preprocessing.FillConstant, Value: "SP"}},
				OneHot: []preprocessing.OneHotRule{tt.rule},
			}

			once, err := preprocessing.Sanitize(tbl, p)
			require.NoError(t, err)
			assert.Equal(t, []string{"x"}, once.Columns())

			twice, err := preprocessing.Sanitize(once, p)
			require.NoError(t, err)
			assert.True(t, once.Equal(twice))
		})
	}
}
