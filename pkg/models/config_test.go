package models

import (
	"database/sql/driver"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigUnmarshal(t *testing.T) {
	raw := `
input:
  path: s3://exports/hcahps.csv
  workers: 4
warehouse:
  dialect: postgres
  host: localhost
  port: 5432
  use_keyring: true
analytics:
  top_k: 3
  threshold: 80
  gap_measure_a: H_COMP_1_A_P
  gap_measure_b: H_COMP_2_A_P
server:
  allow_origins: ["http://localhost:3000"]
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "s3://exports/hcahps.csv", cfg.Input.Path)
	assert.Equal(t, 4, cfg.Input.Workers)
	assert.Equal(t, "postgres", cfg.Warehouse.Dialect)
	assert.Equal(t, 5432, cfg.Warehouse.Port)
	assert.True(t, cfg.Warehouse.UseKeyring)
	assert.Equal(t, 3, cfg.Analytics.TopK)
	assert.Equal(t, 80.0, cfg.Analytics.Threshold)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowOrigins)
}

func TestParsePercent(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "85.5", want: 8550},
		{in: " 85.50 ", want: 8550},
		{in: "100", want: 10000},
		{in: "0", want: 0},
		{in: ".5", want: 50},
		{in: "7.", want: 700},
		{in: "33.335", want: 3334},
		{in: "33.334", want: 3333},
		{in: "-1.005", want: -101},
		{in: "", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "1e2", wantErr: true},
		{in: ".", wantErr: true},
		{in: "1.2.3", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			p, err := ParsePercent(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, p.Valid)
			assert.Equal(t, tt.want, p.Hundredths)
		})
	}
}

func TestPercentRendering(t *testing.T) {
	assert.Equal(t, "85.50", NewPercent(85.5).String())
	assert.Equal(t, "0.05", Percent{Hundredths: 5, Valid: true}.String())
	assert.Equal(t, "NULL", Percent{}.String())

	out, err := json.Marshal([]Percent{NewPercent(70), {}})
	require.NoError(t, err)
	assert.JSONEq(t, `[70.00, null]`, string(out))
}

func TestPercentDriverRoundTrip(t *testing.T) {
	v, err := NewPercent(85.5).Value()
	require.NoError(t, err)
	assert.Equal(t, driver.Value(85.5), v)

	v, err = Percent{}.Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	var p Percent
	require.NoError(t, p.Scan([]byte("85.50")))
	assert.Equal(t, Percent{Hundredths: 8550, Valid: true}, p)

	require.NoError(t, p.Scan(int64(90)))
	assert.Equal(t, int64(9000), p.Hundredths)

	require.NoError(t, p.Scan(nil))
	assert.False(t, p.Valid)

	assert.Error(t, p.Scan(true))
}

func TestDimensionsLookups(t *testing.T) {
	dims := NewDimensions(
		[]StateDim{{ID: 1, Code: "AZ"}, {ID: 2, Code: "CA"}},
		[]MeasureDim{{ID: 1, MeasureID: "H_COMP_1", Question: "Nurses communicated well"}},
		[]AnswerDim{{ID: 5, Description: "Always"}},
	)

	id, ok := dims.StateID("CA")
	assert.True(t, ok)
	assert.Equal(t, 2, id)

	_, ok = dims.StateID("TX")
	assert.False(t, ok)

	a, ok := dims.Answer(5)
	assert.True(t, ok)
	assert.Equal(t, "Always", a.Description)

	assert.True(t, dims.Resolves(Fact{StateID: 1, MeasureID: 1, AnswerID: 5}))
	assert.False(t, dims.Resolves(Fact{StateID: 1, MeasureID: 1, AnswerID: 1}))
}
