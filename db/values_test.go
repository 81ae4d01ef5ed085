package db

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	def, err := Deals.Def()
	require.NoError(t, err)

	out, err := def.Coerce(Row{
		"id":          json.Number("7"),
		"title":       "Deal",
		"value":       json.Number("12.5"),
		"probability": "40",
		"contact_id":  float64(3),
		"close_date":  nil,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(7), out["id"])
	assert.Equal(t, 12.5, out["value"])
	assert.Equal(t, int64(40), out["probability"])
	assert.Equal(t, int64(3), out["contact_id"])
	assert.Nil(t, out["close_date"])

	_, err = def.Coerce(Row{"probability": 1.5})
	assert.True(t, errors.Is(err, ErrInvalidValue))

	_, err = def.Coerce(Row{"bogus": 1})
	assert.True(t, errors.Is(err, ErrUnknownColumn))
}

func TestNormalizeFillsEveryColumn(t *testing.T) {
	def, err := DashboardTasks.Def()
	require.NoError(t, err)

	out := def.Normalize(Row{"id": int64(1), "title": []byte("Ship it"), "completed": int64(1)})
	assert.Len(t, out, len(def.Columns)+1)
	assert.Equal(t, "Ship it", out["title"])
	assert.Equal(t, true, out["completed"])
	assert.Nil(t, out["due_date"])
}

func TestNormalizeJSONText(t *testing.T) {
	def, err := Settings.Def()
	require.NoError(t, err)

	out := def.Normalize(Row{"id": int64(1), "services": `["Audit","Advisory"]`, "timezones": ""})
	assert.Equal(t, []interface{}{"Audit", "Advisory"}, out["services"])
	assert.Nil(t, out["timezones"])
}

func TestWithDefaults(t *testing.T) {
	def, err := Resources.Def()
	require.NoError(t, err)

	out := def.WithDefaults(Row{"name": "Ann", "type": "vendor"})
	assert.Equal(t, "vendor", out["type"], "explicit values win")
	assert.Equal(t, "", out["role"])
	assert.Nil(t, out["engagement_id"])
}
