package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestElementPayloadRoundTrip(t *testing.T) {
	raw := `{"id":"el-1","type":"rect","layer":3,"asset_id":7,"x":10.5,"y":-2,"style":{"fill":"#fff"}}`

	var p ElementPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	assert.Equal(t, "el-1", p.ID)
	assert.Equal(t, "rect", p.Type)
	assert.Equal(t, 3, p.Layer)
	require.NotNil(t, p.AssetID)
	assert.Equal(t, int64(7), *p.AssetID)

	// typed fields are lifted out of the opaque remainder
	assert.NotContains(t, p.Extra, "id")
	assert.NotContains(t, p.Extra, "asset_id")
	assert.Equal(t, 10.5, p.Extra["x"])

	out, err := json.Marshal(p)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "el-1", back["id"])
	assert.Equal(t, float64(7), back["asset_id"])
	assert.Equal(t, map[string]any{"fill": "#fff"}, back["style"])
}

func TestElementPayloadPassesUnknownKeysThrough(t *testing.T) {
	raw := `{"id":"el-2","type":"sticker","points":[[0,0],[1,1]],"future_field":"kept"}`

	var p ElementPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))

	out, err := json.Marshal(p)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(out, &back))
	assert.Equal(t, "kept", back["future_field"])
	assert.Contains(t, back, "points")
}

func TestElementPayloadValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload ElementPayload
		wantErr bool
	}{
		{"valid", ElementPayload{ID: "a", Type: "rect"}, false},
		{"missing id", ElementPayload{Type: "rect"}, true},
		{"missing type", ElementPayload{ID: "a"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.payload.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPayloadFromRecordPrefersTypedColumns(t *testing.T) {
	// stale JSON inside Data must not override the typed columns
	rec := WhiteboardElement{
		ElementID: "el-3",
		Type:      "image",
		Layer:     5,
		Data:      `{"id":"stale","type":"rect","layer":0,"x":1}`,
	}

	p, err := PayloadFromRecord(rec)
	require.NoError(t, err)
	assert.Equal(t, "el-3", p.ID)
	assert.Equal(t, "image", p.Type)
	assert.Equal(t, 5, p.Layer)
	assert.Equal(t, float64(1), p.Extra["x"])
}

func TestAssetURLAccessors(t *testing.T) {
	var p ElementPayload
	assert.Empty(t, p.AssetURL())

	p.SetAssetURL("https://cdn.example.com/a.png")
	assert.Equal(t, "https://cdn.example.com/a.png", p.AssetURL())
}
