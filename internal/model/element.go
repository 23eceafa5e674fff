package model

import (
	"encoding/json"
	"fmt"
)

// ElementPayload is the wire form of one canvas element. The core only
// understands id, type, layer and the asset reference; everything else the
// client sends (position, style, text, points) is carried through untouched in
// Extra so new element kinds need no server change.
type ElementPayload struct {
	ID      string
	Type    string
	Layer   int
	AssetID *int64
	Extra   map[string]any
}

// reserved keys lifted out of Extra
const (
	keyID      = "id"
	keyType    = "type"
	keyLayer   = "layer"
	keyAssetID = "asset_id"
	keyURL     = "url"
)

// UnmarshalJSON pulls the typed fields out and keeps the rest opaque.
func (p *ElementPayload) UnmarshalJSON(data []byte) error {
	raw := map[string]any{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if v, ok := raw[keyID].(string); ok {
		p.ID = v
	}
	if v, ok := raw[keyType].(string); ok {
		p.Type = v
	}
	if v, ok := raw[keyLayer].(float64); ok {
		p.Layer = int(v)
	}
	if v, ok := raw[keyAssetID].(float64); ok {
		id := int64(v)
		p.AssetID = &id
	}

	delete(raw, keyID)
	delete(raw, keyType)
	delete(raw, keyLayer)
	delete(raw, keyAssetID)
	p.Extra = raw

	return nil
}

// MarshalJSON merges the typed fields back into the opaque remainder.
func (p ElementPayload) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Extra)+4)
	for k, v := range p.Extra {
		out[k] = v
	}
	out[keyID] = p.ID
	out[keyType] = p.Type
	out[keyLayer] = p.Layer
	if p.AssetID != nil {
		out[keyAssetID] = *p.AssetID
	}
	return json.Marshal(out)
}

// AssetURL returns the asset preview URL cached on the element, if any.
func (p ElementPayload) AssetURL() string {
	if v, ok := p.Extra[keyURL].(string); ok {
		return v
	}
	return ""
}

// SetAssetURL replaces the cached asset preview URL.
func (p *ElementPayload) SetAssetURL(url string) {
	if p.Extra == nil {
		p.Extra = map[string]any{}
	}
	p.Extra[keyURL] = url
}

// Validate checks the fields every operation requires.
func (p ElementPayload) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("element is missing an id")
	}
	if p.Type == "" {
		return fmt.Errorf("element %s is missing a type", p.ID)
	}
	return nil
}

// ToRecord converts the payload into its persisted form.
func (p ElementPayload) ToRecord(whiteboardID int64) (WhiteboardElement, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return WhiteboardElement{}, err
	}
	return WhiteboardElement{
		WhiteboardID: whiteboardID,
		ElementID:    p.ID,
		Type:         p.Type,
		Layer:        p.Layer,
		AssetID:      p.AssetID,
		Data:         string(data),
	}, nil
}

// PayloadFromRecord parses a persisted element back into wire form. The
// typed columns are authoritative over whatever is inside Data.
func PayloadFromRecord(rec WhiteboardElement) (ElementPayload, error) {
	var p ElementPayload
	if err := json.Unmarshal([]byte(rec.Data), &p); err != nil {
		return ElementPayload{}, fmt.Errorf("element %s has corrupt payload: %w", rec.ElementID, err)
	}
	p.ID = rec.ElementID
	p.Type = rec.Type
	p.Layer = rec.Layer
	p.AssetID = rec.AssetID
	return p, nil
}
