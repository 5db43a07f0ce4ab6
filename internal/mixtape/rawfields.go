package mixtape

import "encoding/json"

// docAlias has Doc's exact field set so MarshalJSON/UnmarshalJSON can defer
// to the compiler-generated struct codec for everything but the unknown-key
// passthrough below, instead of hand-writing every field twice.
type docAlias Doc

// setExtra stores any JSON object keys on a mixtape document that aren't one
// of Doc's known fields in Doc.extra. Spec §6 requires unknown keys to round-trip unchanged
// across a read — a client-added field (or one from a newer schema version)
// must survive a save/update cycle performed by this version of the store.
// It is not part of the JSON schema itself; it is populated by UnmarshalJSON
// and re-emitted by MarshalJSON.
func (d *Doc) setExtra(m map[string]json.RawMessage) { d.extra = m }

// UnmarshalJSON decodes the known fields normally, then stashes any
// remaining object keys in d.extra so they survive an unrelated field update
// and are written back out verbatim.
func (d *Doc) UnmarshalJSON(data []byte) error {
	var a docAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*d = Doc(a)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, key := range knownDocKeys {
		delete(raw, key)
	}
	if len(raw) > 0 {
		d.setExtra(raw)
	}
	return nil
}

// MarshalJSON encodes the known fields via the struct codec, then merges in
// any unknown keys captured by UnmarshalJSON — a known field always wins a
// collision, since Doc's own fields are the current schema.
func (d Doc) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(docAlias(d))
	if err != nil {
		return nil, err
	}
	if len(d.extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range d.extra {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

var knownDocKeys = []string{
	"slug", "client_id", "title", "tracks",
	"liner_notes", "cover", "creator_name",
	"gift_flow_enabled", "unwrap_style", "show_tracklist_after_completion",
	"created_at", "updated_at",
}

// patchAlias carries Patch's fields under the same wire names as Doc, so a
// patch document handed to the "mixtape save" CLI (or any other caller
// that unmarshals JSON straight into a Patch) uses the spec §6 schema's
// snake_case keys rather than Go's exported field names.
type patchAlias struct {
	Title                        *string `json:"title,omitempty"`
	Tracks                       []Track `json:"tracks,omitempty"`
	LinerNotes                   *string `json:"liner_notes,omitempty"`
	Cover                        *string `json:"cover,omitempty"`
	CreatorName                  *string `json:"creator_name,omitempty"`
	GiftFlowEnabled              *bool   `json:"gift_flow_enabled,omitempty"`
	UnwrapStyle                  *string `json:"unwrap_style,omitempty"`
	ShowTracklistAfterCompletion *bool   `json:"show_tracklist_after_completion,omitempty"`
	ClientID                     *string `json:"client_id,omitempty"`
}

// UnmarshalJSON decodes a patch document, setting TracksSet only when the
// input actually carries a "tracks" key — distinguishing "leave tracks
// alone" from "replace tracks with this (possibly empty) list", which a
// plain field-presence-blind decode into Patch can't tell apart.
func (p *Patch) UnmarshalJSON(data []byte) error {
	var a patchAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = Patch{
		Title:                        a.Title,
		LinerNotes:                   a.LinerNotes,
		Cover:                        a.Cover,
		CreatorName:                  a.CreatorName,
		GiftFlowEnabled:              a.GiftFlowEnabled,
		UnwrapStyle:                  a.UnwrapStyle,
		ShowTracklistAfterCompletion: a.ShowTracklistAfterCompletion,
		ClientID:                     a.ClientID,
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if _, ok := raw["tracks"]; ok {
		p.Tracks = a.Tracks
		p.TracksSet = true
	}
	return nil
}
