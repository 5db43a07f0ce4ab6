package mixtape

import "encoding/json"

// normalizeLegacyFields migrates a mixtape document's raw JSON forward
// before it's unmarshaled into Doc: a top-level "saved_at" becomes
// "updated_at" when "updated_at" is absent, "created_at" defaults to
// "updated_at" when absent, and each track's legacy "title" field becomes
// "track". Grounded on mixtape_manager.py's _normalize_timestamps and
// _convert_old_mixtape.
func normalizeLegacyFields(raw []byte) ([]byte, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	if _, hasUpdated := m["updated_at"]; !hasUpdated {
		if savedAt, ok := m["saved_at"]; ok {
			m["updated_at"] = savedAt
		}
	}
	delete(m, "saved_at")

	if _, hasCreated := m["created_at"]; !hasCreated {
		if updatedAt, ok := m["updated_at"]; ok {
			m["created_at"] = updatedAt
		}
	}

	if tracksRaw, ok := m["tracks"].([]any); ok {
		for _, trRaw := range tracksRaw {
			tr, ok := trRaw.(map[string]any)
			if !ok {
				continue
			}
			if _, hasTrack := tr["track"]; !hasTrack {
				if title, ok := tr["title"]; ok {
					tr["track"] = title
				}
			}
			delete(tr, "title")
		}
	}

	return json.Marshal(m)
}
