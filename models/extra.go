package models

import "encoding/json"

// marshalWithExtra encodes known and folds extra keys in beside its fields.
// Known fields win on key collisions.
func marshalWithExtra(known interface{}, extra map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return b, nil
	}
	fields := map[string]interface{}{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(extra)+len(fields))
	for k, v := range extra {
		out[k] = v
	}
	for k, v := range fields {
		out[k] = v
	}
	return json.Marshal(out)
}

// splitExtra decodes data into known and returns the keys that are not in knownKeys.
func splitExtra(data []byte, known interface{}, knownKeys ...string) (map[string]interface{}, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]interface{}
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range knownKeys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}
