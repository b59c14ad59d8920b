package pipeline

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	codec "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Codec"
)

// Field name aliases accepted for the device identifier in an uplink
// envelope, checked in order.
var devEUIAliases = []string{"EUI", "devEui", "deveui", "DevEUI", "eui", "id"}

// ParseEnvelope parses the raw payload as a JSON object. A payload that is
// not valid JSON (or not an object) is wrapped as an opaque string value
// rather than treated as an error.
func ParseEnvelope(raw []byte) map[string]interface{} {
	var env map[string]interface{}
	if err := json.Unmarshal(raw, &env); err == nil && env != nil {
		return env
	}
	return map[string]interface{}{"value": strings.TrimSpace(string(raw))}
}

// ExtractDevEUI returns the device identifier from an envelope, checking the
// accepted field name aliases in order. Empty string when none is present.
func ExtractDevEUI(env map[string]interface{}) string {
	for _, key := range devEUIAliases {
		if v, ok := env[key]; ok {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// ExtractPort returns the uplink port from the envelope's "port" or "fPort"
// field, nil when neither parses as an integer.
func ExtractPort(env map[string]interface{}) *int {
	for _, key := range []string{"port", "fPort"} {
		if v, ok := env[key]; ok {
			if num, ok := toFloat(v); ok {
				p := int(num)
				return &p
			}
		}
	}
	return nil
}

// extractExplicitValue returns the envelope's "value" or "reading" field when
// present, preserving its original type for alert evaluation.
func extractExplicitValue(env map[string]interface{}) (interface{}, bool) {
	for _, key := range []string{"value", "reading"} {
		if v, ok := env[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// extractDataField returns the binary payload string under "data" or "Data".
func extractDataField(env map[string]interface{}) (string, bool) {
	for _, key := range []string{"data", "Data"} {
		if v, ok := env[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// extractTimestamp parses the device-reported timestamp. Accepted shapes are
// unix milliseconds (numeric, the Loriot convention) and RFC 3339 strings.
func extractTimestamp(env map[string]interface{}) *time.Time {
	v, ok := env["timestamp"]
	if !ok {
		return nil
	}
	switch ts := v.(type) {
	case float64:
		t := time.UnixMilli(int64(ts)).UTC()
		return &t
	case string:
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// extractExplicitAlert returns the envelope's "is_alert" flag when present.
func extractExplicitAlert(env map[string]interface{}) (bool, bool) {
	v, ok := env["is_alert"]
	if !ok {
		return false, false
	}
	return isTruthy(v), true
}

// firstNumericInPayload digs into a nested "payload" object and returns the
// first numeric field, for envelopes that carry pre-decoded readings instead
// of a data string.
func firstNumericInPayload(env map[string]interface{}) (interface{}, bool) {
	nested, ok := env["payload"].(map[string]interface{})
	if !ok {
		return nil, false
	}
	keys := make([]string, 0, len(nested))
	for k := range nested {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := toFloat(nested[k]); ok {
			return nested[k], true
		}
	}
	return nil, false
}

// decodedToMap converts a codec result into the JSON shape stored on the
// reading record. Nil when the decode produced nothing.
func decodedToMap(result codec.Result) datatypes.JSONMap {
	if result.Codec == "" && len(result.Records) == 0 {
		return nil
	}
	encoded, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil
	}
	return datatypes.JSONMap(m)
}
