package pipeline

import (
	"strconv"
	"strings"

	taismodels "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Models"
)

// Truthy tokens accepted for binary-state sensor values, matched
// case-insensitively.
var truthyTokens = map[string]bool{
	"true":     true,
	"1":        true,
	"on":       true,
	"active":   true,
	"detected": true,
	"yes":      true,
	"open":     true,
}

// DetermineAlert applies the category-specific thresholds to a computed
// value. Values that cannot be converted to the expected type never alert:
// a garbage reading must not fail the pipeline.
func DetermineAlert(sensorType string, value interface{}) bool {
	if value == nil {
		return false
	}

	if taismodels.IsBinaryStateType(sensorType) {
		return isTruthy(value)
	}

	num, ok := toFloat(value)
	if !ok {
		return false
	}

	switch sensorType {
	case taismodels.SensorTypeTemperature:
		return num < -10 || num > 90
	case taismodels.SensorTypeOilLevel:
		return num < 20 || num > 95
	case "pressure":
		return num < 10 || num > 100
	case taismodels.SensorTypeCurrent:
		return num > 1000
	case taismodels.SensorTypeVoltage:
		return num < 10000 || num > 36000
	case taismodels.SensorTypeHumidity:
		return num > 80
	}
	return false
}

func isTruthy(value interface{}) bool {
	if num, ok := toFloat(value); ok {
		if _, isString := value.(string); !isString {
			return num != 0
		}
	}
	s, ok := value.(string)
	if !ok {
		if b, isBool := value.(bool); isBool {
			return b
		}
		return false
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if truthyTokens[s] {
		return true
	}
	if num, err := strconv.ParseFloat(s, 64); err == nil {
		return num != 0
	}
	return false
}

func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return num, true
	}
	return 0, false
}
