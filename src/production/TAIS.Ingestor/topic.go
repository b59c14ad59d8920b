package ingestor

import (
	"strconv"
	"strings"

	pipeline "gitlab.com/powertel1/tais.ingest_server/src/production/TAIS.Pipeline"
)

// Topic prefixes accepted for the unstructured grammars.
var knownPrefixes = map[string]bool{"powerteltais": true, "tais": true}

// ParseTopic maps an MQTT topic onto a pipeline route. Three grammars are
// tried in order:
//
//	powerteltais/region/{region}/depot/{depot}/transformer/{tid}/sensor/{sid}
//	{prefix}/.../{transformer_id}/{sensor_id}   (legacy, four or more segments)
//	{prefix}/{deveui}/{port}                    (device/port, exactly three)
//
// A two-segment {prefix}/{deveui} topic is also accepted; the port must then
// come from the payload. The second return is false when no grammar matches.
func ParseTopic(topic string) (pipeline.Route, bool) {
	route := pipeline.Route{Topic: topic}
	parts := strings.Split(topic, "/")

	// Structured grammar: keyword segments anywhere in the topic.
	for i, part := range parts {
		if part == "transformer" && i+1 < len(parts) {
			for j := i + 2; j < len(parts); j++ {
				if parts[j] == "sensor" && j+1 < len(parts) {
					route.TransformerID = parts[i+1]
					route.SensorID = parts[j+1]
					return route, true
				}
			}
		}
		if part == "sensor" && i >= 1 && i+1 < len(parts) {
			route.TransformerID = parts[i-1]
			route.SensorID = parts[i+1]
			return route, true
		}
	}

	if len(parts) >= 3 && knownPrefixes[parts[0]] {
		if len(parts) == 3 {
			// Device/port form. A non-numeric third segment makes the topic
			// unroutable rather than falling back to the legacy grammar.
			port, err := strconv.Atoi(parts[2])
			if err != nil {
				return pipeline.Route{}, false
			}
			route.DevEUI = parts[1]
			route.Port = &port
			return route, true
		}
		route.TransformerID = parts[len(parts)-2]
		route.SensorID = parts[len(parts)-1]
		return route, true
	}

	if len(parts) == 2 && knownPrefixes[parts[0]] && parts[1] != "" {
		route.DevEUI = parts[1]
		return route, true
	}

	return pipeline.Route{}, false
}
