package influxdb

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// TelemetryMeasurement is the measurement relayed events are archived under.
const TelemetryMeasurement = "device_telemetry"

// WriteTelemetry archives the numeric and boolean top-level fields of a
// relayed JSON payload, one point per field tagged with the event name, the
// broker topic and the field name. A bare JSON number is stored under the
// field "value". Other values (strings, nested objects) are skipped.
//
// It returns how many points were queued.
func (c *Client) WriteTelemetry(event, topic string, payload []byte, ts time.Time) int {
	if !c.IsConnected() {
		return 0
	}

	points := TelemetryPoints(event, topic, payload, ts)
	for _, p := range points {
		c.writeAPI.WritePoint(p)
	}
	return len(points)
}

// TelemetryPoints converts a relayed payload into InfluxDB points in field
// name order.
func TelemetryPoints(event, topic string, payload []byte, ts time.Time) []*write.Point {
	fields := telemetryFields(payload)
	if len(fields) == 0 {
		return nil
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	points := make([]*write.Point, 0, len(names))
	for _, name := range names {
		points = append(points, write.NewPoint(
			TelemetryMeasurement,
			map[string]string{
				"event": event,
				"topic": topic,
				"field": name,
			},
			map[string]interface{}{
				"value": fields[name],
			},
			ts,
		))
	}
	return points
}

func telemetryFields(payload []byte) map[string]float64 {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil
	}

	if v, ok := numericValue(decoded); ok {
		return map[string]float64{"value": v}
	}

	obj, ok := decoded.(map[string]any)
	if !ok {
		return nil
	}

	fields := make(map[string]float64, len(obj))
	for name, raw := range obj {
		if v, ok := numericValue(raw); ok {
			fields[name] = v
		}
	}
	return fields
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
