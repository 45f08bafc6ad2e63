// Package influxdb archives relayed device telemetry in InfluxDB v2.
//
// The archive is optional (influxdb.enabled). When enabled, every routed
// event's numeric and boolean fields are written as device_telemetry points
// through the non-blocking batched write API of influxdb-client-go, so the
// relay never waits on the time-series store.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteTelemetry("client", "esp8266/client", []byte(`{"temp":22.5}`), time.Now())
//
// # Error Handling
//
// Connection and health check errors are returned directly. Batch write
// errors are delivered to the SetOnError callback wrapped in ErrWriteFailed.
package influxdb
