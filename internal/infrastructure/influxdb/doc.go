// Package influxdb records authentication activity as InfluxDB v2 time
// series.
//
// Every audit event becomes one point in the auth_attempts measurement,
// tagged by action, outcome and principal kind. Operators chart failed
// logins per minute from it and alert on credential stuffing.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteAuthAttempt("login", "failure", "", time.Now())
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Asynchronous write errors are delivered to the callback
// registered with SetOnError.
package influxdb
