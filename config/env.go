// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package config

import (
	"strconv"
	"strings"
)

// applyEnv overrides file values with well-known AGENT_* variables. Unknown
// variables are ignored.
func (c *Config) applyEnv(environ []string) error {
	for _, env := range environ {
		idx := strings.IndexByte(env, '=')
		if idx < 0 {
			continue
		}
		key := env[:idx]
		val := env[idx+1:]

		var err error
		switch key {
		case "AGENT_DEVICE_ID":
			c.DeviceID = val

		case "AGENT_CYCLE_PERIOD":
			c.CyclePeriod, err = parseDuration(key, val)

		case "AGENT_LOG_LEVEL":
			c.LogLevel = val

		case "AGENT_NETWORK_INTERFACE":
			c.Network.Interface = val

		case "AGENT_WIFI_SSID":
			c.Network.SSID = val

		case "AGENT_WIFI_PASSWORD":
			c.Network.Password = Secret(val)

		case "AGENT_BROKER_HOST":
			c.Broker.Host = val

		case "AGENT_BROKER_PORT":
			c.Broker.Port, err = parseInt(key, val)

		case "AGENT_BROKER_TRANSPORT":
			c.Broker.Transport = strings.ToLower(val)

		case "AGENT_BROKER_PATH":
			c.Broker.Path = val

		case "AGENT_MQTT_CLIENT_ID":
			c.Broker.ClientID = val

		case "AGENT_MQTT_USERNAME":
			c.Broker.Username = val

		case "AGENT_MQTT_PASSWORD_FILE":
			c.Broker.PasswordFile = val

		case "AGENT_MQTT_KEEP_ALIVE":
			c.Broker.KeepAlive, err = parseDuration(key, val)

		case "AGENT_MQTT_CONNECT_TIMEOUT":
			c.Broker.ConnectTimeout, err = parseDuration(key, val)

		case "AGENT_MQTT_ATTEMPTS":
			c.Broker.Attempts, err = parseInt(key, val)

		case "AGENT_MQTT_DISPATCH_WAIT":
			c.Broker.DispatchWait, err = parseDuration(key, val)

		case "AGENT_TLS_CA_FILE":
			c.Broker.TLS.CAFile = val

		case "AGENT_TLS_CERT_FILE":
			c.Broker.TLS.CertFile = val

		case "AGENT_TLS_KEY_FILE":
			c.Broker.TLS.KeyFile = val

		case "AGENT_TLS_KEY_PASSWORD_FILE":
			c.Broker.TLS.KeyPasswordFile = val

		case "AGENT_MODEL_PATH":
			c.Model.Path = val

		case "AGENT_ARENA_SIZE":
			c.Model.ArenaSize, err = parseInt(key, val)

		case "AGENT_THRESHOLD":
			c.Model.Threshold, err = parseFloat(key, val)

		case "AGENT_MAX_MAGNITUDE":
			c.Model.MaxMagnitude, err = parseFloat(key, val)

		case "AGENT_SENSOR_KIND":
			c.Sensor.Kind = strings.ToLower(val)

		case "AGENT_SENSOR_PATH":
			c.Sensor.Path = val

		case "AGENT_METRICS_ADDR":
			c.Metrics.Addr = val
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseDuration(key, val string) (Duration, error) {
	d, err := ParseDuration(val)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + key,
			wrapped: err,
		}
	}
	return d, nil
}

func parseInt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + key,
			wrapped: err,
		}
	}
	return n, nil
}

func parseFloat(key, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, &InvalidArgumentError{
			message: "could not parse " + key,
			wrapped: err,
		}
	}
	return f, nil
}
