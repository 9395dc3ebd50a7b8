// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads hydrostat configuration from YAML with defaults and
// environment overrides.
//
// Loading order: built-in defaults, then the YAML file (optional), then
// HYDROSTAT_* environment variables. Command-line flags are applied by the
// caller afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/hydrostat/pkg/hydrolink"
	"github.com/Thermoquad/hydrostat/pkg/relay"
	"github.com/Thermoquad/hydrostat/pkg/session"
	"github.com/Thermoquad/hydrostat/pkg/transport"
)

// Config is the root configuration structure
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Session   SessionConfig   `yaml:"session"`
	Relays    []RelayConfig   `yaml:"relays"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Schedule  ScheduleConfig  `yaml:"schedule"`
	Export    ExportConfig    `yaml:"export"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// SerialConfig selects and opens the controller's serial port
type SerialConfig struct {
	Port        string        `yaml:"port"`
	Patterns    []string      `yaml:"patterns"`
	BaudRate    int           `yaml:"baud_rate"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	SettleDelay time.Duration `yaml:"settle_delay"`
}

// WebSocketConfig points at a network serial bridge. When URL is set it
// replaces the serial port.
type WebSocketConfig struct {
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	SkipSSLVerify bool   `yaml:"skip_ssl_verify"`
}

// SessionConfig tunes the device session
type SessionConfig struct {
	LineTimeout           time.Duration `yaml:"line_timeout"`
	ProbeInterval         time.Duration `yaml:"probe_interval"`
	ProbeTimeout          time.Duration `yaml:"probe_timeout"`
	TimeSyncInterval      time.Duration `yaml:"time_sync_interval"`
	DriftTolerance        time.Duration `yaml:"drift_tolerance"`
	RequestStateOnConnect bool          `yaml:"request_state_on_connect"`
	ResendStateOnConnect  bool          `yaml:"resend_state_on_connect"`
	Reconnect             bool          `yaml:"reconnect"`
	Backoff               BackoffConfig `yaml:"backoff"`
}

// BackoffConfig controls reconnect pacing
type BackoffConfig struct {
	Initial     time.Duration `yaml:"initial"`
	Max         time.Duration `yaml:"max"`
	Multiplier  float64       `yaml:"multiplier"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// RelayConfig is one entry of the relay table
type RelayConfig struct {
	Key         string `yaml:"key"`
	Code        string `yaml:"code"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// SensorsConfig picks a firmware preset or lists fields explicitly
type SensorsConfig struct {
	Preset string        `yaml:"preset"`
	Fields []FieldConfig `yaml:"fields"`

	// ReportInterval is how often the firmware sends SSTATE; readings older
	// than three intervals are shown as stale
	ReportInterval time.Duration `yaml:"report_interval"`
}

// FieldConfig is one positional SSTATE value
type FieldConfig struct {
	Name string   `yaml:"name"`
	Kind string   `yaml:"kind"`
	Unit string   `yaml:"unit"`
	Min  *float64 `yaml:"min"`
	Max  *float64 `yaml:"max"`
}

// ScheduleConfig points at the firmware schedule table used for annotations
type ScheduleConfig struct {
	File string `yaml:"file"`
}

// ExportConfig controls periodic status export
type ExportConfig struct {
	Interval   time.Duration  `yaml:"interval"`
	StatusFile string         `yaml:"status_file"`
	MQTT       MQTTConfig     `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig `yaml:"influxdb"`
	DynamoDB   DynamoDBConfig `yaml:"dynamodb"`
	History    HistoryConfig  `yaml:"history"`
}

// MQTTConfig contains MQTT broker settings for the status sink
type MQTTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Broker         string        `yaml:"broker"`
	ClientID       string        `yaml:"client_id"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	TopicPrefix    string        `yaml:"topic_prefix"`
	QoS            int           `yaml:"qos"`
	Retain         bool          `yaml:"retain"`
	Encoding       string        `yaml:"encoding"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings
type InfluxDBConfig struct {
	Enabled       bool          `yaml:"enabled"`
	URL           string        `yaml:"url"`
	Token         string        `yaml:"token"`
	Org           string        `yaml:"org"`
	Bucket        string        `yaml:"bucket"`
	BatchSize     uint          `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// DynamoDBConfig mirrors status documents to a DynamoDB table
type DynamoDBConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Table    string        `yaml:"table"`
	Region   string        `yaml:"region"`
	Endpoint string        `yaml:"endpoint"`
	LogTTL   time.Duration `yaml:"log_ttl"`
}

// HistoryConfig contains SQLite history settings
type HistoryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	Path        string        `yaml:"path"`
	Retention   time.Duration `yaml:"retention"`
	BusyTimeout int           `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from path. An empty path yields defaults plus
// environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with the stock controller's settings
func Default() *Config {
	sess := session.DefaultConfig()
	serial := transport.DefaultSerialConfig()

	relays := make([]RelayConfig, 0, len(relay.DefaultDevices))
	for _, d := range relay.DefaultDevices {
		relays = append(relays, RelayConfig{Key: d.Key, Code: d.Code, Name: d.Name, Description: d.Description})
	}

	return &Config{
		Serial: SerialConfig{
			Patterns:    append([]string(nil), transport.DefaultPatterns...),
			BaudRate:    serial.BaudRate,
			ReadTimeout: serial.ReadTimeout,
			SettleDelay: serial.SettleDelay,
		},
		Session: SessionConfig{
			LineTimeout:           sess.LineTimeout,
			ProbeInterval:         sess.ProbeInterval,
			ProbeTimeout:          sess.ProbeTimeout,
			TimeSyncInterval:      sess.TimeSyncInterval,
			DriftTolerance:        sess.DriftTolerance,
			RequestStateOnConnect: sess.RequestStateOnConnect,
			Reconnect:             sess.Reconnect,
			Backoff: BackoffConfig{
				Initial:    transport.DefaultBackoff.Initial,
				Max:        transport.DefaultBackoff.Max,
				Multiplier: transport.DefaultBackoff.Multiplier,
			},
		},
		Relays:  relays,
		Sensors: SensorsConfig{Preset: "v8", ReportInterval: 5 * time.Second},
		Export: ExportConfig{
			Interval:   time.Minute,
			StatusFile: "",
			MQTT: MQTTConfig{
				Broker:         "tcp://localhost:1883",
				ClientID:       "hydrostat",
				TopicPrefix:    "hydrostat",
				QoS:            1,
				Retain:         true,
				Encoding:       "json",
				ConnectTimeout: 10 * time.Second,
			},
			InfluxDB: InfluxDBConfig{
				URL:           "http://localhost:8086",
				Org:           "hydrostat",
				Bucket:        "hydroponics",
				BatchSize:     100,
				FlushInterval: 10 * time.Second,
			},
			DynamoDB: DynamoDBConfig{
				Table:  "hydrostat-status",
				LogTTL: 30 * 24 * time.Hour,
			},
			History: HistoryConfig{
				Path:        "hydrostat.db",
				Retention:   30 * 24 * time.Hour,
				BusyTimeout: 5,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// applyEnvOverrides applies HYDROSTAT_* environment variables
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HYDROSTAT_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("HYDROSTAT_MQTT_USERNAME"); v != "" {
		cfg.Export.MQTT.Username = v
	}
	if v := os.Getenv("HYDROSTAT_MQTT_PASSWORD"); v != "" {
		cfg.Export.MQTT.Password = v
	}
	if v := os.Getenv("HYDROSTAT_INFLUXDB_TOKEN"); v != "" {
		cfg.Export.InfluxDB.Token = v
	}
	if v := os.Getenv("HYDROSTAT_DYNAMODB_TABLE"); v != "" {
		cfg.Export.DynamoDB.Table = v
	}
	if v := os.Getenv("HYDROSTAT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration and reports every problem at once
func (c *Config) Validate() error {
	var errs []string

	if c.WebSocket.URL == "" && c.Serial.BaudRate <= 0 {
		errs = append(errs, "serial.baud_rate must be positive")
	}

	if err := relay.ValidateDevices(c.Devices()); err != nil {
		errs = append(errs, err.Error())
	}
	if _, err := c.Schema(); err != nil {
		errs = append(errs, err.Error())
	}

	if c.Sensors.ReportInterval <= 0 {
		errs = append(errs, "sensors.report_interval must be positive")
	}

	s := c.Session
	if s.LineTimeout <= 0 || s.ProbeInterval <= 0 || s.ProbeTimeout <= 0 {
		errs = append(errs, "session.line_timeout, probe_interval and probe_timeout must be positive")
	}
	if s.TimeSyncInterval < 0 {
		errs = append(errs, "session.time_sync_interval must not be negative")
	}
	if s.Backoff.Initial <= 0 {
		errs = append(errs, "session.backoff.initial must be positive")
	}
	if s.Backoff.Max > 0 && s.Backoff.Max < s.Backoff.Initial {
		errs = append(errs, "session.backoff.max must not be below backoff.initial")
	}
	if s.Backoff.MaxAttempts < 0 {
		errs = append(errs, "session.backoff.max_attempts must not be negative")
	}

	e := c.Export
	if e.Interval <= 0 {
		errs = append(errs, "export.interval must be positive")
	}
	if e.MQTT.Enabled {
		if e.MQTT.Broker == "" {
			errs = append(errs, "export.mqtt.broker is required")
		}
		if e.MQTT.QoS < 0 || e.MQTT.QoS > 2 {
			errs = append(errs, "export.mqtt.qos must be 0, 1, or 2")
		}
		switch strings.ToLower(e.MQTT.Encoding) {
		case "json", "cbor":
		default:
			errs = append(errs, "export.mqtt.encoding must be json or cbor")
		}
	}
	if e.InfluxDB.Enabled && (e.InfluxDB.URL == "" || e.InfluxDB.Org == "" || e.InfluxDB.Bucket == "") {
		errs = append(errs, "export.influxdb needs url, org and bucket")
	}
	if e.DynamoDB.Enabled && e.DynamoDB.Table == "" {
		errs = append(errs, "export.dynamodb.table is required (set HYDROSTAT_DYNAMODB_TABLE)")
	}
	if e.History.Enabled && e.History.Path == "" {
		errs = append(errs, "export.history.path is required")
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		errs = append(errs, "logging.format must be json or text")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Devices returns the relay table
func (c *Config) Devices() []relay.Device {
	devices := make([]relay.Device, 0, len(c.Relays))
	for _, r := range c.Relays {
		devices = append(devices, relay.Device{Key: r.Key, Code: r.Code, Name: r.Name, Description: r.Description})
	}
	return devices
}

// Schema returns the sensor schema: explicit fields when given, otherwise the preset
func (c *Config) Schema() (hydrolink.Schema, error) {
	if len(c.Sensors.Fields) == 0 {
		return hydrolink.SchemaPreset(c.Sensors.Preset)
	}

	fields := make([]hydrolink.Field, 0, len(c.Sensors.Fields))
	for _, fc := range c.Sensors.Fields {
		kind, err := hydrolink.ParseNumericKind(fc.Kind)
		if err != nil {
			return hydrolink.Schema{}, fmt.Errorf("sensor %q: %w", fc.Name, err)
		}
		f := hydrolink.Field{Name: fc.Name, Kind: kind, Unit: fc.Unit}
		if fc.Min != nil || fc.Max != nil {
			if fc.Min == nil || fc.Max == nil {
				return hydrolink.Schema{}, errors.New("sensor " + fc.Name + ": min and max must be given together")
			}
			f.Range = &hydrolink.Range{Min: *fc.Min, Max: *fc.Max}
		}
		fields = append(fields, f)
	}
	return hydrolink.NewSchema(fields...)
}

// SessionConfig returns the device session settings. The schema must be valid.
func (c *Config) SessionConfig() session.Config {
	schema, _ := c.Schema()
	s := c.Session
	return session.Config{
		Schema:                schema,
		LineTimeout:           s.LineTimeout,
		ProbeInterval:         s.ProbeInterval,
		ProbeTimeout:          s.ProbeTimeout,
		TimeSyncInterval:      s.TimeSyncInterval,
		DriftTolerance:        s.DriftTolerance,
		RequestStateOnConnect: s.RequestStateOnConnect,
		ResetStateDelay:       time.Second,
		Reconnect:             s.Reconnect,
		Backoff:               c.Backoff(),
	}
}

// SerialSettings returns how serial ports are opened
func (c *Config) SerialSettings() transport.SerialConfig {
	return transport.SerialConfig{
		BaudRate:    c.Serial.BaudRate,
		ReadTimeout: c.Serial.ReadTimeout,
		SettleDelay: c.Serial.SettleDelay,
	}
}

// Backoff returns the reconnect pacing
func (c *Config) Backoff() transport.Backoff {
	return transport.Backoff{
		Initial:    c.Session.Backoff.Initial,
		Max:        c.Session.Backoff.Max,
		Multiplier: c.Session.Backoff.Multiplier,
	}
}
