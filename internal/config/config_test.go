package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	test.That(t, os.WriteFile(path, []byte(body), 0o644), test.ShouldBeNil)
	return path
}

func TestLoadSample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "manipulator_config.txt"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg, test.ShouldResemble, Default())
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
# comment
MQTT_BROKER = tcp://arm.local:1883
MQTT_QOS=0
POSE_QUERY_TIMEOUT=500
DISPLAY_LEFT_I2C_ADDR=0x3A
LOG_LEVEL=debug
`)
	cfg, err := Load(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MQTTBroker, test.ShouldEqual, "tcp://arm.local:1883")
	test.That(t, cfg.MQTTQoS, test.ShouldEqual, byte(0))
	test.That(t, cfg.PoseQueryTimeoutDuration(), test.ShouldEqual, 500*time.Millisecond)
	test.That(t, cfg.DisplayLeftI2CAddr, test.ShouldEqual, uint16(0x3A))
	test.That(t, cfg.LogLevel, test.ShouldEqual, "debug")
	// untouched keys keep their defaults
	test.That(t, cfg.TopicStatus, test.ShouldEqual, Default().TopicStatus)
	test.That(t, cfg.LatchIntervalDuration(), test.ShouldEqual, 100*time.Millisecond)
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name, body, want string
	}{
		{"unknown key", "NOPE=1", "unknown config key"},
		{"malformed line", "MQTT_BROKER", "invalid config line 1"},
		{"bad qos", "MQTT_QOS=3", "MQTT_QOS must be 0-2"},
		{"bad number", "LATCH_REPEATS=many", "invalid LATCH_REPEATS"},
		{"bad address", "DISPLAY_RIGHT_I2C_ADDR=0xZZ", "invalid DISPLAY_RIGHT_I2C_ADDR"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.want)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestValidateCollectsAll(t *testing.T) {
	path := writeConfig(t, "MQTT_BROKER=\nTOPIC_STATUS=\nPOSE_QUERY_TIMEOUT=0\n")
	_, err := Load(path)
	test.That(t, err, test.ShouldNotBeNil)
	msg := err.Error()
	for _, want := range []string{"MQTT_BROKER is required", "TOPIC_STATUS is required", "POSE_QUERY_TIMEOUT must be positive"} {
		test.That(t, strings.Contains(msg, want), test.ShouldBeTrue)
	}
}

func TestGlobal(t *testing.T) {
	test.That(t, InitGlobal(filepath.Join("..", "..", "manipulator_config.txt")), test.ShouldBeNil)
	test.That(t, Get(), test.ShouldNotBeNil)
	test.That(t, Get().WebServerPort, test.ShouldEqual, 8080)
}
