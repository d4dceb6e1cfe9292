package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDControl string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string
	MQTTClientIDMock    string
	MQTTQoS             byte

	// Topics
	TopicEnableCtrlModule string
	TopicIniPose          string
	TopicKinematicsPose   string
	TopicKinematicsArr    string
	TopicSetJointStates   string
	TopicStatus           string
	TopicGetKinematics    string

	// Timing
	PoseQueryTimeout int // milliseconds
	LatchRepeats     int
	LatchInterval    int // milliseconds

	// Web Server
	WebServerPort int

	// Display
	DisplayLeftI2CAddr    uint16
	DisplayRightI2CAddr   uint16
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: InitGlobal runs its load once.
//   - configMu: write lock while loading, read lock in Get.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns the configuration used when a key is not set.
func Default() *Config {
	return &Config{
		MQTTBroker:          "tcp://localhost:1883",
		MQTTClientIDControl: "manipulator-control",
		MQTTClientIDConsole: "manipulator-console",
		MQTTClientIDWeb:     "manipulator-web",
		MQTTClientIDDisplay: "manipulator-display",
		MQTTClientIDMock:    "manipulator-mock",
		MQTTQoS:             1,

		TopicEnableCtrlModule: "robotis/enable_ctrl_module",
		TopicIniPose:          "robotis/manipulation/ini_pose_msg",
		TopicKinematicsPose:   "robotis/manipulation/kinematics_pose_msg",
		TopicKinematicsArr:    "robotis/manipulation/kinematics_pose_arr_msg",
		TopicSetJointStates:   "robotis/set_joint_states",
		TopicStatus:           "robotis/status",
		TopicGetKinematics:    "robotis/manipulation/get_kinematics_pose",

		PoseQueryTimeout: 2000,
		LatchRepeats:     4,
		LatchInterval:    100,

		WebServerPort: 8080,

		DisplayLeftI2CAddr:    0x3C,
		DisplayRightI2CAddr:   0x3D,
		DisplayUpdateInterval: 200,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Default.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open config file")
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, errors.Wrapf(err, "config line %d", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_CONTROL":
		c.MQTTClientIDControl = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_MOCK":
		c.MQTTClientIDMock = value
	case "MQTT_QOS":
		qos, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid MQTT_QOS %q: %w", value, err)
		}
		if qos < 0 || qos > 2 {
			return fmt.Errorf("MQTT_QOS must be 0-2, got %d", qos)
		}
		c.MQTTQoS = byte(qos)

	// Topics
	case "TOPIC_ENABLE_CTRL_MODULE":
		c.TopicEnableCtrlModule = value
	case "TOPIC_INI_POSE":
		c.TopicIniPose = value
	case "TOPIC_KINEMATICS_POSE":
		c.TopicKinematicsPose = value
	case "TOPIC_KINEMATICS_POSE_ARR":
		c.TopicKinematicsArr = value
	case "TOPIC_SET_JOINT_STATES":
		c.TopicSetJointStates = value
	case "TOPIC_STATUS":
		c.TopicStatus = value
	case "TOPIC_GET_KINEMATICS_POSE":
		c.TopicGetKinematics = value

	// Timing
	case "POSE_QUERY_TIMEOUT":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid POSE_QUERY_TIMEOUT %q: %w", value, err)
		}
		c.PoseQueryTimeout = ms
	case "LATCH_REPEATS":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LATCH_REPEATS %q: %w", value, err)
		}
		c.LatchRepeats = n
	case "LATCH_INTERVAL":
		ms, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid LATCH_INTERVAL %q: %w", value, err)
		}
		c.LatchInterval = ms

	// Web Server
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	// Display
	case "DISPLAY_LEFT_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_LEFT_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayLeftI2CAddr = uint16(addr)
	case "DISPLAY_RIGHT_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_RIGHT_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayRightI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayUpdateInterval = interval

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// Validate reports every missing or out-of-range field at once.
func (c *Config) Validate() error {
	var err error
	required := []struct {
		key, value string
	}{
		{"MQTT_BROKER", c.MQTTBroker},
		{"TOPIC_ENABLE_CTRL_MODULE", c.TopicEnableCtrlModule},
		{"TOPIC_INI_POSE", c.TopicIniPose},
		{"TOPIC_KINEMATICS_POSE", c.TopicKinematicsPose},
		{"TOPIC_KINEMATICS_POSE_ARR", c.TopicKinematicsArr},
		{"TOPIC_SET_JOINT_STATES", c.TopicSetJointStates},
		{"TOPIC_STATUS", c.TopicStatus},
		{"TOPIC_GET_KINEMATICS_POSE", c.TopicGetKinematics},
	}
	for _, r := range required {
		if r.value == "" {
			err = multierr.Append(err, fmt.Errorf("%s is required", r.key))
		}
	}
	if c.PoseQueryTimeout <= 0 {
		err = multierr.Append(err, fmt.Errorf("POSE_QUERY_TIMEOUT must be positive, got %d", c.PoseQueryTimeout))
	}
	if c.LatchRepeats < 1 {
		err = multierr.Append(err, fmt.Errorf("LATCH_REPEATS must be at least 1, got %d", c.LatchRepeats))
	}
	if c.LatchInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("LATCH_INTERVAL must not be negative, got %d", c.LatchInterval))
	}
	if c.DisplayUpdateInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval))
	}
	return err
}

// PoseQueryTimeoutDuration returns PoseQueryTimeout as a duration.
func (c *Config) PoseQueryTimeoutDuration() time.Duration {
	return time.Duration(c.PoseQueryTimeout) * time.Millisecond
}

// LatchIntervalDuration returns LatchInterval as a duration.
func (c *Config) LatchIntervalDuration() time.Duration {
	return time.Duration(c.LatchInterval) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Only the first call loads; later calls are no-ops.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
