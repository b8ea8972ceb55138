package config

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/relabs-tech/tactile_viewer/internal/field"
	"github.com/relabs-tech/tactile_viewer/internal/frame"
	"github.com/relabs-tech/tactile_viewer/internal/fusion"
	"github.com/relabs-tech/tactile_viewer/internal/surface"
)

// Frame sources.
const (
	SourceSerial = "serial"
	SourceMock   = "mock"
	SourceReplay = "replay"
)

// Built-in scene shapes.
const (
	ShapeSphere = "sphere"
	ShapePlane  = "plane"
	ShapeBox    = "box"
)

// Config holds all application configuration values.
type Config struct {
	// Serial
	SerialPort     string
	SerialBaudRate uint
	FrameSource    string
	ReplayFile     string
	ReplayRateHz   float64
	// AutoConnect opens the frame source when the viewer starts.
	AutoConnect bool

	// MQTT
	MQTTEnabled          bool
	MQTTBroker           string
	MQTTClientIDViewer   string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string

	// Topics
	TopicContact string
	TopicForce   string
	TopicStatus  string

	// Web Server
	WebServerPort int
	WebStaticDir  string

	// Fusion
	ADCFull        float64
	PressThreshold float64
	NoiseGate      float64
	IntensityGain  float64
	ForceFactor    float64
	ZeroFrames     int
	ChipMap        [frame.Sensors]int
	AxisOrder      [frame.Axes]int
	SignVector     r3.Vector
	SensorLayout   [frame.Sensors]r2.Point
	InvertX        bool
	InvertY        bool

	// Sampler
	GridSpacing        float64 // 0 = bounding diagonal / 100
	MaxPoints          int
	VertexSampleTarget int
	PushOutFraction    float64
	SceneShape         string
	ViewDirection      r3.Vector

	// Field
	InfluenceRadiusFactor float64
	ContactGainX          float64
	ContactGainY          float64
	ColorBase             string
	ColorMid              string
	ColorPeak             string

	// Timing
	TickHz          int
	ChartIntervalMS int
	ChartWindow     int

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// Default returns a configuration where every key has its shipped value.
func Default() *Config {
	fp := fusion.DefaultParams()
	sp := surface.DefaultParams()
	fd := field.DefaultParams()
	return &Config{
		SerialPort:     "/dev/ttyUSB0",
		SerialBaudRate: 115200,
		FrameSource:    SourceSerial,
		ReplayRateHz:   100,

		MQTTEnabled:          true,
		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDViewer:   "tactile-viewer",
		MQTTClientIDProducer: "tactile-producer",
		MQTTClientIDConsole:  "tactile-console",
		MQTTClientIDDisplay:  "tactile-display",

		TopicContact: "tactile/contact",
		TopicForce:   "tactile/force",
		TopicStatus:  "tactile/status",

		WebServerPort: 8080,
		WebStaticDir:  "web",

		ADCFull:        fp.ADCFull,
		PressThreshold: fp.PressThreshold,
		NoiseGate:      fp.NoiseGate,
		IntensityGain:  fp.IntensityGain,
		ForceFactor:    fp.ForceFactor,
		ZeroFrames:     fp.ZeroFrames,
		ChipMap:        fp.ChipMap,
		AxisOrder:      fp.AxisOrder,
		SignVector:     fp.Sign,
		SensorLayout:   fp.Layout,
		InvertX:        fp.InvertX,
		InvertY:        fp.InvertY,

		MaxPoints:          sp.MaxPoints,
		VertexSampleTarget: sp.VertexSampleTarget,
		PushOutFraction:    sp.PushOutFraction,
		SceneShape:         ShapeSphere,
		ViewDirection:      r3.Vector{Z: 1},

		InfluenceRadiusFactor: fd.RadiusFactor,
		ContactGainX:          fd.GainX,
		ContactGainY:          fd.GainY,
		ColorBase:             fd.BaseColor,
		ColorMid:              fd.MidColor,
		ColorPeak:             fd.PeakColor,

		TickHz:          60,
		ChartIntervalMS: 100,
		ChartWindow:     100,

		DisplayUpdateInterval: 200,

		LogLevel: "info",
	}
}

// Load reads the configuration file on top of Default and returns the result.
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

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, errors.Errorf("invalid config line %d: %q", lineNum, line)
		}

		if err := cfg.setValue(strings.TrimSpace(key), strings.TrimSpace(value)); err != nil {
			return nil, errors.Wrapf(err, "config line %d", lineNum)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "error reading config file")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOptional is Load, except that a missing file yields Default.
func LoadOptional(configPath string) (*Config, error) {
	cfg, err := Load(configPath)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		var rate uint64
		rate, err = strconv.ParseUint(value, 10, 32)
		c.SerialBaudRate = uint(rate)
	case "FRAME_SOURCE":
		c.FrameSource = strings.ToLower(value)
	case "REPLAY_FILE":
		c.ReplayFile = value
	case "REPLAY_RATE_HZ":
		c.ReplayRateHz, err = parseFloat(value)
	case "AUTO_CONNECT":
		c.AutoConnect, err = strconv.ParseBool(value)

	// MQTT
	case "MQTT_ENABLED":
		c.MQTTEnabled, err = strconv.ParseBool(value)
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_VIEWER":
		c.MQTTClientIDViewer = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_CONTACT":
		c.TopicContact = value
	case "TOPIC_FORCE":
		c.TopicForce = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = strconv.Atoi(value)
	case "WEB_STATIC_DIR":
		c.WebStaticDir = value

	// Fusion
	case "ADC_FULL":
		c.ADCFull, err = parseFloat(value)
	case "PRESS_THR":
		c.PressThreshold, err = parseFloat(value)
	case "NOISE_GATE":
		c.NoiseGate, err = parseFloat(value)
	case "INTENSITY_GAIN":
		c.IntensityGain, err = parseFloat(value)
	case "FORCE_FACTOR":
		c.ForceFactor, err = parseFloat(value)
	case "ZERO_FRAMES":
		c.ZeroFrames, err = strconv.Atoi(value)
	case "CHIP_MAP":
		err = parseInts(value, c.ChipMap[:])
	case "AXIS_ORDER":
		err = parseInts(value, c.AxisOrder[:])
	case "SIGN_VECTOR":
		c.SignVector, err = parseVector(value)
	case "SENSOR_LAYOUT":
		c.SensorLayout, err = parseLayout(value)
	case "INVERT_X":
		c.InvertX, err = strconv.ParseBool(value)
	case "INVERT_Y":
		c.InvertY, err = strconv.ParseBool(value)

	// Sampler
	case "GRID_SPACING":
		c.GridSpacing, err = parseFloat(value)
	case "MAX_POINTS":
		c.MaxPoints, err = strconv.Atoi(value)
	case "VERTEX_SAMPLE_TARGET":
		c.VertexSampleTarget, err = strconv.Atoi(value)
	case "PUSH_OUT_FRACTION":
		c.PushOutFraction, err = parseFloat(value)
	case "SCENE_SHAPE":
		c.SceneShape = strings.ToLower(value)
	case "VIEW_DIRECTION":
		c.ViewDirection, err = parseVector(value)

	// Field
	case "INFLUENCE_RADIUS_FACTOR":
		c.InfluenceRadiusFactor, err = parseFloat(value)
	case "CONTACT_GAIN_X":
		c.ContactGainX, err = parseFloat(value)
	case "CONTACT_GAIN_Y":
		c.ContactGainY, err = parseFloat(value)
	case "COLOR_BASE":
		c.ColorBase = value
	case "COLOR_MID":
		c.ColorMid = value
	case "COLOR_PEAK":
		c.ColorPeak = value

	// Timing
	case "TICK_HZ":
		c.TickHz, err = strconv.Atoi(value)
	case "CHART_INTERVAL_MS":
		c.ChartIntervalMS, err = strconv.Atoi(value)
	case "CHART_WINDOW":
		c.ChartWindow, err = strconv.Atoi(value)

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = strconv.Atoi(value)

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return errors.Errorf("unknown config key: %q", key)
	}

	if err != nil {
		return errors.Wrapf(err, "invalid %s %q", key, value)
	}
	return nil
}

// validate checks cross-field constraints once the whole file is read.
func (c *Config) validate() error {
	switch c.FrameSource {
	case SourceSerial:
		if c.SerialPort == "" {
			return errors.New("SERIAL_PORT is required for FRAME_SOURCE=serial")
		}
		if c.SerialBaudRate == 0 {
			return errors.New("SERIAL_BAUD_RATE must be positive")
		}
	case SourceReplay:
		if c.ReplayFile == "" {
			return errors.New("REPLAY_FILE is required for FRAME_SOURCE=replay")
		}
		if c.ReplayRateHz <= 0 {
			return errors.New("REPLAY_RATE_HZ must be positive")
		}
	case SourceMock:
	default:
		return errors.Errorf("FRAME_SOURCE must be serial, mock or replay, got %q", c.FrameSource)
	}

	switch c.SceneShape {
	case ShapeSphere, ShapePlane, ShapeBox:
	default:
		return errors.Errorf("SCENE_SHAPE must be sphere, plane or box, got %q", c.SceneShape)
	}

	if c.MQTTEnabled && c.MQTTBroker == "" {
		return errors.New("MQTT_BROKER is required when MQTT_ENABLED=true")
	}
	if c.TickHz <= 0 {
		return errors.Errorf("TICK_HZ must be positive, got %d", c.TickHz)
	}
	if c.ChartIntervalMS <= 0 {
		return errors.Errorf("CHART_INTERVAL_MS must be positive, got %d", c.ChartIntervalMS)
	}
	if c.ChartWindow < 2 {
		return errors.Errorf("CHART_WINDOW must be at least 2, got %d", c.ChartWindow)
	}
	if c.GridSpacing < 0 {
		return errors.Errorf("GRID_SPACING must not be negative, got %v", c.GridSpacing)
	}
	if c.MaxPoints <= 0 {
		return errors.Errorf("MAX_POINTS must be positive, got %d", c.MaxPoints)
	}
	if c.ViewDirection.Norm() == 0 {
		return errors.New("VIEW_DIRECTION must not be zero")
	}
	if c.DisplayUpdateInterval <= 0 {
		return errors.Errorf("DISPLAY_UPDATE_INTERVAL must be positive, got %d", c.DisplayUpdateInterval)
	}
	if err := c.Fusion().Validate(); err != nil {
		return errors.Wrap(err, "fusion")
	}
	return nil
}

// Fusion returns the fusion parameters.
func (c *Config) Fusion() fusion.Params {
	return fusion.Params{
		ChipMap:        c.ChipMap,
		AxisOrder:      c.AxisOrder,
		Sign:           c.SignVector,
		Layout:         c.SensorLayout,
		InvertX:        c.InvertX,
		InvertY:        c.InvertY,
		ADCFull:        c.ADCFull,
		PressThreshold: c.PressThreshold,
		NoiseGate:      c.NoiseGate,
		IntensityGain:  c.IntensityGain,
		ForceFactor:    c.ForceFactor,
		ZeroFrames:     c.ZeroFrames,
	}
}

// Sampler returns the surface sampler parameters.
func (c *Config) Sampler() surface.Params {
	p := surface.DefaultParams()
	p.Spacing = c.GridSpacing
	p.MaxPoints = c.MaxPoints
	p.VertexSampleTarget = c.VertexSampleTarget
	p.PushOutFraction = c.PushOutFraction
	return p
}

// Field returns the pressure field parameters.
func (c *Config) Field() field.Params {
	p := field.DefaultParams()
	p.RadiusFactor = c.InfluenceRadiusFactor
	p.GainX = c.ContactGainX
	p.GainY = c.ContactGainY
	p.BaseColor = c.ColorBase
	p.MidColor = c.ColorMid
	p.PeakColor = c.ColorPeak
	p.MaxPoints = c.MaxPoints
	return p
}

// TickInterval is the render tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.TickHz)
}

// ChartInterval is the chart pull period.
func (c *Config) ChartInterval() time.Duration {
	return time.Duration(c.ChartIntervalMS) * time.Millisecond
}

func parseFloat(value string) (float64, error) {
	return strconv.ParseFloat(value, 64)
}

func parseInts(value string, dst []int) error {
	parts := strings.Split(value, ",")
	if len(parts) != len(dst) {
		return errors.Errorf("want %d comma separated integers, got %d", len(dst), len(parts))
	}
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func parseFloats(value string, dst []float64) error {
	parts := strings.Split(value, ",")
	if len(parts) != len(dst) {
		return errors.Errorf("want %d comma separated numbers, got %d", len(dst), len(parts))
	}
	for i, p := range parts {
		v, err := parseFloat(strings.TrimSpace(p))
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

func parseVector(value string) (r3.Vector, error) {
	var v [3]float64
	if err := parseFloats(value, v[:]); err != nil {
		return r3.Vector{}, err
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

// parseLayout reads "x,y;x,y;x,y;x,y".
func parseLayout(value string) ([frame.Sensors]r2.Point, error) {
	var layout [frame.Sensors]r2.Point
	pairs := strings.Split(value, ";")
	if len(pairs) != frame.Sensors {
		return layout, errors.Errorf("want %d x,y pairs separated by ';', got %d", frame.Sensors, len(pairs))
	}
	for i, pair := range pairs {
		var xy [2]float64
		if err := parseFloats(pair, xy[:]); err != nil {
			return layout, errors.Wrapf(err, "sensor %d", i)
		}
		layout[i] = r2.Point{X: xy[0], Y: xy[1]}
	}
	return layout, nil
}
