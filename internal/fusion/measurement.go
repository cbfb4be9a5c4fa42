package fusion

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// SensorType identifies which sensor produced a measurement.
type SensorType string

const (
	// SensorLidar reports Cartesian position (x, y) in metres.
	SensorLidar SensorType = "lidar"
	// SensorRadar reports range (m), bearing (rad), and range-rate (m/s).
	SensorRadar SensorType = "radar"
)

// Dim returns the measurement-space dimension for the sensor type.
func (s SensorType) Dim() int {
	switch s {
	case SensorLidar:
		return 2
	case SensorRadar:
		return 3
	}
	return 0
}

// Measurement is a single sensor observation. It is immutable once parsed:
// the filter reads Raw but never modifies it.
type Measurement struct {
	Sensor          SensorType
	TimestampMicros int64

	// Raw holds the sensor values: [x, y] for lidar, [range, bearing,
	// range-rate] for radar.
	Raw []float64

	// GroundTruth optionally carries the simulator reference state
	// [px, py, vx, vy] for offline evaluation. Nil on live data.
	GroundTruth []float64
}

// Validate checks that the raw vector has the dimension required by the
// sensor type and contains only finite values.
func (m Measurement) Validate() error {
	want := m.Sensor.Dim()
	if want == 0 {
		return fmt.Errorf("unknown sensor type %q", m.Sensor)
	}
	if len(m.Raw) != want {
		return fmt.Errorf("sensor %s expects %d raw values, got %d", m.Sensor, want, len(m.Raw))
	}
	for i, v := range m.Raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("sensor %s raw value %d is not finite", m.Sensor, i)
		}
	}
	return nil
}

// ParseLine parses one measurement record. Two framings are accepted: the
// whitespace-separated dataset format
//
//	L px py timestamp [gt_px gt_py gt_vx gt_vy]
//	R rho phi rhod timestamp [gt_px gt_py gt_vx gt_vy]
//
// and the comma-separated frame format emitted over the serial link
// (same field order).
func ParseLine(line string) (Measurement, error) {
	var fields []string
	if strings.Contains(line, ",") {
		fields = strings.Split(line, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
	} else {
		fields = strings.Fields(line)
	}
	if len(fields) == 0 {
		return Measurement{}, fmt.Errorf("empty measurement record")
	}

	var m Measurement
	switch fields[0] {
	case "L":
		m.Sensor = SensorLidar
	case "R":
		m.Sensor = SensorRadar
	default:
		return Measurement{}, fmt.Errorf("unknown sensor tag %q", fields[0])
	}

	dim := m.Sensor.Dim()
	if len(fields) < dim+2 {
		return Measurement{}, fmt.Errorf("sensor %s record needs %d fields, got %d", m.Sensor, dim+2, len(fields))
	}

	m.Raw = make([]float64, dim)
	for i := 0; i < dim; i++ {
		v, err := strconv.ParseFloat(fields[i+1], 64)
		if err != nil {
			return Measurement{}, fmt.Errorf("failed to parse %s value %d: %v", m.Sensor, i, err)
		}
		m.Raw[i] = v
	}

	ts, err := strconv.ParseInt(fields[dim+1], 10, 64)
	if err != nil {
		return Measurement{}, fmt.Errorf("failed to parse timestamp: %v", err)
	}
	m.TimestampMicros = ts

	// Trailing fields, when present, are the ground-truth reference state.
	if rest := fields[dim+2:]; len(rest) >= 4 {
		m.GroundTruth = make([]float64, 4)
		for i := 0; i < 4; i++ {
			v, err := strconv.ParseFloat(rest[i], 64)
			if err != nil {
				return Measurement{}, fmt.Errorf("failed to parse ground truth value %d: %v", i, err)
			}
			m.GroundTruth[i] = v
		}
	}

	if err := m.Validate(); err != nil {
		return Measurement{}, err
	}
	return m, nil
}
