// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package inference

// Origin records which path produced a verdict.
type Origin byte

const (
	// OriginModel indicates the loaded model classified the sample.
	OriginModel Origin = iota

	// OriginHeuristic indicates no model was loaded and the fixed threshold
	// was applied to the raw value.
	OriginHeuristic

	// OriginSensorFault indicates the sample could not be classified and the
	// verdict was substituted.
	OriginSensorFault
)

func (o Origin) String() string {
	switch o {
	case OriginModel:
		return "model"
	case OriginHeuristic:
		return "heuristic"
	case OriginSensorFault:
		return "sensor_fault"
	default:
		return "unknown"
	}
}

// Verdict is the result of classifying one sample. Confidence is the anomaly
// probability: the model's output for OriginModel, 1 or 0 for
// OriginHeuristic.
type Verdict struct {
	Anomaly    bool
	Confidence float64
	Origin     Origin
}

// SensorFaultVerdict is the verdict substituted for a sample that failed
// classification. A faulty reading says nothing about the machine, so it is
// not flagged as an anomaly; the published record marks the sensor error
// instead.
func SensorFaultVerdict() Verdict {
	return Verdict{Origin: OriginSensorFault}
}
