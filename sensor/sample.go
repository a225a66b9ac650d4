// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package sensor

import "time"

type (
	// RawSample is a single timestamped vibration reading. A hardware fault is
	// represented by an out-of-range or non-finite Value rather than an error;
	// consumers validate it.
	RawSample struct {
		DeviceID  string
		Timestamp time.Time
		Value     float64
	}

	// Source abstracts the physical sensor. Read never fails.
	Source interface {
		Read() RawSample
	}
)
