// SPDX-License-Identifier: MIT
package motor

import "bbbtune/internal/log"

// Motor names the two animated outputs.
type Motor string

const (
	Mouth Motor = "mouth"
	Body  Motor = "body"
)

// Actuator drives a motor output. Set is only called on a state change.
type Actuator interface {
	Set(m Motor, on bool) error
}

// LogActuator reports transitions instead of driving hardware.
type LogActuator struct {
	logger *log.Logger
}

// NewLogActuator returns an actuator that logs at debug level.
func NewLogActuator() *LogActuator {
	return &LogActuator{logger: log.Named("Motor")}
}

func (a *LogActuator) Set(m Motor, on bool) error {
	a.logger.Debugf("%s -> %t", m, on)
	return nil
}
