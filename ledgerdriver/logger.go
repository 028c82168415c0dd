/*
Copyright the ledger-driver-go authors. All Rights Reserved.

Licensed under the Apache License, Version 2.0 (the "License"). You may not use this file except in compliance with
the License. A copy of the License is located at

http://www.apache.org/licenses/LICENSE-2.0

or in the "license" file accompanying this file. This file is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR
CONDITIONS OF ANY KIND, either express or implied. See the License for the specific language governing permissions
and limitations under the License.
*/

package ledgerdriver

import (
	"fmt"
	"log"
)

// Logger is the interface for a logger that can be used with the driver.
type Logger interface {
	Log(message string, verbosity LogLevel)
}

// LogLevel represents the valid logging verbosity levels.
type LogLevel uint8

const (
	// LogOff logs nothing.
	LogOff LogLevel = iota
	// LogInfo logs informative events. This is the default level.
	LogInfo
	// LogDebug logs information useful for closely tracing the driver.
	LogDebug
)

type driverLogger struct {
	logger    Logger
	verbosity LogLevel
}

func (l *driverLogger) logf(verbosity LogLevel, format string, a ...interface{}) {
	if verbosity > l.verbosity {
		return
	}
	message := fmt.Sprintf(format, a...)
	switch verbosity {
	case LogInfo:
		l.logger.Log("[INFO]"+message, verbosity)
	case LogDebug:
		l.logger.Log("[DEBUG]"+message, verbosity)
	default:
		l.logger.Log(message, verbosity)
	}
}

type defaultLogger struct{}

// Log the message using the built-in Go logging package.
func (logger defaultLogger) Log(message string, _ LogLevel) {
	log.Println(message)
}
