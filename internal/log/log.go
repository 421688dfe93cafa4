// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log constructs the base zap logger used by the agentd binaries.
// Components never reach for a package-global logger; each constructor
// takes a *zap.Logger explicitly so multiple supervisors stay independently
// testable within one process.
package log

import "go.uber.org/zap"

// New builds the base logger for the daemon. dev selects the human-readable
// development encoder; otherwise the production JSON encoder is used.
func New(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// Nop returns a logger that discards everything, for tests and defaults.
func Nop() *zap.Logger {
	return zap.NewNop()
}
