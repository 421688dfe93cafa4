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

package controlapi

import (
	"fmt"
	"net/http"
	"strings"
)

// CORSConfig holds the few CORS knobs this server varies (no
// AllowCredentials/ExposedHeaders knob is needed for a loopback-only,
// unauthenticated surface).
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	MaxAgeSeconds  int
}

// DefaultCORSConfig returns a permissive configuration: local tooling must
// be able to call this API from any origin.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
		MaxAgeSeconds:  86400,
	}
}

func (c CORSConfig) wrap(next http.Handler) http.Handler {
	methods := strings.Join(c.AllowedMethods, ", ")
	headers := strings.Join(c.AllowedHeaders, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && c.allows(origin) {
			w.Header().Set("Access-Control-Allow-Origin", originHeader(c, origin))
		}
		if methods != "" {
			w.Header().Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			w.Header().Set("Access-Control-Allow-Headers", headers)
		}
		if c.MaxAgeSeconds > 0 {
			w.Header().Set("Access-Control-Max-Age", fmt.Sprintf("%d", c.MaxAgeSeconds))
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (c CORSConfig) allows(origin string) bool {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func originHeader(c CORSConfig, origin string) string {
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" {
			return "*"
		}
	}
	return origin
}
