// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package metrics exposes Prometheus instrumentation for the session
// runtime: handshakes, dispatch calls and session lifecycle counters,
// all registered against a single process-wide Registry and served over
// the standard /metrics endpoint via Handler/StartServer.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "agentrpc"

// Registry is the process-wide collector registry every metric in this
// package registers against.
var Registry = prometheus.NewRegistry()
