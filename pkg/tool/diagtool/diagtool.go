// Copyright 2025 The Reagent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package diagtool exposes process diagnostics as ordinary local tools so
// an operator can ask the model about the runtime it lives in.
package diagtool

import (
	"fmt"
	"runtime"
	"time"

	"github.com/reagent-ai/reagent/pkg/tool"
	"github.com/reagent-ai/reagent/pkg/tool/localtool"
)

var startTime = time.Now()

// Register adds the diagnostic tools to the registry.
func Register(reg *tool.Registry) error {
	dump, err := localtool.New(
		"thread_dump",
		"Returns a full goroutine stack dump of the running process",
		ThreadDump,
	)
	if err != nil {
		return err
	}
	if err := reg.Register(dump); err != nil {
		return err
	}

	summary, err := localtool.New(
		"runtime_summary",
		"Returns a summary of the process runtime: goroutines, memory, GC and uptime",
		RuntimeSummary,
	)
	if err != nil {
		return err
	}
	return reg.Register(summary)
}

// ThreadDump captures the stacks of every goroutine.
func ThreadDump() string {
	buf := make([]byte, 1<<20)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// Summary is the runtime_summary result.
type Summary struct {
	Goroutines  int    `json:"goroutines"`
	HeapAllocMB uint64 `json:"heapAllocMb"`
	HeapSysMB   uint64 `json:"heapSysMb"`
	GCCycles    uint32 `json:"gcCycles"`
	LastGCPause string `json:"lastGcPause"`
	NumCPU      int    `json:"numCpu"`
	GoVersion   string `json:"goVersion"`
	UptimeSecs  int64  `json:"uptimeSecs"`
}

// RuntimeSummary reports process-level runtime statistics.
func RuntimeSummary() Summary {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	lastPause := time.Duration(0)
	if mem.NumGC > 0 {
		lastPause = time.Duration(mem.PauseNs[(mem.NumGC+255)%256])
	}

	return Summary{
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: mem.HeapAlloc / (1 << 20),
		HeapSysMB:   mem.HeapSys / (1 << 20),
		GCCycles:    mem.NumGC,
		LastGCPause: fmt.Sprintf("%v", lastPause),
		NumCPU:      runtime.NumCPU(),
		GoVersion:   runtime.Version(),
		UptimeSecs:  int64(time.Since(startTime).Seconds()),
	}
}
