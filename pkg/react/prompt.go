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

package react

import (
	"fmt"
	"sort"
	"strings"
)

const promptHeader = `You are a capable assistant that solves tasks by reasoning step by step and calling tools when they help.

Guidelines:
- Use a tool whenever it can answer part of the task more reliably than recall.
- Call tool_detail to see a tool's full parameter schema and examples before constructing complex arguments.
- After a tool result, read it carefully before deciding the next step.
- If a tool fails, consider adjusting the arguments or choosing another tool rather than giving up.
- When you have enough information, answer the user directly and concisely.`

// systemPrompt renders the per-turn system prompt: role and guardrails,
// caller-supplied environment context, and the registered tools as one
// "name: description" line each. Frontend tools are deliberately left out
// of the textual list; the model already receives their full schema in the
// structured tools field, and repeating it here doubles the token cost.
func (e *Engine) systemPrompt(req *Request) string {
	var b strings.Builder
	b.WriteString(promptHeader)

	if req.EnvironmentContext != "" {
		b.WriteString("\n\nEnvironment:\n")
		b.WriteString(req.EnvironmentContext)
	}

	summaries := e.registry.Summaries()
	if len(summaries) > 0 {
		sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })

		b.WriteString("\n\nAvailable tools:\n")
		for _, s := range summaries {
			fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
			if e.detailed {
				e.writeDetail(&b, s.Name)
			}
		}
	}

	return b.String()
}

// writeDetail inlines parameter lines under a tool entry when the detailed
// prompt flag is set.
func (e *Engine) writeDetail(b *strings.Builder, name string) {
	detail, ok := e.registry.Detail(name)
	if !ok {
		return
	}
	for _, p := range detail.Parameters {
		req := "optional"
		if p.Required {
			req = "required"
		}
		fmt.Fprintf(b, "    %s (%s, %s): %s", p.Name, p.Type, req, p.Description)
		if p.Example != "" {
			fmt.Fprintf(b, " e.g. %s", p.Example)
		}
		b.WriteString("\n")
	}
}
