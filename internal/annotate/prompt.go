// Package annotate drives the edit-instruction annotation pipeline:
// prompt construction, per-item processing and the concurrent run loop.
package annotate

import (
	"fmt"
	"strings"
)

const promptTemplate = `You are an expert vision editor. Analyze the following image editing instruction.
- Determine if the primary action is to "add" or "remove" a single, concrete physical object. If the change is NOT about a specific object (e.g., sky/background/lighting/weather/color tone/texture) or it involves multiple objects, use "other".
- Identify the object being added or removed (only one object; if invalid or non-object, output "[[OBJECT_NAME:INVALID]]").
- Provide a confidence score from 0 to 10 (lower confidence for non-object or multi-object instructions).
Return ONLY valid JSON with keys "action", "object_name", "confidence_score". The value of "object_name" must wrap the object in double brackets as [[OBJECT_NAME:<name>]]. If multiple or invalid objects are mentioned, use exactly "[[OBJECT_NAME:INVALID]]" and set action="other".

Instruction: "%s"
Summary: "%s"`

// BuildPrompt renders the classification prompt for one instruction and
// summary pair. Pure formatting; either input may be empty.
func BuildPrompt(text, summary string) string {
	return strings.TrimSpace(fmt.Sprintf(promptTemplate, text, summary))
}
