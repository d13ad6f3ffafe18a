// Package prompt assembles the final prompt string for one evaluation
// dispatch. Assembly is a pure function of the sample, its retrieved
// neighbors, and the template; it performs no I/O.
package prompt

import (
	"fmt"
	"strings"

	"github.com/sightlinelabs/vizbench/pkg/dataset"
	"github.com/sightlinelabs/vizbench/pkg/vector"
)

// Template holds the prompt fragments. All fields have working defaults;
// zero values fall back to DefaultTemplate.
type Template struct {
	// System is the system prompt sent out-of-band to providers.
	System string

	// Base introduces the question. Rendered with the sample's question.
	Base string

	// ContextHeader precedes the neighbor list in with-context mode.
	ContextHeader string

	// ContextEntry renders one neighbor: its question and crowd answer.
	// Image payloads are never rendered.
	ContextEntry string
}

// DefaultTemplate mirrors the prompting used in the original study runs.
func DefaultTemplate() Template {
	return Template{
		System: "You are a visual assistant helping blind and low-vision users. " +
			"Answer the question about the photo directly and concisely. " +
			"If the question cannot be answered from the photo, say so briefly.",
		Base: "Question: %s",
		ContextHeader: "Here are similar questions previously asked by other users, " +
			"with the answers the community agreed on:",
		ContextEntry: "- Q: %s A: %s",
	}
}

// normalize fills zero-valued fields from the default template.
func (t Template) normalize() Template {
	def := DefaultTemplate()
	if t.System == "" {
		t.System = def.System
	}
	if t.Base == "" {
		t.Base = def.Base
	}
	if t.ContextHeader == "" {
		t.ContextHeader = def.ContextHeader
	}
	if t.ContextEntry == "" {
		t.ContextEntry = def.ContextEntry
	}
	return t
}

// Assemble renders the prompt for one dispatch. With withContext=false, or
// with no neighbors, the result is the bare base prompt; otherwise the
// neighbor block precedes it in the order given (ascending distance as
// returned by the index). Only neighbor questions and crowd answers are
// rendered, never their images.
func Assemble(sample dataset.Sample, neighbors []vector.Result, withContext bool, tpl Template) string {
	tpl = tpl.normalize()

	base := fmt.Sprintf(tpl.Base, sample.Metadata.Question)

	if !withContext || len(neighbors) == 0 {
		return base
	}

	var b strings.Builder
	b.WriteString(tpl.ContextHeader)
	b.WriteString("\n")

	for _, n := range neighbors {
		question, _ := n.Metadata["question"].(string)
		answer, _ := n.Metadata["crowd_majority"].(string)
		b.WriteString(fmt.Sprintf(tpl.ContextEntry, question, answer))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(base)

	return b.String()
}

// SystemPrompt returns the template's system prompt, defaulted.
func SystemPrompt(tpl Template) string {
	return tpl.normalize().System
}
