package cli

import (
	"fmt"
	"io"
)

type detail struct {
	key   string
	value any
}

// Result is a single-message result with optional details.
// Created via Output.Result().
type Result struct {
	out     *Output
	meta    Meta
	message string
	details []detail
}

// With adds a detail key-value pair. Details render in insertion order.
func (r *Result) With(key string, value any) *Result {
	r.details = append(r.details, detail{key, value})
	return r
}

// Render outputs the result in the configured format.
func (r *Result) Render() error {
	return r.out.Render(r)
}

// Meta returns the metadata.
func (r *Result) Meta() Meta {
	return r.meta
}

// RenderText writes the message and indented details.
func (r *Result) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, r.message); err != nil {
		return err
	}
	width := 0
	for _, d := range r.details {
		if len(d.key) > width {
			width = len(d.key)
		}
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "  %-*s  %v\n", width+1, d.key+":", d.value); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON returns message and details as one object.
func (r *Result) RenderJSON() any {
	result := make(map[string]any, len(r.details)+1)
	result["message"] = r.message
	for _, d := range r.details {
		result[toJSONKey(d.key)] = d.value
	}
	return result
}

// RenderMarkdown writes the message in bold followed by a detail list.
func (r *Result) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "**%s**\n\n", r.message); err != nil {
		return err
	}
	for _, d := range r.details {
		if _, err := fmt.Fprintf(w, "- **%s:** %s\n", d.key, formatMarkdownValue(d.value)); err != nil {
			return err
		}
	}
	return nil
}

// Error is a structured error result, used for failed invocations.
// Created via Output.Error().
type Error struct {
	out     *Output
	meta    Meta
	err     error
	code    string
	details []detail
}

// WithCode sets an error code, such as a validation reason.
func (e *Error) WithCode(code string) *Error {
	e.code = code
	return e
}

// With adds a detail key-value pair.
func (e *Error) With(key string, value any) *Error {
	e.details = append(e.details, detail{key, value})
	return e
}

// Render outputs the error in the configured format.
func (e *Error) Render() error {
	return e.out.Render(e)
}

// Meta returns the metadata.
func (e *Error) Meta() Meta {
	return e.meta
}

func (e *Error) heading() string {
	if e.code != "" {
		return fmt.Sprintf("Error [%s]: %v", e.code, e.err)
	}
	return fmt.Sprintf("Error: %v", e.err)
}

// RenderText writes the error.
func (e *Error) RenderText(w io.Writer) error {
	if _, err := fmt.Fprintln(w, e.heading()); err != nil {
		return err
	}
	for _, d := range e.details {
		if _, err := fmt.Fprintf(w, "  %s: %v\n", d.key, d.value); err != nil {
			return err
		}
	}
	return nil
}

// RenderJSON returns the error as an object.
func (e *Error) RenderJSON() any {
	result := map[string]any{"error": e.err.Error()}
	if e.code != "" {
		result["code"] = e.code
	}
	for _, d := range e.details {
		result[toJSONKey(d.key)] = d.value
	}
	return result
}

// RenderMarkdown writes the error as a block quote.
func (e *Error) RenderMarkdown(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "> **%s**\n", e.heading()); err != nil {
		return err
	}
	if len(e.details) > 0 {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}
	for _, d := range e.details {
		if _, err := fmt.Fprintf(w, "- %s: %v\n", d.key, d.value); err != nil {
			return err
		}
	}
	return nil
}
