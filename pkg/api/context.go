package api

import "maps"

// Context is the mutable state a workflow instance carries between turns.
// Steps read it and propose updates through StepResult; they never mutate a
// loaded Context in place. Keys follow a dotted <area>.<field> convention
// (for example "profile.name" or "payment.link_url") so that steps sharing
// an instance do not collide
type Context map[string]any

// HandoffKey is the reserved context key carrying the payload passed across
// a jump between workflows. It is the only sanctioned cross-workflow channel
const HandoffKey = "_handoff"

// Set returns a new Context with the specified key-value pair added
func (c Context) Set(key string, value any) Context {
	if c == nil {
		return Context{key: value}
	}
	res := maps.Clone(c)
	res[key] = value
	return res
}

// Merge returns a new Context with the updates applied over the receiver.
// A nil update set returns the receiver unchanged
func (c Context) Merge(updates Context) Context {
	if len(updates) == 0 {
		return c
	}
	res := maps.Clone(c)
	if res == nil {
		res = Context{}
	}
	maps.Copy(res, updates)
	return res
}

// GetString retrieves a string value, returning defaultValue if the key is
// missing or holds a different type
func (c Context) GetString(key, defaultValue string) string {
	val, ok := c[key]
	if !ok {
		return defaultValue
	}
	str, ok := val.(string)
	if !ok {
		return defaultValue
	}
	return str
}

// GetBool retrieves a boolean value, returning defaultValue if the key is
// missing or holds a different type
func (c Context) GetBool(key string, defaultValue bool) bool {
	val, ok := c[key]
	if !ok {
		return defaultValue
	}
	b, ok := val.(bool)
	if !ok {
		return defaultValue
	}
	return b
}

// GetInt retrieves an integer value, returning defaultValue if the key is
// missing or holds a different type. Supports both int and float64
// (converting from JSON numbers)
func (c Context) GetInt(key string, defaultValue int) int {
	val, ok := c[key]
	if !ok {
		return defaultValue
	}
	if i, ok := val.(int); ok {
		return i
	}
	if f, ok := val.(float64); ok {
		return int(f)
	}
	return defaultValue
}

// Has reports whether the key is present with a non-nil, non-empty value
func (c Context) Has(key string) bool {
	val, ok := c[key]
	if !ok || val == nil {
		return false
	}
	if s, ok := val.(string); ok {
		return s != ""
	}
	return true
}

// Handoff returns the handoff payload seeded by a cross-workflow jump
func (c Context) Handoff() (map[string]any, bool) {
	val, ok := c[HandoffKey]
	if !ok {
		return nil, false
	}
	m, ok := val.(map[string]any)
	return m, ok
}
