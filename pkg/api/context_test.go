package api_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/parleyhq/parley/pkg/api"
)

func TestContextSet(t *testing.T) {
	original := api.Context{
		"profile.name": "Asha",
	}

	result := original.Set("profile.gender", "female")

	assert.Equal(t, "female", result["profile.gender"])
	assert.Equal(t, "Asha", result["profile.name"])
	assert.NotContains(t,
		original, "profile.gender", "Set should not modify original Context",
	)
}

func TestContextSetNil(t *testing.T) {
	var c api.Context

	result := c.Set("key", "value")
	assert.Equal(t, "value", result["key"])
}

func TestContextMerge(t *testing.T) {
	original := api.Context{
		"profile.name": "Asha",
		"profile.tz":   "Asia/Kolkata",
	}

	result := original.Merge(api.Context{
		"profile.name":       "Asha K",
		"profile.birth_date": "1994-03-21",
	})

	assert.Equal(t, "Asha K", result["profile.name"])
	assert.Equal(t, "1994-03-21", result["profile.birth_date"])
	assert.Equal(t, "Asia/Kolkata", result["profile.tz"])
	assert.Equal(t, "Asha", original["profile.name"],
		"Merge should not modify original Context",
	)
}

func TestContextMergeEmpty(t *testing.T) {
	original := api.Context{"key": "value"}

	assert.Equal(t, original, original.Merge(nil))
	assert.Equal(t, original, original.Merge(api.Context{}))
}

func TestContextGetters(t *testing.T) {
	c := api.Context{
		"name":    "Asha",
		"count":   float64(3),
		"flag":    true,
		"blank":   "",
		"nothing": nil,
	}

	assert.Equal(t, "Asha", c.GetString("name", "default"))
	assert.Equal(t, "default", c.GetString("missing", "default"))
	assert.Equal(t, 3, c.GetInt("count", 0))
	assert.Equal(t, 7, c.GetInt("missing", 7))
	assert.True(t, c.GetBool("flag", false))
	assert.True(t, c.Has("name"))
	assert.False(t, c.Has("blank"))
	assert.False(t, c.Has("nothing"))
	assert.False(t, c.Has("missing"))
}

func TestContextHandoff(t *testing.T) {
	c := api.Context{
		api.HandoffKey: map[string]any{"return_to": "generate_report"},
	}

	payload, ok := c.Handoff()
	assert.True(t, ok)
	assert.Equal(t, "generate_report", payload["return_to"])

	_, ok = api.Context{}.Handoff()
	assert.False(t, ok)
}
