package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlattenJoinsNestedKeysWithDash(t *testing.T) {
	in := map[string]interface{}{
		"server": map[string]interface{}{
			"host": "0.0.0.0",
			"port": 8080,
		},
		"debug": true,
	}
	out := Flatten(in)
	assert.Equal(t, "0.0.0.0", out["server-host"])
	assert.Equal(t, "8080", out["server-port"])
	assert.Equal(t, "true", out["debug"])
}

func TestCoerceRecognizesEachScalarKind(t *testing.T) {
	assert.Equal(t, true, coerce("on"))
	assert.Equal(t, true, coerce("true"))
	assert.Equal(t, false, coerce("off"))
	assert.Equal(t, 42, coerce("42"))
	assert.Equal(t, 0.5, coerce("0.5"))
	assert.Equal(t, []int{1, 2, 3}, coerce("[1, 2, 3]"))
	assert.Equal(t, []int{1, 2, 3}, coerce("(1, 2, 3)"))
	assert.Equal(t, "cpu", coerce("cpu"))
}

func TestRoundTripThroughFlattenAndSaveFromRequest(t *testing.T) {
	c := map[string]interface{}{
		"detection_default": map[string]interface{}{
			"target_fps":    10,
			"confidence":    0.25,
			"debug":         false,
			"classes_allow": []int{0, 1, 2},
		},
		"server": map[string]interface{}{
			"port": 8080,
		},
	}

	roundTripped := SaveFromRequest(Flatten(c))
	assert.Equal(t, c, roundTripped)
}
