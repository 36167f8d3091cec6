package config

import (
	"strconv"
	"strings"
)

// pathSeparator joins nested keys into one form field name, per the
// specification's form-saving convention.
const pathSeparator = "-"

// Flatten converts a nested settings map into form field names using
// pathSeparator, the inverse of SaveFromRequest. Used to edit an arbitrary
// branch of the configuration document (the "form" block) as an HTML form.
func Flatten(v map[string]interface{}) map[string]string {
	out := make(map[string]string)
	flattenInto(out, "", v)
	return out
}

func flattenInto(out map[string]string, prefix string, v map[string]interface{}) {
	for k, val := range v {
		key := k
		if prefix != "" {
			key = prefix + pathSeparator + k
		}
		switch t := val.(type) {
		case map[string]interface{}:
			flattenInto(out, key, t)
		case []int:
			parts := make([]string, len(t))
			for i, n := range t {
				parts[i] = strconv.Itoa(n)
			}
			out[key] = "[" + strings.Join(parts, ", ") + "]"
		case bool:
			out[key] = strconv.FormatBool(t)
		case int:
			out[key] = strconv.Itoa(t)
		case float64:
			out[key] = strconv.FormatFloat(t, 'g', -1, 64)
		case string:
			out[key] = t
		default:
			out[key] = strconv.Quote("")
		}
	}
}

// SaveFromRequest reconstructs a nested settings map from flattened form
// field names, coercing each scalar value per the specification: integer,
// float, boolean (on/off/true/false), a bracketed/parenthesized list of
// integers, else string.
func SaveFromRequest(form map[string]string) map[string]interface{} {
	out := make(map[string]interface{})
	for key, raw := range form {
		path := strings.Split(key, pathSeparator)
		setNested(out, path, coerce(raw))
	}
	return out
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	if len(path) == 1 {
		m[path[0]] = value
		return
	}
	next, ok := m[path[0]].(map[string]interface{})
	if !ok {
		next = make(map[string]interface{})
		m[path[0]] = next
	}
	setNested(next, path[1:], value)
}

// coerce applies the specification's scalar-coercion order: boolean
// literal, integer, float, bracketed/parenthesized integer list, else the
// raw string.
func coerce(raw string) interface{} {
	switch raw {
	case "on", "true":
		return true
	case "off", "false":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	if list, ok := parseIntList(raw); ok {
		return list
	}
	return raw
}

func parseIntList(raw string) ([]int, bool) {
	isList := strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]")
	isTuple := strings.HasPrefix(raw, "(") && strings.HasSuffix(raw, ")")
	if !isList && !isTuple {
		return nil, false
	}

	inner := strings.TrimSpace(raw[1 : len(raw)-1])
	if inner == "" {
		return []int{}, true
	}

	items := strings.Split(inner, ",")
	out := make([]int, 0, len(items))
	for _, item := range items {
		n, err := strconv.Atoi(strings.TrimSpace(item))
		if err != nil {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
