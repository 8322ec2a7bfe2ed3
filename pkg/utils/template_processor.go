// Package utils provides shared helpers for the automation engine.
package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var placeholderRe = regexp.MustCompile(`{{([^}]+)}}`)
var indexRe = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// ProcessTemplate expands {{path}} placeholders in a template against
// the given variables. Paths use dot notation ("client.name",
// "message.content") with optional array indexing ("items[0].id") and
// a fromjson pipe for string-encoded JSON values.
func ProcessTemplate(template string, variables map[string]interface{}) (string, error) {
	result := placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-2])
		parts := strings.Split(expr, "|")

		value := GetNestedValue(variables, strings.TrimSpace(parts[0]))

		for i := 1; i < len(parts); i++ {
			funcName := strings.TrimSpace(parts[i])

			if funcName == "fromjson" {
				strValue, ok := value.(string)
				if !ok {
					return "ERROR: fromjson requires string input"
				}
				var jsonValue interface{}
				if err := json.Unmarshal([]byte(strValue), &jsonValue); err != nil {
					return fmt.Sprintf("ERROR: %v", err)
				}
				value = jsonValue
			} else if strings.HasPrefix(funcName, ".") {
				propName := funcName[1:]
				mapValue, ok := value.(map[string]interface{})
				if !ok {
					return fmt.Sprintf("ERROR: cannot access property %s", propName)
				}
				value = mapValue[propName]
			}
		}

		if value == nil {
			return ""
		}
		return fmt.Sprintf("%v", value)
	})

	return result, nil
}

// GetNestedValue retrieves a nested value from a map using dot notation,
// e.g. "lead.status" or "messages[0].content". It returns nil when any
// path segment is missing.
func GetNestedValue(data map[string]interface{}, path string) interface{} {
	value, ok := walkPath(data, path)
	if !ok {
		return nil
	}
	return value
}

// HasNestedValue reports whether the dotted path resolves to a value
// present in the map, even if that value is nil-like (empty string, 0).
func HasNestedValue(data map[string]interface{}, path string) bool {
	_, ok := walkPath(data, path)
	return ok
}

// walkPath resolves a dotted path, with "[n]" array indexing, and
// reports whether every segment was present.
func walkPath(data map[string]interface{}, path string) (interface{}, bool) {
	var current interface{} = data

	for _, part := range strings.Split(path, ".") {
		if m := indexRe.FindStringSubmatch(part); m != nil {
			currentMap, ok := current.(map[string]interface{})
			if !ok {
				return nil, false
			}
			array, ok := currentMap[m[1]].([]interface{})
			if !ok {
				return nil, false
			}
			index := 0
			fmt.Sscanf(m[2], "%d", &index)
			if index < 0 || index >= len(array) {
				return nil, false
			}
			current = array[index]
			continue
		}

		currentMap, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		var present bool
		current, present = currentMap[part]
		if !present {
			return nil, false
		}
	}

	return current, true
}
