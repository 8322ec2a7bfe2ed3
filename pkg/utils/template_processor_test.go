package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessTemplate(t *testing.T) {
	variables := map[string]interface{}{
		"client": map[string]interface{}{
			"name":  "Ana",
			"email": "ana@example.com",
		},
		"lead": map[string]interface{}{
			"source": "website",
		},
		"items": []interface{}{
			map[string]interface{}{"id": "first"},
			map[string]interface{}{"id": "second"},
		},
		"payload": `{"nested": {"key": "value"}}`,
	}

	cases := []struct {
		name     string
		template string
		want     string
	}{
		{"simple path", "Hi {{client.name}}!", "Hi Ana!"},
		{"two placeholders", "{{client.name}} <{{client.email}}>", "Ana <ana@example.com>"},
		{"missing path renders empty", "x{{client.phone}}x", "xx"},
		{"missing root renders empty", "x{{nothing.here}}x", "xx"},
		{"array index", "{{items[1].id}}", "second"},
		{"out of range index", "[{{items[5].id}}]", "[]"},
		{"fromjson pipe", "{{payload | fromjson | .nested | .key}}", "value"},
		{"no placeholders", "plain text", "plain text"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ProcessTemplate(tc.template, variables)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"a": map[string]interface{}{
			"b": map[string]interface{}{
				"c": 42,
			},
			"empty": "",
		},
	}

	assert.Equal(t, 42, GetNestedValue(data, "a.b.c"))
	assert.Equal(t, "", GetNestedValue(data, "a.empty"))
	assert.Nil(t, GetNestedValue(data, "a.b.missing"))
	assert.Nil(t, GetNestedValue(data, "a.b.c.deeper"))
}

func TestHasNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"client": map[string]interface{}{
			"name":  "",
			"phone": nil,
		},
	}

	// Presence, not truthiness
	assert.True(t, HasNestedValue(data, "client.name"))
	assert.True(t, HasNestedValue(data, "client.phone"))
	assert.True(t, HasNestedValue(data, "client"))
	assert.False(t, HasNestedValue(data, "client.email"))
	assert.False(t, HasNestedValue(data, "lead.source"))
}

func TestHasNestedValueIndexedPaths(t *testing.T) {
	data := map[string]interface{}{
		"items": []interface{}{
			map[string]interface{}{"id": "i-1"},
		},
	}

	// Indexed paths resolve the same way GetNestedValue does
	assert.True(t, HasNestedValue(data, "items[0]"))
	assert.True(t, HasNestedValue(data, "items[0].id"))
	assert.False(t, HasNestedValue(data, "items[0].name"))
	assert.False(t, HasNestedValue(data, "items[1].id"))
	assert.False(t, HasNestedValue(data, "missing[0]"))
}
