package completion

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractObject(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"prose wrapper", `Sure! {"a":1} Hope this helps.`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`, true},
		{"brace in string", `note {"a":"}{"} tail`, `{"a":"}{"}`, true},
		{"nested", `x {"a":{"b":[1,2]}} y {"c":2}`, `{"a":{"b":[1,2]}}`, true},
		{"skips broken first span", `{oops} then {"a":1}`, `{"a":1}`, true},
		{"no object", `no json here`, "", false},
		{"unterminated", `{"a":1`, "", false},
		{"array only", `[1,2,3]`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ExtractObject(tc.in)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}
