package phone

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"333 1234567", "3331234567"},
		{"+39 333-123.4567", "393331234567"},
		{"(333) 1234567", "3331234567"},
		{"3331234567", "3331234567"},
		{"abc", ""},
		{"", ""},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "input %q", c.in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"+39 333 123 4567", "333-1234567", "", "no digits", "3"}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}
