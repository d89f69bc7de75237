package sasl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	provided := Properties{"a": "1", "shared": "caller"}
	configured := Properties{"b": "2", "shared": "layer"}

	combined := Combine(provided, configured)

	for k := range combined {
		want, inConfigured := configured[k]
		if !inConfigured {
			want = provided[k]
		}
		assert.Equal(t, want, combined[k], "key %s", k)
	}
	assert.Len(t, combined, 3)

	assert.Equal(t, Properties{"a": "1", "shared": "caller"}, provided, "provided map untouched")
	assert.Equal(t, Properties{"b": "2", "shared": "layer"}, configured, "configured map untouched")

	combined["a"] = "mutated"
	assert.Equal(t, "1", provided["a"])
}

func TestCombine_NilInputs(t *testing.T) {
	assert.Empty(t, Combine(nil, nil))
	assert.NotNil(t, Combine(nil, nil))
	assert.Equal(t, Properties{"k": true}, Combine(nil, Properties{"k": true}))
}

func TestProperties_Accessors(t *testing.T) {
	p := Properties{
		"bool":      true,
		"boolstr":   " TRUE ",
		"garbage":   "maybe",
		"int":       7,
		"intstr":    "389",
		"float":     float64(636),
		"str":       "auth-conf",
		PropQOP:     "auth",
		"wrongtype": []string{"x"},
	}

	assert.True(t, p.Bool("bool"))
	assert.True(t, p.Bool("boolstr"))
	assert.False(t, p.Bool("garbage"))
	assert.False(t, p.Bool("missing"))

	n, ok := p.Int("int")
	assert.True(t, ok)
	assert.Equal(t, 7, n)
	n, ok = p.Int("intstr")
	assert.True(t, ok)
	assert.Equal(t, 389, n)
	n, ok = p.Int("float")
	assert.True(t, ok)
	assert.Equal(t, 636, n)
	_, ok = p.Int("wrongtype")
	assert.False(t, ok)

	s, ok := p.String(PropQOP)
	assert.True(t, ok)
	assert.Equal(t, "auth", s)
	_, ok = p.String("int")
	assert.False(t, ok)
}

func TestProperties_EqualAndHash(t *testing.T) {
	a := Properties{"x": "1", "y": 2, "list": []string{"a", "b"}}
	b := Properties{"list": []string{"a", "b"}, "y": 2, "x": "1"}

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Hash(), b.Hash())

	assert.True(t, Properties(nil).Equal(Properties{}))
	assert.Equal(t, Properties(nil).Hash(), Properties{}.Hash())

	tests := []struct {
		name  string
		other Properties
	}{
		{"DifferentValue", Properties{"x": "2", "y": 2, "list": []string{"a", "b"}}},
		{"DifferentType", Properties{"x": "1", "y": "2", "list": []string{"a", "b"}}},
		{"MissingKey", Properties{"x": "1", "y": 2}},
		{"ExtraKey", Properties{"x": "1", "y": 2, "list": []string{"a", "b"}, "z": 0}},
		{"DifferentSlice", Properties{"x": "1", "y": 2, "list": []string{"b", "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, a.Equal(tt.other))
			assert.False(t, tt.other.Equal(a))
		})
	}
}

func TestProperties_Clone(t *testing.T) {
	p := Properties{"k": "v"}
	c := p.Clone()
	c["k"] = "changed"
	assert.Equal(t, "v", p["k"])
	assert.NotNil(t, Properties(nil).Clone())
}
