// Package valuetest generates arbitrary values for property tests.
package valuetest

import (
	"math/rand"
	"reflect"
	"strings"

	"rigz/pkg/value"
)

// MaxDepth bounds the nesting of generated values.
const MaxDepth = 4

// Arbitrary wraps a Value so testing/quick can generate it.
type Arbitrary struct {
	V value.Value
}

func (Arbitrary) Generate(r *rand.Rand, size int) reflect.Value {
	return reflect.ValueOf(Arbitrary{V: Random(r, MaxDepth)})
}

var alphabet = []rune("abcdefghijklmnopqrstuvwxyz ABC_.-0123456789éü✓日本")

// String returns a valid UTF-8 string of up to 12 runes.
func String(r *rand.Rand) string {
	n := r.Intn(13)
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteRune(alphabet[r.Intn(len(alphabet))])
	}
	return sb.String()
}

// Random builds a value tree no deeper than depth. Floating point values
// are quarter steps so they survive decimal text formats exactly.
func Random(r *rand.Rand, depth int) value.Value {
	kinds := 8
	if depth > 0 {
		kinds = 13
	}
	switch r.Intn(kinds) {
	case 0:
		return value.None()
	case 1:
		return value.Int(r.Int31() - r.Int31())
	case 2:
		return value.Long(r.Int63() - r.Int63())
	case 3:
		return value.Float(float32(r.Intn(4000)-2000) / 4)
	case 4:
		return value.Double(float64(r.Intn(400000)-200000) / 4)
	case 5:
		return value.Bool(r.Intn(2) == 1)
	case 6:
		return value.String(String(r))
	case 7:
		if r.Intn(2) == 0 {
			return value.Error(String(r))
		}
		return value.FileRef(value.File{Path: String(r), Format: String(r)})
	case 8:
		return value.Object(randomFields(r, depth-1))
	case 9:
		return value.List(randomItems(r, depth-1))
	case 10:
		fc := value.NewCall(String(r), randomItems(r, depth-1)...)
		return value.Call(fc.WithDefinition(RandomDefinition(r, depth-1)))
	case 11:
		return value.Def(RandomDefinition(r, depth-1))
	default:
		return value.String(String(r))
	}
}

func RandomDefinition(r *rand.Rand, depth int) value.Definition {
	switch r.Intn(3) {
	case 1:
		return value.One(randomFields(r, depth))
	case 2:
		return value.Many(randomItems(r, depth))
	}
	return value.NoDefinition()
}

func randomFields(r *rand.Rand, depth int) map[string]value.Value {
	n := r.Intn(4)
	m := make(map[string]value.Value, n)
	for i := 0; i < n; i++ {
		m[String(r)] = Random(r, depth)
	}
	return m
}

func randomItems(r *rand.Rand, depth int) []value.Value {
	items := make([]value.Value, r.Intn(4))
	for i := range items {
		items[i] = Random(r, depth)
	}
	return items
}
