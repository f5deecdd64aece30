// pkg/entity/equal.go

package entity

// FieldEqual compares one top-level field value under the schema's
// comparison rules: exact value equality, recursive for nested maps and
// lists, order-insensitive for maps, order-sensitive for lists unless the
// field is schema-tagged as a set.
func FieldEqual(schema Schema, field string, a, b any) bool {
	if schema.IsSet(field) {
		la, aok := a.([]any)
		lb, bok := b.([]any)
		if aok && bok {
			return setEqual(la, lb)
		}
	}
	return ValueEqual(a, b)
}

// FieldsEqual reports whether two field sets are identical under the schema.
func FieldsEqual(schema Schema, a, b Fields) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || !FieldEqual(schema, k, av, bv) {
			return false
		}
	}
	return true
}

// ValueEqual is deep value equality: maps compare key-by-key, lists
// compare element-by-element in order, scalars compare after numeric
// normalization (YAML and JSON decoders disagree on int vs float).
func ValueEqual(a, b any) bool {
	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, nested := range av {
			other, ok := bv[k]
			if !ok || !ValueEqual(nested, other) {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !ValueEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	default:
		return scalarEqual(a, b)
	}
}

func setEqual(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	matched := make([]bool, len(b))
outer:
	for _, av := range a {
		for i, bv := range b {
			if matched[i] {
				continue
			}
			if ValueEqual(av, bv) {
				matched[i] = true
				continue outer
			}
		}
		return false
	}
	return true
}

func scalarEqual(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
