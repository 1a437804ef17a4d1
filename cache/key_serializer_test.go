package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestDefaultKeySerializer(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	type compositeID struct {
		Kennel int64
		Tag    string
		secret string
	}

	value := int64(42)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")
	born := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{"no parts", nil, "breed"},
		{"int", []any{3}, joinWithSeparator("breed", "3")},
		{"int width does not matter", []any{int32(3)}, joinWithSeparator("breed", "3")},
		{"pointer is dereferenced", []any{&value}, joinWithSeparator("breed", "42")},
		{"nil pointer", []any{(*int64)(nil)}, joinWithSeparator("breed", "nil")},
		{"nil", []any{nil}, joinWithSeparator("breed", "nil")},
		{"string", []any{"collie"}, joinWithSeparator("breed", "collie")},
		{"multiple parts", []any{1, "a", true}, joinWithSeparator("breed", "1", "a", "true")},
		{"uuid uses text form", []any{id}, joinWithSeparator("breed", id.String())},
		{"time uses text form", []any{born}, joinWithSeparator("breed", "2024-05-01T12:00:00Z")},
		{"nil time pointer", []any{(*time.Time)(nil)}, joinWithSeparator("breed", "nil")},
		{"slice", []any{[]int{1, 2}}, joinWithSeparator("breed", "slice[2]:{1,2}")},
		{"nil slice", []any{([]int)(nil)}, joinWithSeparator("breed", "slice:nil")},
		{"array", []any{[2]string{"a", "b"}}, joinWithSeparator("breed", "array[2]:{a,b}")},
		{"map sorted", []any{map[string]int{"count": 10, "age": 25}}, joinWithSeparator("breed", "map[2]:{age=25,count=10}")},
		{"nil map", []any{(map[string]int)(nil)}, joinWithSeparator("breed", "map:nil")},
		{"composite struct skips unexported", []any{compositeID{Kennel: 1, Tag: "x", secret: "s"}}, joinWithSeparator("breed", "struct:{Kennel:1,Tag:x}")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("breed", tt.parts...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	parts := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3}}

	key1 := serializer.SerializeKey("dog", parts...)
	for i := 0; i < 20; i++ {
		if key := serializer.SerializeKey("dog", parts...); key != key1 {
			t.Fatalf("key serialization should be stable: %v != %v", key, key1)
		}
	}
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("breed", int64(i))
	}
}
