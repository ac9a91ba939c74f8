package utils

import (
	"reflect"
	"testing"
)

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("SNAPRAG_TEST_STR", "hub:3383")
	if got := EnvOrDefault("SNAPRAG_TEST_STR", "fallback"); got != "hub:3383" {
		t.Fatalf("got %q want %q", got, "hub:3383")
	}
	if got := EnvOrDefault("SNAPRAG_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("got %q want fallback", got)
	}
}

func TestEnvOrDefaultInt(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		fallback int
		want     int
	}{
		{"Parses", "42", 7, 42},
		{"Empty", "", 7, 7},
		{"Garbage", "not-a-number", 7, 7},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.value != "" {
				t.Setenv("SNAPRAG_TEST_INT", tc.value)
			}
			if got := EnvOrDefaultInt("SNAPRAG_TEST_INT", tc.fallback); got != tc.want {
				t.Fatalf("got %d want %d", got, tc.want)
			}
		})
	}
}

func TestParseShardIDs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []uint32
	}{
		{"Empty", "", nil},
		{"Single", "0", []uint32{0}},
		{"Multi", "0,1,2", []uint32{0, 1, 2}},
		{"Spaces", " 1 , 2 ", []uint32{1, 2}},
		{"SkipsGarbage", "1,x,3", []uint32{1, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseShardIDs(tc.in)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
