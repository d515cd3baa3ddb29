package main

import (
	"testing"

	"github.com/edgeflow/ambientled/internal/instance"
)

func TestPickWireInstanceNamed(t *testing.T) {
	instances := map[string]*instance.Instance{
		"living-room": nil,
		"kitchen":     nil,
	}
	got := pickWireInstance(instances, "kitchen")
	if _, ok := instances["kitchen"]; !ok {
		t.Fatalf("kitchen should exist in the map")
	}
	if got != instances["kitchen"] {
		t.Fatalf("expected the named instance to be picked")
	}
}

func TestPickWireInstanceDefaultsToFirstLexicographically(t *testing.T) {
	a := &instance.Instance{}
	b := &instance.Instance{}
	instances := map[string]*instance.Instance{
		"zzz": a,
		"aaa": b,
	}
	got := pickWireInstance(instances, "")
	if got != b {
		t.Fatalf("expected the lexicographically first instance (aaa) to be picked")
	}
}

func TestPickWireInstanceEmptyMap(t *testing.T) {
	if got := pickWireInstance(map[string]*instance.Instance{}, ""); got != nil {
		t.Fatalf("expected nil for an empty instance map, got %v", got)
	}
}
