package main

import (
	"testing"

	"google.golang.org/protobuf/types/known/structpb"
)

func TestResolveDevice(t *testing.T) {
	devices := []deviceRef{
		{ID: "ac-1", Label: "Living Room AC"},
		{ID: "ac-2", Label: "Bedroom"},
	}

	tests := []struct {
		input string
		want  string
	}{
		{"ac-2", "ac-2"},
		{"living room ac", "ac-1"},
		{"Living-Room-AC", "ac-1"},
		{"  BEDROOM ", "ac-2"},
	}
	for _, tt := range tests {
		got, err := resolveDevice(tt.input, devices)
		if err != nil {
			t.Fatalf("resolveDevice(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Fatalf("resolveDevice(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}

	if _, err := resolveDevice("kitchen", devices); err == nil {
		t.Fatal("expected not found error")
	}
}

func TestResolveDeviceAmbiguous(t *testing.T) {
	devices := []deviceRef{{ID: "a", Label: "AC"}, {ID: "b", Label: "ac"}}
	if _, err := resolveDevice("ac", devices); err == nil {
		t.Fatal("expected ambiguity error")
	}
}

func TestDevicesFromResponse(t *testing.T) {
	resp, err := structpb.NewStruct(map[string]any{"devices": []any{
		map[string]any{"id": "ac-1", "label": "Living Room AC", "name": "Samsung Floor A/C"},
		map[string]any{"id": "ac-2", "label": "", "name": "Samsung Floor A/C"},
	}})
	if err != nil {
		t.Fatal(err)
	}
	got := devicesFromResponse(resp)
	if len(got) != 2 || got[0].Label != "Living Room AC" || got[1].Label != "Samsung Floor A/C" {
		t.Fatalf("unexpected devices: %+v", got)
	}
}

func TestParsePower(t *testing.T) {
	if on, err := parsePower("ON"); err != nil || !on {
		t.Fatalf("parsePower(ON) = %v, %v", on, err)
	}
	if on, err := parsePower("off"); err != nil || on {
		t.Fatalf("parsePower(off) = %v, %v", on, err)
	}
	if _, err := parsePower("sideways"); err == nil {
		t.Fatal("expected error")
	}
}

func TestFormatValue(t *testing.T) {
	if got := formatValue(structpb.NewNumberValue(24.5)); got != "24.5" {
		t.Fatalf("got %q", got)
	}
	if got := formatValue(nil); got != "-" {
		t.Fatalf("got %q", got)
	}
	if got := formatValue(structpb.NewStringValue("")); got != "-" {
		t.Fatalf("got %q", got)
	}
}
