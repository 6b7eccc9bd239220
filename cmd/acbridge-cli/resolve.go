package main

import (
	"fmt"
	"sort"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
)

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	name = replacer.Replace(name)
	for strings.Contains(name, "__") {
		name = strings.ReplaceAll(name, "__", "_")
	}
	return name
}

type deviceRef struct {
	ID    string
	Label string
}

func devicesFromResponse(resp *structpb.Struct) []deviceRef {
	var out []deviceRef
	for _, v := range resp.GetFields()["devices"].GetListValue().GetValues() {
		f := v.GetStructValue().GetFields()
		label := f["label"].GetStringValue()
		if label == "" {
			label = f["name"].GetStringValue()
		}
		out = append(out, deviceRef{ID: f["id"].GetStringValue(), Label: label})
	}
	return out
}

// resolveDevice matches an exact device ID first, then a normalized label.
func resolveDevice(input string, devices []deviceRef) (string, error) {
	for _, d := range devices {
		if d.ID == input {
			return d.ID, nil
		}
	}
	needle := normalizeName(input)
	var matches []string
	for _, d := range devices {
		if normalizeName(d.Label) == needle {
			matches = append(matches, d.ID)
		}
	}
	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		available := make([]string, 0, len(devices))
		for _, d := range devices {
			available = append(available, d.Label)
		}
		sort.Strings(available)
		return "", fmt.Errorf("device %q not found. Available: %s", input, strings.Join(available, ", "))
	default:
		return "", fmt.Errorf("device %q is ambiguous; use one of: %s", input, strings.Join(matches, ", "))
	}
}
