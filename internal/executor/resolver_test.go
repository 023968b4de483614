package executor

import (
	"reflect"
	"testing"
)

func TestInterpolateTemplate(t *testing.T) {
	scope := map[string]any{
		"name": "Ada",
		"block1": map[string]any{
			"response": map[string]any{"count": float64(3)},
		},
	}

	cases := []struct {
		template string
		want     string
	}{
		{"hello {{name}}", "hello Ada"},
		{"count is {{block1.response.count}}", "count is 3"},
		{"missing {{nope.deep}}", "missing {{nope.deep}}"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := InterpolateTemplate(tc.template, scope); got != tc.want {
			t.Errorf("InterpolateTemplate(%q) = %q, want %q", tc.template, got, tc.want)
		}
	}
}

func TestWholeStringTemplateKeepsRawValue(t *testing.T) {
	scope := map[string]any{
		"block1": map[string]any{"items": []any{"a", "b"}},
	}
	got := resolveValue("{{block1.items}}", scope)
	want := []any{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("whole-string template = %#v, want raw slice %#v", got, want)
	}

	// Embedded templates stringify instead.
	if got := resolveValue("items: {{block1.items}}", scope); got != `items: ["a","b"]` {
		t.Errorf("embedded template = %#v", got)
	}
}

func TestResolvePathIndexing(t *testing.T) {
	data := map[string]any{
		"items": []any{
			map[string]any{"name": "first"},
			map[string]any{"name": "second"},
		},
	}

	if got := ResolvePath(data, "items[1].name"); got != "second" {
		t.Errorf("bracket index = %v, want second", got)
	}
	if got := ResolvePath(data, "items.0.name"); got != "first" {
		t.Errorf("dot index = %v, want first", got)
	}
	if got := ResolvePath(data, "items[9].name"); got != nil {
		t.Errorf("out of range = %v, want nil", got)
	}
	if got := ResolvePath(data, "items[x]"); got != nil {
		t.Errorf("bad index = %v, want nil", got)
	}
}

func TestNormalizeName(t *testing.T) {
	cases := map[string]string{
		"Search News":   "search-news",
		"  Fetch  Data": "fetch-data",
		"plain":         "plain",
	}
	for in, want := range cases {
		if got := normalizeName(in); got != want {
			t.Errorf("normalizeName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestStripTemplateBraces(t *testing.T) {
	if got := StripTemplateBraces("{{ block1.response }}"); got != "block1.response" {
		t.Errorf("got %q", got)
	}
	if got := StripTemplateBraces("block1.response"); got != "block1.response" {
		t.Errorf("non-template changed: %q", got)
	}
}
