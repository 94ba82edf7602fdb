package render

import (
	"bytes"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{"json lowercase", "json", FormatJSON, false},
		{"json uppercase", "JSON", FormatJSON, false},
		{"table", "table", FormatTable, false},
		{"yaml", "yaml", FormatYAML, false},
		{"empty", "", "", false},
		{"invalid", "xml", "", true},
		{"csv is not a render format", "csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFormat(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseFormat(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if err != nil && !strings.Contains(err.Error(), "json, table, or yaml") {
				t.Errorf("error should list valid formats: %v", err)
			}
		})
	}
}

func render(t *testing.T, format Format, data any) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRendererWithWriter(format, true, &buf).Render(data); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	return buf.String()
}

func TestRenderer_JSON(t *testing.T) {
	got := render(t, FormatJSON, map[string]string{"path": "assets/a&b.jpg"})
	if !strings.Contains(got, `"path": "assets/a&b.jpg"`) {
		t.Errorf("JSON output = %s", got)
	}
}

func TestRenderer_YAML(t *testing.T) {
	got := render(t, FormatYAML, map[string]int{"total": 3})
	if strings.TrimSpace(got) != "total: 3" {
		t.Errorf("YAML output = %q", got)
	}
}

type summary struct {
	Name      string    `json:"name"`
	Total     int       `json:"total"`
	SizeMB    float64   `json:"size_mb"`
	Generated time.Time `json:"generated_at"`
	Tags      []string  `yaml:"tags"`
	hidden    string
}

func TestRenderer_Table_Struct(t *testing.T) {
	got := render(t, FormatTable, &summary{
		Name:      "images",
		Total:     42,
		SizeMB:    1.5,
		Generated: time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC),
		Tags:      []string{"a", "b"},
		hidden:    "secret",
	})

	for _, want := range []string{"name:", "images", "total:", "42", "size_mb:", "1.50", "2024-03-09T12:00:00Z", "tags:", "[2 items]"} {
		if !strings.Contains(got, want) {
			t.Errorf("table missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "secret") {
		t.Error("unexported fields must not be rendered")
	}
}

func TestRenderer_Table_Map_SortedKeys(t *testing.T) {
	got := render(t, FormatTable, map[string]int{"pdfs": 1, "images": 2})
	if strings.Index(got, "images") > strings.Index(got, "pdfs") {
		t.Errorf("keys should be sorted:\n%s", got)
	}
}

func TestRenderer_Table_Slice(t *testing.T) {
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	got := render(t, FormatTable, []item{{ID: "1", Name: "first"}, {ID: "2", Name: "second"}})

	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3:\n%s", len(lines), got)
	}
	if !strings.HasPrefix(lines[0], "id") || !strings.Contains(lines[0], "name") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.Contains(lines[2], "second") {
		t.Errorf("row = %q", lines[2])
	}
}

func TestRenderer_Table_SliceOfMaps(t *testing.T) {
	got := render(t, FormatTable, []map[string]any{{"b": 2, "a": 1}, {"a": 3}})
	lines := strings.Split(strings.TrimSpace(got), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "a") {
		t.Errorf("unexpected table:\n%s", got)
	}
}

func TestRenderer_Table_EmptySlice(t *testing.T) {
	if got := render(t, FormatTable, []string{}); !strings.Contains(got, "(no results)") {
		t.Errorf("empty slice output = %q", got)
	}
}

type tabular struct{}

func (tabular) Table() ([]string, [][]string) {
	return []string{"path", "size"}, [][]string{{"assets/a.jpg", "1.00"}}
}

func TestRenderer_Table_Tabular(t *testing.T) {
	got := render(t, FormatTable, tabular{})
	if !strings.Contains(got, "path") || !strings.Contains(got, "assets/a.jpg") {
		t.Errorf("tabular output = %s", got)
	}
}

func TestRenderer_NoColor_DoesNotAffectJSON(t *testing.T) {
	var color, plain bytes.Buffer
	data := map[string]string{"key": "value"}
	if err := NewRendererWithWriter(FormatJSON, false, &color).Render(data); err != nil {
		t.Fatal(err)
	}
	if err := NewRendererWithWriter(FormatJSON, true, &plain).Render(data); err != nil {
		t.Fatal(err)
	}
	if color.String() != plain.String() {
		t.Error("--no-color should not affect JSON output")
	}
}

func TestNewRenderer_DefaultsToJSONWhenNotATerminal(t *testing.T) {
	var buf bytes.Buffer
	app := &cli.App{Writer: &buf}
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("format", "", "")
	set.Bool("no-color", false, "")

	r, err := NewRenderer(cli.NewContext(app, set, nil))
	if err != nil {
		t.Fatal(err)
	}
	if r.Format() != FormatJSON {
		t.Errorf("format = %s, want json", r.Format())
	}

	if err := set.Set("format", "bogus"); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRenderer(cli.NewContext(app, set, nil)); err == nil {
		t.Error("expected error for invalid --format")
	}
}
