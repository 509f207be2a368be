package output

import (
	"bytes"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

func newTestRenderer(mode OutputMode, isTTY bool) (*Renderer, *bytes.Buffer, *bytes.Buffer) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	return NewRendererWithTTY(out, errOut, isTTY, mode), out, errOut
}

func TestMode(t *testing.T) {
	tests := map[string]OutputMode{
		"":         ModeAuto,
		"auto":     ModeAuto,
		"TEXT":     ModeText,
		"markdown": ModeMarkdown,
		"md":       ModeMarkdown,
		" json ":   ModeJSON,
		"yaml":     ModeAuto,
	}
	for in, want := range tests {
		assert.Equal(t, want, Mode(in), in)
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode(" Markdown ")
	require.NoError(t, err)
	assert.Equal(t, ModeMarkdown, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	_, err = ParseMode("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"xml"`)
	assert.Contains(t, err.Error(), "auto, text, markdown, json")
}

func TestRenderer_EffectiveMode(t *testing.T) {
	tests := []struct {
		mode  OutputMode
		isTTY bool
		want  OutputMode
	}{
		{ModeAuto, true, ModeText},
		{ModeAuto, false, ModeMarkdown},
		{ModeText, false, ModeText},
		{ModeJSON, true, ModeJSON},
		{ModeMarkdown, true, ModeMarkdown},
	}
	for _, tt := range tests {
		r, _, _ := newTestRenderer(tt.mode, tt.isTTY)
		assert.Equal(t, tt.want, r.EffectiveMode(), "%s tty=%v", tt.mode, tt.isTTY)
	}
}

func TestRenderer_MarkdownHasNoANSI(t *testing.T) {
	r, out, errOut := newTestRenderer(ModeAuto, false)

	r.Header(1, "Networks")
	r.StatusLine("development", "success", "http://127.0.0.1:7545")
	r.StatusLine("staging", "error", "unreachable")
	r.KeyValues([][2]string{{"network_id", "*"}, {"solc", "0.8.0"}})
	r.Table([]string{"Name", "Endpoint"}, [][]string{{"development", "http://127.0.0.1:7545"}})
	r.Success("done")
	r.Warning("careful")

	text := out.String() + errOut.String()
	assert.False(t, ansiPattern.MatchString(text), text)
	assert.Contains(t, out.String(), "# Networks")
	assert.Contains(t, out.String(), "- [ok] development http://127.0.0.1:7545")
	assert.Contains(t, out.String(), "- **network_id**: *")
	assert.Contains(t, out.String(), "| Name | Endpoint |")
	assert.Contains(t, errOut.String(), "[warn] careful")
}

func TestRenderer_TextTable(t *testing.T) {
	r, out, _ := newTestRenderer(ModeText, false)
	r.Table([]string{"Course", "Label"}, [][]string{{"Reti", "Registrazione"}})

	assert.Contains(t, out.String(), "Reti")
	assert.Contains(t, out.String(), "┌")
}

func TestRenderer_JSON(t *testing.T) {
	r, out, _ := newTestRenderer(ModeJSON, false)
	require.NoError(t, r.JSON(map[string]int{"registrations": 3}))

	var got map[string]int
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, 3, got["registrations"])
}

func TestFormatHeaderAndTitle(t *testing.T) {
	assert.Equal(t, "# A", FormatHeader(0, "A"))
	assert.Equal(t, "### A", FormatHeader(3, "A"))
	assert.Equal(t, "Development", Title("development"))
}

func TestRenderer_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	r, _, _ := newTestRenderer(ModeText, true)
	assert.Equal(t, "done", r.Styles().Success.Render("done"))
}
