package styles

import (
	"strings"
	"testing"
)

func TestRenderMarkdown(t *testing.T) {
	md := "# gta5\n\n| function | start |\n|---|---|\n| main | 000000 |\n"
	out := RenderMarkdown(md, 60)
	if !strings.Contains(out, "gta5") || !strings.Contains(out, "main") {
		t.Errorf("rendered output lost content:\n%s", out)
	}
}
