package web

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/courseimport/internal/core"
)

func render(t *testing.T, c templ.Component) string {
	t.Helper()
	var b strings.Builder
	require.NoError(t, c.Render(context.Background(), &b))
	return b.String()
}

func TestErrorList_CapsEntries(t *testing.T) {
	errs := make([]string, maxReportErrors+5)
	for i := range errs {
		errs[i] = fmt.Sprintf("e%d", i)
	}

	html := render(t, errorList(errs))
	assert.Contains(t, html, fmt.Sprintf("Errors (%d)", len(errs)))
	assert.Equal(t, maxReportErrors+1, strings.Count(html, "<li>"))
	assert.Contains(t, html, "... and 5 more")

	assert.Empty(t, render(t, errorList(nil)))
}

func TestVerdictSection_DryRun(t *testing.T) {
	html := render(t, verdictSection(core.Outcome{Policy: "zero-errors", Success: true, Stats: core.Stats{RunID: "r", DryRun: true}}))
	assert.Contains(t, html, `class="succeeded"`)
	assert.Contains(t, html, "Dry run:")
}

func TestReportPage_Sections(t *testing.T) {
	html := render(t, reportPage(core.Outcome{Stats: core.Stats{RunID: "r", DuplicateLessons: 3}}, true))
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.True(t, strings.HasSuffix(html, "</body></html>"))
	assert.Contains(t, html, "<tr><th>Duplicate lessons</th><td>3</td></tr>")
	assert.NotContains(t, html, "<h2>Errors")
}
