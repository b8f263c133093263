package web

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/a-h/templ"

	"github.com/JonMunkholm/courseimport/internal/core"
)

// maxReportErrors caps the errors listed on the report page.
const maxReportErrors = 20

// reportPage renders the last import outcome as a small HTML page.
func reportPage(out core.Outcome, ok bool) templ.Component {
	if !ok {
		return reportLayout(noRunNotice())
	}
	return reportLayout(templ.Join(
		verdictSection(out),
		statsTable(out.Stats),
		errorList(out.Stats.Errors),
	))
}

func reportLayout(body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<!DOCTYPE html><html><head><meta charset="utf-8"><title>Course import</title></head><body><h1>Course import</h1>`); err != nil {
			return err
		}
		if err := body.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</body></html>`)
		return err
	})
}

func noRunNotice() templ.Component {
	return templ.Raw(`<p>No import has run since the server started.</p>`)
}

func verdictSection(out core.Outcome) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		verdict := "failed"
		if out.Success {
			verdict = "succeeded"
		}
		if _, err := fmt.Fprintf(w, `<p id="verdict" class="%s">Run %s %s under the %s policy.</p>`,
			verdict, templ.EscapeString(out.Stats.RunID), verdict, templ.EscapeString(out.Policy)); err != nil {
			return err
		}
		if !out.Stats.DryRun {
			return nil
		}
		_, err := io.WriteString(w, `<p><strong>Dry run:</strong> nothing was written.</p>`)
		return err
	})
}

func statsTable(s core.Stats) templ.Component {
	rows := templ.Join(
		statRow("Schema", s.Schema),
		statRow("Courses", fmt.Sprintf("%d/%d", s.CoursesProcessed, s.CoursesTotal)),
		statRow("Lessons", fmt.Sprintf("%d/%d", s.LessonsProcessed, s.LessonsTotal)),
		statRow("Lessons skipped", s.LessonsSkipped),
		statRow("Duplicate lessons", s.DuplicateLessons),
		statRow("Rows dropped", s.DroppedRows),
		statRow("Orphaned lessons", s.OrphanedLessons),
		statRow("Unnamed lessons", s.UnnamedLessons),
		statRow("Duration (s)", s.DurationSeconds),
		statRow("Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")),
	)
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, `<table>`); err != nil {
			return err
		}
		if err := rows.Render(ctx, w); err != nil {
			return err
		}
		_, err := io.WriteString(w, `</table>`)
		return err
	})
}

func statRow(label string, v any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		_, err := fmt.Fprintf(w, `<tr><th>%s</th><td>%s</td></tr>`,
			templ.EscapeString(label), templ.EscapeString(fmt.Sprint(v)))
		return err
	})
}

// errorList shows the first maxReportErrors errors and a count of the rest.
func errorList(errs []string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		n := len(errs)
		if n == 0 {
			return nil
		}
		if _, err := fmt.Fprintf(w, `<h2>Errors (%d)</h2><ul>`, n); err != nil {
			return err
		}
		for _, e := range errs[:min(n, maxReportErrors)] {
			if _, err := fmt.Fprintf(w, `<li>%s</li>`, templ.EscapeString(e)); err != nil {
				return err
			}
		}
		if n > maxReportErrors {
			if _, err := fmt.Fprintf(w, `<li>... and %d more</li>`, n-maxReportErrors); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, `</ul>`)
		return err
	})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	out, ok := s.lastOutcome()
	templ.Handler(reportPage(out, ok)).ServeHTTP(w, r)
}
