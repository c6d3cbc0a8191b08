// Package notify delivers failed-run summaries over email and Telegram.
package notify

import (
	"fmt"
	"strings"

	"github.com/lohithk/tallysync/internal/domain"
)

// Summary renders the human-readable message shared by every channel.
func Summary(run domain.SyncRun) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sync run %s finished with status %s\n", run.ID, run.Status)
	fmt.Fprintf(&b, "Started: %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if !run.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "Finished: %s\n", run.FinishedAt.Format("2006-01-02 15:04:05"))
	}
	for _, o := range run.Outcomes {
		if !o.Failed() {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", o.RecordType, o.Error)
	}
	if run.Error != "" {
		fmt.Fprintf(&b, "%s\n", run.Error)
	}
	return b.String()
}
