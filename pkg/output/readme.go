package output

import (
	"fmt"
	"strings"

	"github.com/polisai/huntgen/pkg/domain"
)

// Readme renders the README placed in each scenario folder.
func Readme(scenario string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# huntgen dataset: %s\n\n", scenario)
	b.WriteString("Synthetic Defender XDR style telemetry: a benign employee population with an\n")
	b.WriteString("attack chain woven into it, plus question/answer pairs for hunting exercises.\n\n")
	b.WriteString("## Layout\n\n")
	b.WriteString("| Path | Contents |\n|---|---|\n")
	fmt.Fprintf(&b, "| `%s/` | benign tables, one CSV per table |\n", BenignDir)
	b.WriteString("| `<stage>/` | fragments emitted by each completed attack stage |\n")
	fmt.Fprintf(&b, "| `%s/` | unified tables: benign and attack rows merged and sorted by Timestamp |\n", CombinedDir)
	fmt.Fprintf(&b, "| `%s/%s` | the unified tables as a SQLite database |\n", CombinedDir, UnifiedDBFile)
	fmt.Fprintf(&b, "| `%s`, `%s` | deduplicated hunting questions and answers |\n", QACSVFile, QAJSONFile)
	fmt.Fprintf(&b, "| `%s` | per-stage outcome of the run |\n", ManifestFile)
	fmt.Fprintf(&b, "| `%s` | run counters in Prometheus text format |\n\n", MetricsFile)
	b.WriteString("## Attack chain\n\nStages run in this order; a stage without victims from earlier stages is skipped.\n\n")
	for i, stage := range domain.StageOrder {
		fmt.Fprintf(&b, "%d. %s\n", i+1, stage)
	}
	b.WriteString("\nEvery table shares the `Timestamp` column. Each combined table keeps the columns\n")
	b.WriteString("of the first fragment written for it; later fragments are conformed to that schema.\n")
	return b.String()
}
