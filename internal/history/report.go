package history

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Summary aggregates history entries for one workflow.
type Summary struct {
	Workflow      string  `json:"workflow"`
	Total         int     `json:"total"`
	Rendered      int     `json:"rendered"`
	Failed        int     `json:"failed"`
	Superseded    int     `json:"superseded"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS int64   `json:"avg_duration_ms"`
}

// Summarize groups entries by workflow, sorted by workflow name.
func Summarize(entries []Entry) []Summary {
	byWorkflow := make(map[string]*Summary)
	durations := make(map[string]int64)

	for _, e := range entries {
		s, ok := byWorkflow[e.Workflow]
		if !ok {
			s = &Summary{Workflow: e.Workflow}
			byWorkflow[e.Workflow] = s
		}
		s.Total++
		durations[e.Workflow] += e.DurationMS
		switch e.Outcome {
		case OutcomeRendered:
			s.Rendered++
		case OutcomeFailed:
			s.Failed++
		case OutcomeSuperseded:
			s.Superseded++
		}
	}

	summaries := make([]Summary, 0, len(byWorkflow))
	for name, s := range byWorkflow {
		s.AvgDurationMS = durations[name] / int64(s.Total)
		if finished := s.Rendered + s.Failed; finished > 0 {
			s.SuccessRate = float64(s.Rendered) / float64(finished)
		}
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Workflow < summaries[j].Workflow
	})
	return summaries
}

// WriteReport prints summaries as text, json or csv.
func WriteReport(w io.Writer, summaries []Summary, format string) error {
	switch format {
	case "text":
		return writeTextReport(w, summaries)
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(summaries)
	case "csv":
		return writeCSVReport(w, summaries)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeTextReport(w io.Writer, summaries []Summary) error {
	fmt.Fprintln(w, "========================================")
	fmt.Fprintln(w, "Transform History Report")
	fmt.Fprintln(w, "========================================")
	if len(summaries) == 0 {
		_, err := fmt.Fprintln(w, "No transforms recorded.")
		return err
	}

	for _, s := range summaries {
		fmt.Fprintf(w, "\n%s\n", s.Workflow)
		fmt.Fprintf(w, "  Submissions:  %d\n", s.Total)
		fmt.Fprintf(w, "  Rendered:     %d\n", s.Rendered)
		fmt.Fprintf(w, "  Failed:       %d\n", s.Failed)
		fmt.Fprintf(w, "  Superseded:   %d\n", s.Superseded)
		fmt.Fprintf(w, "  Success Rate: %.2f%%\n", s.SuccessRate*100)
		if _, err := fmt.Fprintf(w, "  Avg Duration: %dms\n", s.AvgDurationMS); err != nil {
			return err
		}
	}
	return nil
}

func writeCSVReport(w io.Writer, summaries []Summary) error {
	writer := csv.NewWriter(w)

	header := []string{"Workflow", "Total", "Rendered", "Failed", "Superseded", "Success Rate", "Avg Duration MS"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, s := range summaries {
		row := []string{
			s.Workflow,
			strconv.Itoa(s.Total),
			strconv.Itoa(s.Rendered),
			strconv.Itoa(s.Failed),
			strconv.Itoa(s.Superseded),
			fmt.Sprintf("%.4f", s.SuccessRate),
			strconv.FormatInt(s.AvgDurationMS, 10),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
