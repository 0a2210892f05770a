package main

import (
	"fmt"
	"maps"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"dubbing/internal/api"
	"dubbing/internal/language"
)

func jobTable(jobs []api.Job) string {
	if len(jobs) == 0 {
		return "No jobs"
	}
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		rows = append(rows, []string{
			j.ID,
			jobStatusLabel(j),
			strconv.Itoa(j.Progress) + "%",
			j.TargetLanguage,
			filepath.Base(j.InputVideo),
			formatUSD(j.Cost.TotalUSD),
		})
	}
	return renderTable(
		[]string{"ID", "Status", "Progress", "Lang", "Input", "Cost"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft, alignRight},
	)
}

func jobStatusLabel(j api.Job) string {
	label := j.Status
	if j.NeedsIntervention {
		label += " (review)"
	}
	return label
}

func jobDetail(j api.Job) string {
	fields := [][2]string{
		{"ID", j.ID},
		{"Status", jobStatusLabel(j)},
		{"Stage", j.Stage},
		{"Progress", strconv.Itoa(j.Progress) + "%"},
		{"Input", j.InputVideo},
		{"Output", j.OutputVideo},
		{"Target language", language.Label(j.TargetLanguage)},
		{"Source language", language.Label(j.Artifacts.SourceLanguage)},
		{"Attempts", strconv.Itoa(j.Attempts)},
		{"Created", j.CreatedAt},
		{"Started", j.StartedAt},
		{"Completed", j.CompletedAt},
		{"Error", j.ErrorMessage},
		{"Error kind", j.ErrorKind},
		{"Characters", strconv.Itoa(j.Cost.Characters)},
		{"API calls", strconv.Itoa(j.Cost.APICalls)},
		{"Cost", formatUSD(j.Cost.TotalUSD)},
		{"Providers", strings.Join(j.Artifacts.ProvidersUsed, ", ")},
	}
	if j.ProcessingSeconds > 0 {
		fields = append(fields, [2]string{"Processing time", fmt.Sprintf("%.1fs", j.ProcessingSeconds)})
	}
	if j.Artifacts.QualityScore > 0 {
		fields = append(fields, [2]string{"Quality score", fmt.Sprintf("%.2f", j.Artifacts.QualityScore)})
	}
	if len(j.Artifacts.QualityIssues) > 0 {
		fields = append(fields, [2]string{"Quality issues", strings.Join(j.Artifacts.QualityIssues, "; ")})
	}
	return renderFields(fields)
}

func statsDetail(s api.Stats) string {
	fields := [][2]string{
		{"Queue length", strconv.Itoa(s.QueueLength)},
		{"Active jobs", strconv.Itoa(s.ActiveJobs)},
		{"Total jobs", strconv.Itoa(s.TotalJobs)},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate*100)},
		{"Avg processing", fmt.Sprintf("%.1fs", s.AverageProcessingSeconds)},
		{"Total cost", formatUSD(s.TotalCostUSD)},
	}
	out := renderFields(fields)

	if len(s.StatusCounts) > 0 {
		rows := make([][]string, 0, len(s.StatusCounts))
		for _, status := range slices.Sorted(maps.Keys(s.StatusCounts)) {
			rows = append(rows, []string{status, strconv.Itoa(s.StatusCounts[status])})
		}
		out += "\n" + renderTable([]string{"Status", "Jobs"}, rows, []columnAlignment{alignLeft, alignRight})
	}
	if len(s.CostByProvider) > 0 {
		rows := make([][]string, 0, len(s.CostByProvider))
		for _, provider := range slices.Sorted(maps.Keys(s.CostByProvider)) {
			rows = append(rows, []string{provider, formatUSD(s.CostByProvider[provider])})
		}
		out += "\n" + renderTable([]string{"Provider", "Cost"}, rows, []columnAlignment{alignLeft, alignRight})
	}
	return out
}

func historyTable(entries []api.HistoryEntry) string {
	if len(entries) == 0 {
		return "No history"
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.JobID,
			strconv.Itoa(e.Attempt),
			e.Status,
			filepath.Base(e.InputVideo),
			formatUSD(e.CostUSD),
			e.RecordedAt,
			e.ErrorMessage,
		})
	}
	return renderTable(
		[]string{"Job", "Attempt", "Status", "Input", "Cost", "Recorded", "Error"},
		rows,
		[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func formatUSD(v float64) string {
	return fmt.Sprintf("$%.4f", v)
}
