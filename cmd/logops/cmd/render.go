package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/mattn/go-runewidth"

	"github.com/dbsmedya/logops/internal/chat"
)

// renderResponse prints one chat response to the terminal, shaped by its
// card type.
func renderResponse(w io.Writer, resp *chat.Response) {
	switch card := resp.Card.(type) {
	case chat.WelcomeCard:
		color.Fprintf(w, "<cyan>%s</>\n", resp.Reply)
		fmt.Fprintf(w, "Region: %s  Role: %s\n", card.Region, card.Role)
		fmt.Fprintf(w, "Operations: %s\n", strings.Join(card.Operations, ", "))
		fmt.Fprintf(w, "Tables: %s\n", strings.Join(card.Tables, ", "))

	case chat.StatsCard:
		fmt.Fprintln(w, resp.Reply)
		rows := make([][]string, 0, len(card.Tables))
		for _, t := range card.Tables {
			rows = append(rows, []string{
				t.Table, fmt.Sprintf("%d", t.RowCount), t.OldestTime, t.NewestTime,
			})
		}
		renderTable(w, []string{"Table", "Rows", "Oldest", "Newest"}, rows)

	case chat.ConfirmationCard:
		color.Fprintf(w, "<yellow>%s</>\n", resp.Reply)
		fmt.Fprintf(w, "Operation: %s on %s (%s)\n", card.Operation, card.Table, card.Region)
		fmt.Fprintf(w, "Filters: %s\n", card.Filters)
		fmt.Fprintf(w, "Matching records: %d\n", card.MatchCount)
		renderSample(w, card.Sample)
		color.Fprintf(w, "Type <green>%s</> to proceed or <red>%s</> to abort.\n",
			card.ConfirmWith, card.CancelWith)

	case chat.SuccessCard:
		color.Fprintf(w, "<green>%s</>\n", resp.Reply)
		fmt.Fprintf(w, "Job #%d on %s (%s)\n", card.JobID, card.Table, card.Region)
		if card.RecordsArchived > 0 || card.DuplicatesSkipped > 0 {
			fmt.Fprintf(w, "Archived: %d  Deleted: %d  Duplicates skipped: %d\n",
				card.RecordsArchived, card.RecordsDeleted, card.DuplicatesSkipped)
		} else {
			fmt.Fprintf(w, "Deleted: %d\n", card.RecordsDeleted)
		}

	case chat.ErrorCard:
		color.Fprintf(w, "<red>[%s]</> %s\n", card.Kind, card.Message)

	case chat.RegionStatusCard:
		fmt.Fprintln(w, resp.Reply)
		names := make([]string, 0, len(card.Regions))
		for name := range card.Regions {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			marker := color.Red.Sprint("disconnected")
			if card.Regions[name] {
				marker = color.Green.Sprint("connected")
			}
			current := ""
			if name == card.Current {
				current = " *"
			}
			fmt.Fprintf(w, "  %s %s%s\n", runewidth.FillRight(name, 8), marker, current)
		}

	case chat.HealthCard:
		if card.Healthy {
			color.Fprintf(w, "<green>%s</>\n", resp.Reply)
		} else {
			color.Fprintf(w, "<red>%s</>\n", resp.Reply)
		}
		if card.Report != nil {
			rows := make([][]string, 0, len(card.Report.TableCounts))
			names := make([]string, 0, len(card.Report.TableCounts))
			for name := range card.Report.TableCounts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				rows = append(rows, []string{name, fmt.Sprintf("%d", card.Report.TableCounts[name])})
			}
			renderTable(w, []string{"Table", "Rows"}, rows)
		}

	case chat.SQLResultsCard:
		fmt.Fprintln(w, resp.Reply)
		if card.Result != nil {
			fmt.Fprintf(w, "SQL: %s\n", card.GeneratedSQL)
			rows := make([][]string, 0, len(card.Rows))
			for _, row := range card.Rows {
				cells := make([]string, len(card.Columns))
				for i, col := range card.Columns {
					cells[i] = cellString(row[col])
				}
				rows = append(rows, cells)
			}
			renderTable(w, card.Columns, rows)
			fmt.Fprintf(w, "%d row(s)\n", card.RowCount)
		}

	default:
		fmt.Fprintln(w, resp.Reply)
	}
}

// renderSample prints preview rows without a guaranteed column order. The
// columns are sorted by name so the output is stable.
func renderSample(w io.Writer, sample []map[string]interface{}) {
	if len(sample) == 0 {
		return
	}

	columns := make([]string, 0, len(sample[0]))
	for col := range sample[0] {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	rows := make([][]string, 0, len(sample))
	for _, record := range sample {
		cells := make([]string, len(columns))
		for i, col := range columns {
			cells[i] = cellString(record[col])
		}
		rows = append(rows, cells)
	}
	fmt.Fprintln(w, "Sample:")
	renderTable(w, columns, rows)
}

// renderTable prints an aligned text table. Cell widths use runewidth so
// wide characters in record data keep the columns straight.
func renderTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && runewidth.StringWidth(cell) > widths[i] {
				widths[i] = runewidth.StringWidth(cell)
			}
		}
	}

	printRow := func(cells []string) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = runewidth.FillRight(cell, widths[i])
		}
		fmt.Fprintf(w, "  %s\n", strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	printRow(headers)
	separators := make([]string, len(headers))
	for i := range headers {
		separators[i] = strings.Repeat("-", widths[i])
	}
	printRow(separators)
	for _, row := range rows {
		printRow(row)
	}
}

func cellString(v interface{}) string {
	if v == nil {
		return "NULL"
	}
	switch val := v.(type) {
	case []byte:
		return string(val)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}
