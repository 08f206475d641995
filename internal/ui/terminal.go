package ui

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
)

var (
	green   = color.New(color.FgGreen).SprintFunc()
	red     = color.New(color.FgRed).SprintFunc()
	yellow  = color.New(color.FgYellow).SprintFunc()
	cyan    = color.New(color.FgCyan).SprintFunc()
	magenta = color.New(color.FgMagenta).SprintFunc()
	bold    = color.New(color.Bold).SprintFunc()
)

// PrintBanner prints the application banner.
func PrintBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ █████╗ ███╗   ██╗██████╗ ██╗     ███████╗      ║
║  ██╔════╝██╔══██╗████╗  ██║██╔══██╗██║     ██╔════╝      ║
║  ██║     ███████║██╔██╗ ██║██║  ██║██║     █████╗        ║
║  ██║     ██╔══██║██║╚██╗██║██║  ██║██║     ██╔══╝        ║
║  ╚██████╗██║  ██║██║ ╚████║██████╔╝███████╗███████╗      ║
║   ╚═════╝╚═╝  ╚═╝╚═╝  ╚═══╝╚═════╝ ╚══════╝╚══════╝      ║
║                                                           ║
║         Multi-Venue Kline Ingestion & Anomaly Watch       ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(cyan(banner))
}

// PrintSection prints a section header.
func PrintSection(title string) {
	line := strings.Repeat("═", 60)
	fmt.Printf("\n%s\n", cyan(line))
	fmt.Printf("%s %s\n", cyan("▶"), bold(title))
	fmt.Printf("%s\n\n", cyan(line))
}

// PrintSuccess prints a success message.
func PrintSuccess(msg string) {
	fmt.Printf("%s %s\n", green("✓"), msg)
}

// PrintError prints an error message.
func PrintError(msg string) {
	fmt.Printf("%s %s\n", red("✗"), msg)
}

// PrintWarning prints a warning message.
func PrintWarning(msg string) {
	fmt.Printf("%s %s\n", yellow("⚠"), msg)
}

// PrintInfo prints an informational message.
func PrintInfo(msg string) {
	fmt.Printf("%s %s\n", cyan("ℹ"), msg)
}

// PrintProgress shows a progress indicator.
func PrintProgress(current, total int, prefix string) {
	percent := float64(current) / float64(total) * 100
	bar := progressBar(percent, 40)
	fmt.Printf("\r%s [%s] %.1f%% (%d/%d)", prefix, bar, percent, current, total)
	if current == total {
		fmt.Println()
	}
}

func progressBar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	empty := width - filled
	return green(strings.Repeat("█", filled)) + strings.Repeat("░", empty)
}

// VenueSummary is one configured venue's startup line.
type VenueSummary struct {
	Name        string
	Intervals   []string
	Instruments int
}

// PrintVenueSummary prints the set of venues this run is polling and how
// many instruments were discovered for each.
func PrintVenueSummary(venues []VenueSummary) {
	PrintSection("VENUES")
	for _, v := range venues {
		fmt.Printf("  %-10s intervals=%-20s instruments=%s\n",
			yellow(v.Name),
			cyan(strings.Join(v.Intervals, ",")),
			magenta(fmt.Sprintf("%d", v.Instruments)),
		)
	}
	fmt.Println()
}

// PrintServerSummary prints the query facade's bind address and user cap.
func PrintServerSummary(addr string, maxUsers int) {
	PrintSection("QUERY FACADE")
	fmt.Printf("  %-20s %s\n", "Listening on:", green(addr))
	fmt.Printf("  %-20s %s\n", "Max users:", yellow(fmt.Sprintf("%d", maxUsers)))
	fmt.Println()
}
