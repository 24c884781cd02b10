package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/jengzang/riskzone-engine/internal/app"
	"github.com/jengzang/riskzone-engine/internal/batch"
	"github.com/jengzang/riskzone-engine/internal/config"
	"github.com/jengzang/riskzone-engine/internal/corridor"
	"github.com/jengzang/riskzone-engine/internal/models"
	"github.com/olekukonko/tablewriter"
	"go.uber.org/zap"
)

var (
	colorRed     = color.New(color.FgRed).SprintFunc()
	colorYellow  = color.New(color.FgYellow).SprintFunc()
	colorMagenta = color.New(color.FgMagenta).SprintFunc()
	colorGreen   = color.New(color.FgGreen).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
)

var errUsage = errors.New("invalid usage")

// CLI runs one riskctl command
type CLI struct {
	cfg    *config.Config
	logger *zap.Logger
	out    io.Writer
}

// Run dispatches a command by name
func (c *CLI) Run(ctx context.Context, command string, args []string) error {
	switch command {
	case "recalc":
		return c.recalc(ctx, args)
	case "refresh":
		return c.withApp(ctx, func(a *app.App) error {
			result, err := a.Batch.RefreshAll(ctx)
			if err != nil {
				return err
			}
			c.printBatch(result)
			return nil
		})
	case "score":
		return c.score(ctx, args)
	case "route":
		return c.route(args)
	case "corridors":
		return c.corridors()
	case "posture":
		return c.posture(ctx, args)
	default:
		return errUsage
	}
}

func (c *CLI) withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, c.cfg, c.logger)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *CLI) recalc(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("recalc", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	actor := fs.String("actor", "riskctl", "actor recorded in the history")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	return c.withApp(ctx, func(a *app.App) error {
		result, err := a.Batch.RecalculateManyAs(ctx, fs.Args(), *actor)
		if err != nil {
			return err
		}
		c.printBatch(result)
		return nil
	})
}

func (c *CLI) score(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}

	return c.withApp(ctx, func(a *app.App) error {
		score, err := a.Zones.GetScore(ctx, args[0])
		if err != nil {
			return err
		}
		c.printScores([]models.RiskZoneScore{*score})

		history, err := a.Zones.History(ctx, score.CellID, models.HistoryFilter{Limit: 10})
		if err != nil {
			return err
		}
		if len(history) == 0 {
			return nil
		}

		fmt.Fprintln(c.out, colorBold("\nHistory:"))
		table := c.newTable([]string{"When", "Change", "Previous", "New", "Level", "Actor"})
		for _, h := range history {
			previous := "-"
			if h.PreviousScore != nil {
				previous = formatScore(*h.PreviousScore)
			}
			table.Append([]string{
				h.CreatedAt.Format("2006-01-02 15:04:05"),
				h.ChangeType,
				previous,
				formatScore(h.NewScore),
				levelColor(h.NewLevel)(h.NewLevel),
				h.Actor,
			})
		}
		table.Render()
		return nil
	})
}

func (c *CLI) route(args []string) error {
	fs := flag.NewFlagSet("route", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	from := fs.String("from", "", "origin as lat,lng")
	to := fs.String("to", "", "destination as lat,lng")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	origin, err := parsePoint(*from)
	if err != nil {
		return fmt.Errorf("invalid -from: %w", err)
	}
	destination, err := parsePoint(*to)
	if err != nil {
		return fmt.Errorf("invalid -to: %w", err)
	}

	registry, err := corridor.LoadRegistryFile(c.cfg.CorridorCatalog)
	if err != nil {
		return err
	}
	analysis := corridor.NewAnalyzer(registry, corridor.DefaultOptions()).AnalyzeRoute(origin, destination)

	fmt.Fprintf(c.out, "Status: %s  Distance: %.2f km  Overall: %s\n",
		analysis.Status,
		analysis.RouteDistanceKm,
		levelColor(analysis.OverallRiskLevel)(analysis.OverallRiskLevel),
	)
	if len(analysis.Segments) == 0 {
		fmt.Fprintln(c.out, "No known corridor segments on this route")
		return nil
	}

	table := c.newTable([]string{"Segment", "Corridor", "Risk", "Nearest km"})
	for _, s := range analysis.Segments {
		table.Append([]string{
			s.SegmentName,
			s.CorridorName,
			levelColor(s.RiskLevel)(s.RiskLevel),
			fmt.Sprintf("%.2f", s.NearestKm),
		})
	}
	table.Render()

	if len(analysis.Recommendations) > 0 {
		fmt.Fprintln(c.out, colorBold("\nRecommendations:"))
		for _, r := range analysis.Recommendations {
			fmt.Fprintln(c.out, "  -", r)
		}
	}
	return nil
}

func (c *CLI) corridors() error {
	registry, err := corridor.LoadRegistryFile(c.cfg.CorridorCatalog)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "Catalog version %s\n", registry.Version())
	table := c.newTable([]string{"Corridor", "Segment", "Risk", "Event density"})
	for _, cor := range registry.Corridors() {
		for _, id := range cor.SegmentIDs {
			seg, ok := registry.Segment(id)
			if !ok {
				continue
			}
			table.Append([]string{
				cor.Name,
				seg.Name,
				levelColor(seg.RiskLevel)(seg.RiskLevel),
				fmt.Sprintf("%.1f", seg.AvgEventDensity),
			})
		}
	}
	table.Render()
	return nil
}

func (c *CLI) posture(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("posture", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	org := fs.String("org", "", "organization id, empty for all")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	return c.withApp(ctx, func(a *app.App) error {
		p, err := a.Posture.Summary(ctx, *org)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.out, "Events (last %d days): %d total, %s critical\n",
			p.WindowDays, p.TotalEvents, colorRed(p.CriticalEvents))
		if p.DaysSinceLastCritical != nil {
			fmt.Fprintf(c.out, "Days since last critical event: %d\n", *p.DaysSinceLastCritical)
		} else {
			fmt.Fprintln(c.out, "No critical events recorded")
		}

		table := c.newTable([]string{"Risk level", "Zones"})
		for _, level := range models.RiskLevels {
			table.Append([]string{levelColor(level)(level), strconv.Itoa(p.ZonesByRiskLevel[level])})
		}
		table.Render()

		if len(p.TopZones) > 0 {
			fmt.Fprintln(c.out, colorBold("\nTop zones:"))
			c.printScores(p.TopZones)
		}
		return nil
	})
}

func (c *CLI) printBatch(result *batch.BatchResult) {
	fmt.Fprintf(c.out, "%s succeeded, %s failed in %dms\n",
		colorGreen(result.SuccessCount), colorRed(result.ErrorCount), result.DurationMs)

	var scores []models.RiskZoneScore
	for _, r := range result.Results {
		if r.Success && r.Score != nil {
			scores = append(scores, *r.Score)
		}
	}
	if len(scores) > 0 {
		c.printScores(scores)
	}

	if len(result.Errors) > 0 {
		table := c.newTable([]string{"Cell", "Error"})
		for _, e := range result.Errors {
			table.Append([]string{e.CellID, colorRed(e.Error)})
		}
		table.Render()
	}
}

func (c *CLI) printScores(scores []models.RiskZoneScore) {
	table := c.newTable([]string{"Cell", "Base", "Adjustment", "Final", "Level", "Multiplier", "Events"})
	for _, s := range scores {
		table.Append([]string{
			s.CellID,
			formatScore(s.BaseScore),
			formatScore(s.ManualAdjustment),
			formatScore(s.FinalScore),
			levelColor(s.RiskLevel)(s.RiskLevel),
			fmt.Sprintf("%.2fx", s.PriceMultiplier),
			strconv.Itoa(s.EventCount),
		})
	}
	table.Render()
}

func (c *CLI) newTable(header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(c.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	return table
}

func levelColor(level string) func(a ...interface{}) string {
	switch level {
	case models.RiskLevelExtreme:
		return colorRed
	case models.RiskLevelHigh:
		return colorMagenta
	case models.RiskLevelMedium:
		return colorYellow
	default:
		return colorGreen
	}
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func parsePoint(s string) (corridor.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return corridor.Point{}, fmt.Errorf("expected lat,lng, got %q", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return corridor.Point{}, fmt.Errorf("bad latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return corridor.Point{}, fmt.Errorf("bad longitude: %w", err)
	}
	p := corridor.Point{Lat: lat, Lng: lng}
	if !p.Valid() {
		return corridor.Point{}, fmt.Errorf("coordinates out of range: %q", s)
	}
	return p, nil
}
