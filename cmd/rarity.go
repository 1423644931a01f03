package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zjrosen/layerforge/internal/config"
	"github.com/zjrosen/layerforge/internal/metadata"
	"github.com/zjrosen/layerforge/internal/output"
	"github.com/zjrosen/layerforge/internal/presentation"
	"github.com/zjrosen/layerforge/internal/store"
)

var rarityCmd = &cobra.Command{
	Use:   "rarity",
	Short: "Show how often each trait occurs in the generated collection",
	Long: `Read json/_metadata.json from the build output and print the number of
editions carrying each trait value, grouped by trait type.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		counts, editions, err := loadRarity(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		if rarityJSON {
			return presentation.NewFormatter(cmd.OutOrStdout()).FormatRarity(presentation.FromTraitCounts(counts, editions))
		}
		renderRarity(cmd.OutOrStdout(), counts, editions)
		return nil
	},
}

var rarityJSON bool

func init() {
	rarityCmd.Flags().BoolVar(&rarityJSON, "json", false, "print the report as JSON")
	rootCmd.AddCommand(rarityCmd)
}

// aggregateEntry decodes the attributes of either record shape.
type aggregateEntry struct {
	Attributes []metadata.Trait `json:"attributes"`
}

func loadRarity(ctx context.Context, c config.Config) ([]metadata.TraitCount, int, error) {
	st, err := openStore(ctx, c, false)
	if err != nil {
		return nil, 0, err
	}
	var entries []aggregateEntry
	if err := output.NewWriter(st).ReadAggregate(ctx, &entries); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, 0, fmt.Errorf("no %s in the build output, run 'layerforge generate' first", output.AggregateKey)
		}
		return nil, 0, err
	}
	attrs := make([][]metadata.Trait, len(entries))
	for i, e := range entries {
		attrs[i] = e.Attributes
	}
	return metadata.Tally(attrs), len(entries), nil
}

var (
	rarityTitleStyle = lipgloss.NewStyle().Bold(true)
	rarityTypeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#54A0FF"))
	rarityValueStyle = lipgloss.NewStyle().PaddingLeft(2)
	rarityCountStyle = lipgloss.NewStyle().Align(lipgloss.Right)
	rarityMutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#BBBBBB"))
)

func renderRarity(w io.Writer, counts []metadata.TraitCount, editions int) {
	valueWidth := len("Value")
	for _, tc := range counts {
		valueWidth = max(valueWidth, lipgloss.Width(tc.Value))
	}
	valueCol := rarityValueStyle.Width(valueWidth + 4)
	countCol := rarityCountStyle.Width(8)
	pctCol := rarityCountStyle.Width(10)

	var b strings.Builder
	b.WriteString(rarityTitleStyle.Render(fmt.Sprintf("Rarity over %d editions", editions)))
	b.WriteString("\n")

	current := ""
	for _, tc := range counts {
		if tc.TraitType != current {
			current = tc.TraitType
			b.WriteString("\n")
			b.WriteString(rarityTypeStyle.Render(current))
			b.WriteString("\n")
		}
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
			valueCol.Render(tc.Value),
			countCol.Render(fmt.Sprintf("%d", tc.Count)),
			pctCol.Render(fmt.Sprintf("%.2f%%", tc.Percent)),
		))
		b.WriteString("\n")
	}
	if len(counts) == 0 {
		b.WriteString(rarityMutedStyle.Render("no traits recorded"))
		b.WriteString("\n")
	}
	_, _ = io.WriteString(w, b.String())
}
