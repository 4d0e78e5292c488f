package cmd

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"shashin/internal/catalog"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// errCatalogDisabled は撮影履歴が無効な場合のエラー
var errCatalogDisabled = errors.New("撮影履歴は無効です (catalog.enabled: false)")

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "撮影履歴を表示する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cat, err := a.openCatalog(ctx)
			if err != nil {
				return err
			}
			if cat == nil {
				return errCatalogDisabled
			}
			defer cat.Close()

			entries, err := cat.List(ctx, limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "表示する件数")
	return cmd
}

// renderHistory は撮影履歴を表で表示する
func renderHistory(w io.Writer, entries []catalog.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, dimStyle.Render("撮影履歴はありません"))
		return
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("ID", "種類", "日時", "解像度", "サイズ", "カメラ", "パス").
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	for _, e := range entries {
		t.Row(
			strconv.FormatInt(e.ID, 10),
			string(e.Kind),
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			fmt.Sprintf("%dx%d", e.Width, e.Height),
			humanSize(e.Size),
			e.Backend,
			e.Path,
		)
	}
	fmt.Fprintln(w, t.Render())
}

// humanSize はバイト数を読みやすい単位で表す
func humanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
