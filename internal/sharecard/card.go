// Package sharecard renders wallet snapshots into shareable PNG cards.
package sharecard

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"github.com/proestever/FRENKABALv1-sub005/internal/entity"
)

const (
	cardWidth  = 1200
	cardHeight = 630

	marginX = 80.0

	titleY      = 120.0
	addressY    = 180.0
	totalLabelY = 280.0
	totalValueY = 360.0

	holdingsTopY   = 440.0
	holdingsRowH   = 44.0
	holdingsSymbol = marginX
	holdingsValueX = cardWidth - marginX

	maxHoldingRows = 4

	titleFontSize   = 54.0
	addressFontSize = 28.0
	labelFontSize   = 26.0
	totalFontSize   = 80.0
	rowFontSize     = 30.0
)

// Renderer draws share cards using the configured fonts.
type Renderer struct {
	fontPath     string
	boldFontPath string
	logger       *zap.Logger
}

// NewRenderer creates a Renderer. boldFontPath falls back to fontPath when empty.
func NewRenderer(fontPath, boldFontPath string, logger *zap.Logger) *Renderer {
	if boldFontPath == "" {
		boldFontPath = fontPath
	}
	return &Renderer{
		fontPath:     fontPath,
		boldFontPath: boldFontPath,
		logger:       logger.Named("ShareCard"),
	}
}

// Render produces a PNG card for the snapshot: address, total value and the
// top holdings by value.
func (r *Renderer) Render(snapshot *entity.WalletSnapshot) ([]byte, error) {
	dc := gg.NewContext(cardWidth, cardHeight)

	// Background and accent bar.
	dc.SetRGB(0.07, 0.08, 0.12)
	dc.Clear()
	dc.SetRGB(0.58, 0.17, 0.85)
	dc.DrawRectangle(0, 0, cardWidth, 12)
	dc.Fill()

	if err := dc.LoadFontFace(r.boldFontPath, titleFontSize); err != nil {
		return nil, fmt.Errorf("loading bold font %s: %w", r.boldFontPath, err)
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawString("FrenKabal Portfolio", marginX, titleY)

	if err := dc.LoadFontFace(r.fontPath, addressFontSize); err != nil {
		return nil, fmt.Errorf("loading font %s: %w", r.fontPath, err)
	}
	dc.SetRGB(0.65, 0.66, 0.72)
	dc.DrawString(shortenAddress(snapshot.Address), marginX, addressY)

	dc.SetRGB(0.65, 0.66, 0.72)
	if err := dc.LoadFontFace(r.fontPath, labelFontSize); err != nil {
		return nil, err
	}
	dc.DrawString("TOTAL VALUE", marginX, totalLabelY)

	if err := dc.LoadFontFace(r.boldFontPath, totalFontSize); err != nil {
		return nil, err
	}
	dc.SetRGB(1, 1, 1)
	dc.DrawString(formatUSD(snapshot.TotalValue), marginX, totalValueY)

	if err := r.drawHoldings(dc, snapshot); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encoding card PNG: %w", err)
	}
	r.logger.Debug("share card rendered",
		zap.String("address", snapshot.Address),
		zap.Int("bytes", buf.Len()))
	return buf.Bytes(), nil
}

func (r *Renderer) drawHoldings(dc *gg.Context, snapshot *entity.WalletSnapshot) error {
	top := topHoldings(snapshot.Tokens, maxHoldingRows)
	if len(top) == 0 {
		return nil
	}

	if err := dc.LoadFontFace(r.fontPath, rowFontSize); err != nil {
		return err
	}
	for i, token := range top {
		y := holdingsTopY + float64(i)*holdingsRowH
		dc.SetRGB(0.85, 0.86, 0.9)
		dc.DrawString(token.Symbol, holdingsSymbol, y)

		value := formatUSD(token.Value)
		width, _ := dc.MeasureString(value)
		dc.SetRGB(0.65, 0.66, 0.72)
		dc.DrawString(value, holdingsValueX-width, y)
	}
	return nil
}

func topHoldings(tokens []entity.Token, limit int) []entity.Token {
	sorted := make([]entity.Token, len(tokens))
	copy(sorted, tokens)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Value > sorted[j].Value
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func shortenAddress(address string) string {
	if len(address) <= 14 {
		return address
	}
	return address[:8] + "..." + address[len(address)-6:]
}

func formatUSD(value float64) string {
	switch {
	case value >= 1_000_000:
		return fmt.Sprintf("$%.2fM", value/1_000_000)
	case value >= 1_000:
		return fmt.Sprintf("$%.2fK", value/1_000)
	default:
		return fmt.Sprintf("$%.2f", value)
	}
}
