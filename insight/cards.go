package insight

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/clarity-bi/clarity/engine"
)

// ============================================================================
// INSIGHT CARDS: Headline signals for the current selection
// ============================================================================

// Card types.
const (
	CardDanger   = "danger"
	CardWarning  = "warning"
	CardSuccess  = "success"
	CardInfo     = "info"
	CardForecast = "forecast"
)

// Card arrows: "up" is good news, "down" bad.
const (
	ArrowUp      = "up"
	ArrowDown    = "down"
	ArrowNeutral = "neutral"
)

// Loss ratio and claim rate thresholds, in percent.
const (
	LossRatioDanger  = 80
	LossRatioWarning = 60
	ClaimRateWarning = 20
)

// Card is one headline insight.
type Card struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Metric      string `json:"metric"`
	Trend       string `json:"trend"`
}

// Insights derives the loss ratio card, a claim rate card when any claims
// exist, and a forecast card when prediction is non-nil.
func Insights(k engine.KPISnapshot, prediction *Prediction) []Card {
	var cards []Card

	lr := engine.FormatPercent(k.LossRatio)
	switch {
	case k.LossRatio > LossRatioDanger:
		cards = append(cards, Card{
			Type:        CardDanger,
			Title:       "High Loss Ratio Alert",
			Description: "Loss Ratio exceeds 80% threshold. Immediate attention required.",
			Metric:      lr,
			Trend:       ArrowDown,
		})
	case k.LossRatio > LossRatioWarning:
		cards = append(cards, Card{
			Type:        CardWarning,
			Title:       "Elevated Loss Ratio",
			Description: "Loss Ratio is above the 60% caution level. Monitor closely.",
			Metric:      lr,
			Trend:       ArrowDown,
		})
	default:
		cards = append(cards, Card{
			Type:        CardSuccess,
			Title:       "Healthy Loss Ratio",
			Description: "Loss Ratio is within acceptable range.",
			Metric:      lr,
			Trend:       ArrowUp,
		})
	}

	cr := engine.FormatPercent(k.ClaimRate)
	switch {
	case k.ClaimRate > ClaimRateWarning:
		cards = append(cards, Card{
			Type:        CardWarning,
			Title:       "High Claim Rate",
			Description: "More than 1 in 5 policies has a claim. Review underwriting criteria.",
			Metric:      cr,
			Trend:       ArrowDown,
		})
	case k.ClaimRate > 0:
		cards = append(cards, Card{
			Type:        CardInfo,
			Title:       "Claim Rate",
			Description: fmt.Sprintf("%s claims recorded across the filtered period.", engine.FormatInt(k.TotalClaims)),
			Metric:      cr,
			Trend:       ArrowNeutral,
		})
	}

	if prediction != nil {
		slope := prediction.HistoricalSlope
		direction, arrow, sign := "decreasing", ArrowUp, ""
		if slope > 0 {
			direction, arrow, sign = "increasing", ArrowDown, "+"
		}
		cards = append(cards, Card{
			Type:        CardForecast,
			Title:       "Loss Ratio Forecast",
			Description: fmt.Sprintf("Historical trend shows loss ratio is %s. Plan accordingly.", direction),
			Metric:      sign + decimal.NewFromFloat(slope).StringFixed(1) + "% /mo",
			Trend:       arrow,
		})
	}
	return cards
}
