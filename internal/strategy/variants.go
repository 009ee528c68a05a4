package strategy

import (
	"fmt"

	"github.com/rame0/tinkoff-robot/internal/config"
	"github.com/rame0/tinkoff-robot/internal/signal"
)

// buildVariant wires the ordered signal list and the suppression policy
// for the configured variant. Priority is first-non-hold-wins over the
// list order below.
func (e *Engine) buildVariant() error {
	switch e.cfg.Variant {
	case config.VariantProfitRsiSMA:
		if e.cfg.Profit != nil {
			e.signals = append(e.signals, signal.NewProfitLoss(*e.cfg.Profit, e.log))
		}
		if e.cfg.RSI != nil {
			e.signals = append(e.signals, signal.NewRSICrossover(*e.cfg.RSI, e.log))
		}
		if e.cfg.SMA != nil {
			e.signals = append(e.signals, signal.NewSMACrossover(*e.cfg.SMA, e.log))
		}
		if len(e.signals) == 0 {
			return fmt.Errorf("variant %s has no signals configured", e.cfg.Variant)
		}
	case config.VariantStupid:
		// Relies on the signal's own cost-basis comparison to avoid
		// duplicate buys; no suppression here.
		e.signals = append(e.signals, signal.NewBuyLowSellHigh(e.log))
		if e.cfg.Profit != nil {
			e.signals = append(e.signals, signal.NewProfitLoss(*e.cfg.Profit, e.log))
		}
	case config.VariantRandom:
		e.signals = append(e.signals, signal.NewRandom(nil))
		e.suppressBuy = true
	default:
		return fmt.Errorf("unknown strategy variant %q", string(e.cfg.Variant))
	}
	return nil
}
