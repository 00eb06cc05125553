// Package fsr times a force-sensitive resistor in an RC circuit on a GPIO
// line, giving a rough measure of how much weight rests on it.
//
// A Sampler repeatedly discharges the capacitor, releases the line and
// timestamps the rising edge as it charges back up. The last four edge
// timestamps are kept in a Window; AverageTickDiff reports the mean interval
// between them once the window is full.
//
//	┌─ Output, write 0 ─┐   settle   ┌─ Input ─┐   edge   ┌─ push tick ─┐
//	│      UNARMED      │ ─────────▶ │  ARMED  │ ───────▶ │EDGE_RECEIVED│ ─┐
//	└───────────────────┘            └─────────┘          └─────────────┘  │
//	                ▲                                                      │
//	                └──────────────────── re-arm ──────────────────────────┘
//
// ChipGPIO is the production GPIO adapter over the Linux GPIO character
// device (github.com/warthog618/go-gpiocdev).
package fsr
