// Package model defines shared data types used across the market-data feed core.
//
// Conventions:
//   - Prices: float64 in the instrument's quote currency
//   - Timestamps: int64 microseconds since Unix epoch, full 64-bit precision
//   - IDs: string for stock codes, order numbers, and account numbers
package model
