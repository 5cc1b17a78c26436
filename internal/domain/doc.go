// Package domain provides the entity types shared by every taskmarket package.
//
// This package contains type definitions and small pure helpers only. All
// other internal packages import domain; domain imports nothing internal.
//
// Key design constraints:
//   - Money is shopspring/decimal, never float64
//   - Report, Challenge and StatusUpdate are distinct structs, not loose maps
//   - All JSON tags use snake_case; time.Time serializes as RFC 3339
//   - occupied_by is a weak reference (Party), not an owned User
package domain
