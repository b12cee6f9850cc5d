// Package model defines shared data types used across the simulation core.
//
// Conventions:
//   - Money: integer cents (int64), never floats
//   - Timestamps: time.Time in UTC
//   - IDs: uuid strings for rows created by the engine, short slugs for
//     catalog data (items, regions)
package model
