// Package market implements the continuous double auction run inside each
// tick.
//
// Every (item, region) pair is an independent order book. Placement
// reserves cash (BUY) or inventory (SELL) up front; matching repeatedly
// executes the best crossing pair at the resting SELL order's limit price
// until no cross remains; cancellation releases whatever reservation is
// left. All calls operate inside a caller-provided transaction so a tick's
// market activity commits atomically with the clock advance.
//
// The clearing price being the seller's limit (not midpoint, not aggressor
// price) is a fixed business rule of the simulation's economy. Any spread
// between the buyer's limit and the clearing price is unreserved, not
// spent.
package market
