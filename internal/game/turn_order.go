// internal/game/turn_order.go
package game

// NextPlayOrder maps one active player's current play order to the one it holds after a
// turn. n is the number of active players. Applying it to every active player yields
// another permutation of 0..n-1.
func NextPlayOrder(order, n int, skip, reverse bool) int {
	if reverse {
		order = n - order
	}
	step := 1
	if skip {
		step = 2
	}
	next := order%n - step
	if next < 0 {
		next += n
	}
	return next
}

// CompactPlayOrder is the play order a remaining player gets after the player holding
// removed forfeits.
func CompactPlayOrder(order, removed int) int {
	if order >= removed {
		return order - 1
	}
	return order
}
