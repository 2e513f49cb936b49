package catalog

// ClampDecrement computes the stock left after settling qty units. Stock is
// floored at zero; oversold reports that the requested quantity exceeded what
// was available (an anomaly to log, not an error to raise).
func ClampDecrement(current, qty int) (newStock int, oversold bool) {
	newStock = current - qty
	if newStock < 0 {
		return 0, true
	}
	return newStock, false
}
