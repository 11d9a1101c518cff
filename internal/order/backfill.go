package order

// BackFill copies server-assigned order ids into the submitted selections.
// itemIDs and orderIDs are the parallel arrays of a successful submit
// response. Each pair fills the first matching line item, in date order, that
// has a positive quantity and no order row yet. It returns the number of line
// items updated.
func BackFill(selections map[string]*MealSelection, submitted []DateOrder, itemIDs, orderIDs []int) int {
	n := len(itemIDs)
	if len(orderIDs) < n {
		n = len(orderIDs)
	}

	filled := 0
	for i := 0; i < n; i++ {
		if orderIDs[i] == 0 {
			continue
		}
		if it := nextUnpersisted(selections, submitted, itemIDs[i]); it != nil {
			it.OrderID = orderIDs[i]
			filled++
		}
	}
	return filled
}

func nextUnpersisted(selections map[string]*MealSelection, submitted []DateOrder, itemID int) *LineItem {
	for _, do := range submitted {
		sel := selections[do.Date]
		if sel == nil {
			continue
		}
		for j := range sel.Items {
			it := &sel.Items[j]
			if it.ItemID == itemID && it.OrderID == 0 && it.Quantity > 0 {
				return it
			}
		}
	}
	return nil
}
