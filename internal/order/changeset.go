package order

import (
	"slices"
	"sort"
	"strconv"
	"strings"
)

// ItemMutation is one changed line item as the submission endpoint expects it.
type ItemMutation struct {
	ItemID     int    `json:"item_id"`
	Qty        int    `json:"qty"`
	OrderID    int    `json:"order_id"`
	Preference string `json:"preference"`
	Options    string `json:"options"`
}

// DateOrder is the change-set payload for one date.
type DateOrder struct {
	Date                 string         `json:"date"`
	RoomID               int            `json:"room_id"`
	IsForGuest           bool           `json:"is_for_guest"`
	BreakfastTrayService bool           `json:"breakfast_tray_service"`
	LunchTrayService     bool           `json:"lunch_tray_service"`
	DinnerTrayService    bool           `json:"dinner_tray_service"`
	Items                []ItemMutation `json:"items"`
}

// BuildChangeSet diffs each updated selection against the original one for the
// same date and returns the minimal list of mutations, one payload per date
// that has changes. Dates are returned in ascending order. A selection
// without a room id is attributed to defaultRoomID.
func BuildChangeSet(updated, original map[string]*MealSelection, defaultRoomID int) []DateOrder {
	dates := make([]string, 0, len(updated))
	for d := range updated {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	var out []DateOrder
	for _, date := range dates {
		upd := updated[date]
		if upd == nil {
			continue
		}
		items := diffItems(upd, original[date])
		if len(items) == 0 {
			continue
		}

		roomID := upd.RoomID
		if roomID == 0 {
			roomID = defaultRoomID
		}
		out = append(out, DateOrder{
			Date:                 date,
			RoomID:               roomID,
			IsForGuest:           upd.Guest,
			BreakfastTrayService: upd.TrayService.Breakfast,
			LunchTrayService:     upd.TrayService.Lunch,
			DinnerTrayService:    upd.TrayService.Dinner,
			Items:                items,
		})
	}
	return out
}

func diffItems(upd, orig *MealSelection) []ItemMutation {
	before := make(map[Key]LineItem)
	if orig != nil {
		for _, it := range orig.Items {
			if _, dup := before[it.Key()]; !dup {
				before[it.Key()] = it
			}
		}
	}

	var out []ItemMutation
	seen := make(map[Key]bool, len(upd.Items))
	for _, it := range upd.Items {
		k := it.Key()
		if seen[k] {
			continue
		}
		seen[k] = true

		prev, existed := before[k]
		if !existed {
			if it.Quantity > 0 {
				out = append(out, mutationOf(it))
			}
			continue
		}
		if !changed(prev, it) {
			continue
		}
		if prev.Quantity > 0 && it.Quantity == 0 {
			out = append(out, removalOf(it))
			continue
		}
		out = append(out, mutationOf(it))
	}

	if orig != nil {
		for _, it := range orig.Items {
			k := it.Key()
			if seen[k] {
				continue
			}
			seen[k] = true
			if it.Quantity > 0 {
				out = append(out, removalOf(it))
			}
		}
	}
	return out
}

func changed(a, b LineItem) bool {
	if a.Quantity != b.Quantity {
		return true
	}
	if !sameSet(a.SelectedPreferences(), b.SelectedPreferences()) {
		return true
	}
	return !sameSet(a.SelectedOptions(), b.SelectedOptions())
}

func sameSet(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

func mutationOf(it LineItem) ItemMutation {
	return ItemMutation{
		ItemID:     it.ItemID,
		Qty:        it.Quantity,
		OrderID:    it.OrderID,
		Preference: joinIDs(it.SelectedPreferences()),
		Options:    joinIDs(it.SelectedOptions()),
	}
}

// removalOf zeroes the item; a zeroed item carries no sub-selections.
func removalOf(it LineItem) ItemMutation {
	return ItemMutation{ItemID: it.ItemID, OrderID: it.OrderID}
}

func joinIDs(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ",")
}
