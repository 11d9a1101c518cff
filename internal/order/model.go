package order

import "fmt"

// MealPeriod identifies one of the three daily meal services.
type MealPeriod int

const (
	Breakfast MealPeriod = iota
	Lunch
	Dinner
)

// Periods lists the meal periods in service order.
var Periods = []MealPeriod{Breakfast, Lunch, Dinner}

func (p MealPeriod) String() string {
	switch p {
	case Breakfast:
		return "breakfast"
	case Lunch:
		return "lunch"
	case Dinner:
		return "dinner"
	default:
		return fmt.Sprintf("period(%d)", int(p))
	}
}

// ParsePeriod maps a wire or user supplied name to a MealPeriod.
func ParsePeriod(s string) (MealPeriod, error) {
	switch s {
	case "breakfast", "b":
		return Breakfast, nil
	case "lunch", "l":
		return Lunch, nil
	case "dinner", "d":
		return Dinner, nil
	}
	return 0, fmt.Errorf("unknown meal period %q", s)
}

// Category is the menu section a line item is listed under.
type Category int

const (
	DailySpecial Category = iota
	Alternative
	Soup
	Entree
)

func (c Category) String() string {
	switch c {
	case DailySpecial:
		return "daily_special"
	case Alternative:
		return "alternative"
	case Soup:
		return "soup"
	case Entree:
		return "entree"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Slots lists the categories offered for each meal period, in display order.
var Slots = map[MealPeriod][]Category{
	Breakfast: {DailySpecial, Alternative},
	Lunch:     {Soup, Entree, Alternative},
	Dinner:    {Soup, Entree, Alternative},
}

// ValidSlot reports whether the category is offered for the meal period.
func ValidSlot(p MealPeriod, c Category) bool {
	for _, s := range Slots[p] {
		if s == c {
			return true
		}
	}
	return false
}

// Choice is a single option or preference attached to a line item.
type Choice struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Selected bool   `json:"selected"`
}

// Key identifies a line item. The same menu item may appear under several
// order rows, so the order id is part of the identity.
type Key struct {
	ItemID  int
	OrderID int
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d", k.ItemID, k.OrderID)
}

// LineItem is one orderable menu item, tagged with where it is listed.
// Options are single-choice; Preferences are multi-select.
type LineItem struct {
	Period      MealPeriod `json:"period"`
	Category    Category   `json:"category"`
	ItemID      int        `json:"item_id"`
	OrderID     int        `json:"order_id"`
	Name        string     `json:"name"`
	Quantity    int        `json:"quantity"`
	Options     []Choice   `json:"options"`
	Preferences []Choice   `json:"preferences"`
}

// Key returns the line item's identity.
func (li LineItem) Key() Key {
	return Key{ItemID: li.ItemID, OrderID: li.OrderID}
}

// SelectedOptions returns the ids of selected options in listing order.
func (li LineItem) SelectedOptions() []int {
	return selectedIDs(li.Options)
}

// SelectedPreferences returns the ids of selected preferences in listing order.
func (li LineItem) SelectedPreferences() []int {
	return selectedIDs(li.Preferences)
}

func (li LineItem) clone() LineItem {
	out := li
	out.Options = append([]Choice(nil), li.Options...)
	out.Preferences = append([]Choice(nil), li.Preferences...)
	return out
}

// TrayService records which meals are delivered to the room for a date.
type TrayService struct {
	Breakfast bool `json:"breakfast"`
	Lunch     bool `json:"lunch"`
	Dinner    bool `json:"dinner"`
}

// MealSnapshot is the full fetched state of a room's offering for one date.
type MealSnapshot struct {
	Date          string                `json:"date"`
	RoomID        int                   `json:"room_id"`
	CategoryNames map[MealPeriod]string `json:"category_names"`
	Guest         bool                  `json:"guest"`
	TrayService   TrayService           `json:"tray_service"`
	Items         []LineItem            `json:"items"`
}

// ItemsFor returns the items of one meal period in listing order.
func (s *MealSnapshot) ItemsFor(p MealPeriod) []LineItem {
	var out []LineItem
	for _, it := range s.Items {
		if it.Period == p {
			out = append(out, it)
		}
	}
	return out
}

func selectedIDs(choices []Choice) []int {
	var ids []int
	for _, c := range choices {
		if c.Selected {
			ids = append(ids, c.ID)
		}
	}
	return ids
}
