package order

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownItem   = errors.New("unknown line item")
	ErrUnknownChoice = errors.New("unknown choice")
	ErrMealLimit     = errors.New("meal quantity limit reached")
)

// MealSelection is the user-edited copy of a MealSnapshot for one date.
type MealSelection struct {
	MealSnapshot
}

// NewSelection seeds a selection from a freshly fetched snapshot. The snapshot
// is deep-copied so later edits never reach it.
func NewSelection(s *MealSnapshot) *MealSelection {
	sel := &MealSelection{MealSnapshot: *s}
	sel.CategoryNames = make(map[MealPeriod]string, len(s.CategoryNames))
	for k, v := range s.CategoryNames {
		sel.CategoryNames[k] = v
	}
	sel.Items = make([]LineItem, len(s.Items))
	for i, it := range s.Items {
		sel.Items[i] = it.clone()
	}
	return sel
}

// Clone returns a deep copy.
func (m *MealSelection) Clone() *MealSelection {
	return NewSelection(&m.MealSnapshot)
}

// Item returns a pointer to the line item with the given key.
func (m *MealSelection) Item(k Key) (*LineItem, error) {
	for i := range m.Items {
		if m.Items[i].Key() == k {
			return &m.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s on %s", ErrUnknownItem, k, m.Date)
}

// Find returns the first line item for a menu item id, regardless of order row.
func (m *MealSelection) Find(itemID int) (*LineItem, error) {
	for i := range m.Items {
		if m.Items[i].ItemID == itemID {
			return &m.Items[i], nil
		}
	}
	return nil, fmt.Errorf("%w: item %d on %s", ErrUnknownItem, itemID, m.Date)
}

// PeriodTotal sums quantities across every line item of a meal period.
func (m *MealSelection) PeriodTotal(p MealPeriod) int {
	total := 0
	for _, it := range m.Items {
		if it.Period == p {
			total += it.Quantity
		}
	}
	return total
}

// SetQuantity sets an item's quantity, clamped to [0, max]. The total of the
// item's meal period may not exceed max. Raising a quantity from zero picks
// the first option when none is selected, so a positive quantity always
// carries exactly one option.
func (m *MealSelection) SetQuantity(k Key, qty, max int) error {
	it, err := m.Item(k)
	if err != nil {
		return err
	}
	if qty < 0 {
		qty = 0
	}
	if qty > max {
		qty = max
	}
	if m.PeriodTotal(it.Period)-it.Quantity+qty > max {
		return fmt.Errorf("%w: %s allows %d", ErrMealLimit, it.Period, max)
	}

	if it.Quantity == 0 && qty > 0 && len(it.Options) > 0 && len(it.SelectedOptions()) == 0 {
		it.Options[0].Selected = true
	}
	it.Quantity = qty
	return nil
}

// SelectOption makes optionID the item's only selected option.
func (m *MealSelection) SelectOption(k Key, optionID int) error {
	it, err := m.Item(k)
	if err != nil {
		return err
	}
	found := false
	for _, o := range it.Options {
		if o.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: option %d for item %s", ErrUnknownChoice, optionID, k)
	}
	for i := range it.Options {
		it.Options[i].Selected = it.Options[i].ID == optionID
	}
	return nil
}

// TogglePreference flips one preference of the item.
func (m *MealSelection) TogglePreference(k Key, prefID int) error {
	it, err := m.Item(k)
	if err != nil {
		return err
	}
	for i := range it.Preferences {
		if it.Preferences[i].ID == prefID {
			it.Preferences[i].Selected = !it.Preferences[i].Selected
			return nil
		}
	}
	return fmt.Errorf("%w: preference %d for item %s", ErrUnknownChoice, prefID, k)
}
