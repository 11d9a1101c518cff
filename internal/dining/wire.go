package dining

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"residence-dining/internal/order"
	"residence-dining/internal/session"

	"github.com/PuerkitoBio/goquery"
)

// flexInt accepts numbers, numeric strings, booleans and null.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = 0
		return nil
	case bytes.Equal(b, []byte("true")):
		*f = 1
		return nil
	case bytes.Equal(b, []byte("false")):
		*f = 0
		return nil
	}

	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.ParseInt(s, 10, 32); err == nil {
		*f = flexInt(n)
		return nil
	}
	// Integral floats such as 3.0 are accepted, fractions are not.
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n != math.Trunc(n) {
		return fmt.Errorf("%w: not an integer: %s", ErrMalformed, string(b))
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return fmt.Errorf("%w: integer out of range: %s", ErrMalformed, string(b))
	}
	*f = flexInt(int(n))
	return nil
}

// flexBool accepts booleans, 0/1 numbers and their string forms.
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes":
		*f = true
	case "false", "0", "no", "", "null":
		*f = false
	default:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: not a boolean: %s", ErrMalformed, string(b))
		}
		*f = n != 0
	}
	return nil
}

type envelope struct {
	Success *flexBool       `json:"success"`
	Message string          `json:"message"`
	Text    string          `json:"text"`
	Data    json.RawMessage `json:"data"`
	ItemID  []flexInt       `json:"item_id"`
	OrderID []flexInt       `json:"order_id"`
}

type wireRoom struct {
	ID                  flexInt `json:"id"`
	RoomName            string  `json:"room_name"`
	FoodTexture         string  `json:"food_texture"`
	SpecialInstructions string  `json:"special_instructions"`
}

type wireNamed struct {
	ID   flexInt `json:"id"`
	Name string  `json:"name"`
}

type loginData struct {
	Token     string              `json:"token"`
	RoomNo    string              `json:"room_no"`
	Role      string              `json:"role"`
	Rooms     []wireRoom          `json:"rooms"`
	Features  map[string]flexBool `json:"features"`
	FormTypes []wireNamed         `json:"form_types"`
}

func (d loginData) toSession(roomNo string) (*session.Session, error) {
	if d.Token == "" {
		return nil, fmt.Errorf("%w: login response has no token", ErrMalformed)
	}
	p := session.Profile{
		RoomNo:   d.RoomNo,
		Role:     d.Role,
		Features: make(map[string]bool, len(d.Features)),
	}
	if p.RoomNo == "" {
		p.RoomNo = roomNo
	}
	for _, r := range d.Rooms {
		p.Rooms = append(p.Rooms, session.Room{ID: int(r.ID), Name: plainText(r.RoomName)})
	}
	for k, v := range d.Features {
		p.Features[k] = bool(v)
	}
	for _, ft := range d.FormTypes {
		p.FormTypes = append(p.FormTypes, session.FormType{ID: int(ft.ID), Name: plainText(ft.Name)})
	}
	return &session.Session{Token: d.Token, Profile: p}, nil
}

type wireChoice struct {
	ID         flexInt  `json:"id"`
	Name       string   `json:"name"`
	IsSelected flexBool `json:"is_selected"`
}

type wireItem struct {
	ID         flexInt      `json:"id"`
	ItemID     flexInt      `json:"item_id"`
	ItemName   string       `json:"item_name"`
	OrderID    flexInt      `json:"order_id"`
	Qty        flexInt      `json:"qty"`
	Options    []wireChoice `json:"options"`
	Preference []wireChoice `json:"preference"`
}

type menuData struct {
	BreakfastCategory    string        `json:"breakfast_category"`
	LunchCategory        string        `json:"lunch_category"`
	DinnerCategory       string        `json:"dinner_category"`
	IsForGuest           flexBool      `json:"is_for_guest"`
	BreakfastTrayService flexBool      `json:"breakfast_tray_service"`
	LunchTrayService     flexBool      `json:"lunch_tray_service"`
	DinnerTrayService    flexBool      `json:"dinner_tray_service"`
	Breakfast            categoryLists `json:"breakfast"`
	Lunch                categoryLists `json:"lunch"`
	Dinner               categoryLists `json:"dinner"`
}

// categoryLists maps category names to items. An empty meal period may be
// encoded as [] instead of {}.
type categoryLists map[string][]wireItem

func (c *categoryLists) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*c = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var empty []json.RawMessage
		if err := json.Unmarshal(b, &empty); err != nil {
			return err
		}
		if len(empty) > 0 {
			return fmt.Errorf("%w: meal period is a non-empty list", ErrMalformed)
		}
		*c = nil
		return nil
	}
	m := map[string][]wireItem{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	*c = m
	return nil
}

var categoryByName = map[string]order.Category{
	"daily_special": order.DailySpecial,
	"alternative":   order.Alternative,
	"soup":          order.Soup,
	"entree":        order.Entree,
}

// toSnapshot validates the menu payload and converts it into a snapshot with
// one tagged LineItem per listed item. Absent categories become empty. An item
// key listed twice on one date is rejected, since edits address items by key.
func (d menuData) toSnapshot(roomID int, date string) (*order.MealSnapshot, error) {
	snap := &order.MealSnapshot{
		Date:   date,
		RoomID: roomID,
		CategoryNames: map[order.MealPeriod]string{
			order.Breakfast: plainText(d.BreakfastCategory),
			order.Lunch:     plainText(d.LunchCategory),
			order.Dinner:    plainText(d.DinnerCategory),
		},
		Guest: bool(d.IsForGuest),
		TrayService: order.TrayService{
			Breakfast: bool(d.BreakfastTrayService),
			Lunch:     bool(d.LunchTrayService),
			Dinner:    bool(d.DinnerTrayService),
		},
	}

	periods := map[order.MealPeriod]categoryLists{
		order.Breakfast: d.Breakfast,
		order.Lunch:     d.Lunch,
		order.Dinner:    d.Dinner,
	}
	seen := make(map[order.Key]order.MealPeriod)
	for _, p := range order.Periods {
		lists := periods[p]
		for name := range lists {
			c, ok := categoryByName[name]
			if !ok || !order.ValidSlot(p, c) {
				return nil, fmt.Errorf("%w: %s has no %q category", ErrMalformed, p, name)
			}
		}
		for _, c := range order.Slots[p] {
			for _, wi := range lists[c.String()] {
				li, err := wi.toLineItem(p, c)
				if err != nil {
					return nil, err
				}
				if prev, dup := seen[li.Key()]; dup {
					return nil, fmt.Errorf("%w: item %s listed twice on %s (%s and %s)", ErrMalformed, li.Key(), date, prev, p)
				}
				seen[li.Key()] = p
				snap.Items = append(snap.Items, li)
			}
		}
	}
	return snap, nil
}

func (wi wireItem) toLineItem(p order.MealPeriod, c order.Category) (order.LineItem, error) {
	id := int(wi.ItemID)
	if id == 0 {
		id = int(wi.ID)
	}
	if id <= 0 {
		return order.LineItem{}, fmt.Errorf("%w: %s %s item without id", ErrMalformed, p, c)
	}
	if wi.Qty < 0 || wi.OrderID < 0 {
		return order.LineItem{}, fmt.Errorf("%w: item %d has negative qty or order id", ErrMalformed, id)
	}
	return order.LineItem{
		Period:      p,
		Category:    c,
		ItemID:      id,
		OrderID:     int(wi.OrderID),
		Name:        plainText(wi.ItemName),
		Quantity:    int(wi.Qty),
		Options:     toChoices(wi.Options),
		Preferences: toChoices(wi.Preference),
	}, nil
}

func toChoices(in []wireChoice) []order.Choice {
	out := make([]order.Choice, 0, len(in))
	for _, c := range in {
		out = append(out, order.Choice{ID: int(c.ID), Name: plainText(c.Name), Selected: bool(c.IsSelected)})
	}
	return out
}

func ints(in []flexInt) []int {
	out := make([]int, len(in))
	for i, v := range in {
		out[i] = int(v)
	}
	return out
}

// plainText strips markup the back office sometimes stores in display names.
func plainText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
