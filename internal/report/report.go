// Package report aggregates the meal snapshots of many rooms into the
// kitchen's daily consumption report.
package report

import (
	"fmt"
	"sort"
	"strings"

	"residence-dining/internal/order"
)

// Line is the total demand for one menu item in one meal period.
type Line struct {
	ItemID      int            `json:"item_id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Quantity    int            `json:"quantity"`
	Rooms       int            `json:"rooms"`
	Options     map[string]int `json:"options,omitempty"`
	Preferences map[string]int `json:"preferences,omitempty"`
}

// Period groups the lines of one meal period.
type Period struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	TrayService int    `json:"tray_service"`
	Lines       []Line `json:"lines"`
}

// Daily is the consumption report for one date.
type Daily struct {
	Date    string   `json:"date"`
	Rooms   int      `json:"rooms"`
	Guests  int      `json:"guests"`
	Periods []Period `json:"periods"`
}

// Build aggregates snapshots of one date. Items with zero quantity are not
// counted. Lines are ordered by category slot, then name.
func Build(date string, snapshots []*order.MealSnapshot) *Daily {
	d := &Daily{Date: date}

	type acc struct {
		line  Line
		slot  int
		rooms map[int]bool
	}
	perPeriod := make(map[order.MealPeriod]map[int]*acc)
	titles := make(map[order.MealPeriod]string)
	trays := make(map[order.MealPeriod]int)

	for _, snap := range snapshots {
		if snap == nil {
			continue
		}
		d.Rooms++
		if snap.Guest {
			d.Guests++
		}
		if snap.TrayService.Breakfast {
			trays[order.Breakfast]++
		}
		if snap.TrayService.Lunch {
			trays[order.Lunch]++
		}
		if snap.TrayService.Dinner {
			trays[order.Dinner]++
		}
		for p, name := range snap.CategoryNames {
			if titles[p] == "" && name != "" {
				titles[p] = name
			}
		}

		for _, it := range snap.Items {
			if it.Quantity <= 0 {
				continue
			}
			items := perPeriod[it.Period]
			if items == nil {
				items = make(map[int]*acc)
				perPeriod[it.Period] = items
			}
			a := items[it.ItemID]
			if a == nil {
				a = &acc{
					line: Line{
						ItemID:      it.ItemID,
						Name:        it.Name,
						Category:    it.Category.String(),
						Options:     map[string]int{},
						Preferences: map[string]int{},
					},
					slot:  slotIndex(it.Period, it.Category),
					rooms: map[int]bool{},
				}
				items[it.ItemID] = a
			}
			a.line.Quantity += it.Quantity
			a.rooms[snap.RoomID] = true
			for _, c := range it.Options {
				if c.Selected {
					a.line.Options[c.Name] += it.Quantity
				}
			}
			for _, c := range it.Preferences {
				if c.Selected {
					a.line.Preferences[c.Name] += it.Quantity
				}
			}
		}
	}

	for _, p := range order.Periods {
		accs := make([]*acc, 0, len(perPeriod[p]))
		for _, a := range perPeriod[p] {
			a.line.Rooms = len(a.rooms)
			accs = append(accs, a)
		}
		sort.Slice(accs, func(i, j int) bool {
			if accs[i].slot != accs[j].slot {
				return accs[i].slot < accs[j].slot
			}
			if accs[i].line.Name != accs[j].line.Name {
				return accs[i].line.Name < accs[j].line.Name
			}
			return accs[i].line.ItemID < accs[j].line.ItemID
		})

		period := Period{Name: p.String(), Title: titles[p], TrayService: trays[p], Lines: []Line{}}
		for _, a := range accs {
			period.Lines = append(period.Lines, a.line)
		}
		d.Periods = append(d.Periods, period)
	}
	return d
}

func slotIndex(p order.MealPeriod, c order.Category) int {
	for i, s := range order.Slots[p] {
		if s == c {
			return i
		}
	}
	return len(order.Slots[p])
}

// Text renders the report as plain text.
func (d *Daily) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Daily report %s\n", d.Date)
	fmt.Fprintf(&sb, "Rooms: %d, guest orders: %d\n", d.Rooms, d.Guests)

	for _, p := range d.Periods {
		sb.WriteString("\n")
		header := strings.ToUpper(p.Name)
		if p.Title != "" {
			header += " (" + p.Title + ")"
		}
		fmt.Fprintf(&sb, "%s, tray service: %d\n", header, p.TrayService)
		if len(p.Lines) == 0 {
			sb.WriteString("  no orders\n")
			continue
		}
		for _, l := range p.Lines {
			fmt.Fprintf(&sb, "  %d x %s [%s] (%d rooms)\n", l.Quantity, l.Name, l.Category, l.Rooms)
			if s := counts(l.Options); s != "" {
				fmt.Fprintf(&sb, "      options: %s\n", s)
			}
			if s := counts(l.Preferences); s != "" {
				fmt.Fprintf(&sb, "      preferences: %s\n", s)
			}
		}
	}
	return sb.String()
}

func counts(m map[string]int) string {
	if len(m) == 0 {
		return ""
	}
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = fmt.Sprintf("%s %d", n, m[n])
	}
	return strings.Join(parts, ", ")
}
