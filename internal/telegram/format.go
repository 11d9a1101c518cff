package telegram

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"residence-dining/internal/cutoff"
	"residence-dining/internal/dining"
	"residence-dining/internal/metrics"
	"residence-dining/internal/order"
	"residence-dining/internal/session"
)

const helpText = `Commands:
/login <room_no> <password>
/logout
/menu [date] [breakfast|lunch|dinner]
/set <date> <item[:order]> <qty>
/option <date> <item[:order]> <option_id>
/pref <date> <item[:order]> <preference_id>
/pending
/submit
/room [texture|instructions <value>]
/useroom <room_id>
/forms [form_type]
/form <form_id>
/formnew <form_type> <field>=<value> ...
/formedit <form_id> <field>=<value> ...
/report [date] [cached] (dining staff)
/metrics (admin)

Dates use YYYY-MM-DD.`

// splitCommand splits "/set@dining_bot 2026-10-16 5 1" into the command and
// its arguments.
func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return "", nil
	}
	cmd := strings.ToLower(fields[0])
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return cmd, fields[1:]
}

// parseKey reads "item" or "item:order".
func parseKey(s string) (order.Key, error) {
	item, ord, hasOrder := strings.Cut(s, ":")
	id, err := strconv.Atoi(item)
	if err != nil || id <= 0 {
		return order.Key{}, fmt.Errorf("invalid item %q", s)
	}
	k := order.Key{ItemID: id}
	if hasOrder {
		o, err := strconv.Atoi(ord)
		if err != nil || o < 0 {
			return order.Key{}, fmt.Errorf("invalid order id in %q", s)
		}
		k.OrderID = o
	}
	return k, nil
}

func parseInt(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return n, nil
}

// parseFields reads "key=value" pairs. Underscores in values stand for
// spaces, since arguments are split on whitespace.
func parseFields(args []string) (map[string]any, error) {
	fields := make(map[string]any, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid field %q, expected name=value", arg)
		}
		fields[k] = strings.ReplaceAll(v, "_", " ")
	}
	return fields, nil
}

func formatSelection(sel *order.MealSelection, states map[order.MealPeriod]cutoff.State, periods []order.MealPeriod) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Menu for %s", sel.Date)
	if sel.Guest {
		sb.WriteString(" (guest)")
	}
	sb.WriteString("\n")

	for _, p := range periods {
		sb.WriteString("\n")
		header := strings.ToUpper(p.String())
		if name := sel.CategoryNames[p]; name != "" {
			header += " - " + name
		}
		fmt.Fprintf(&sb, "%s [%s]\n", header, states[p])

		items := sel.ItemsFor(p)
		if len(items) == 0 {
			sb.WriteString("  nothing on offer\n")
			continue
		}
		for _, it := range items {
			fmt.Fprintf(&sb, "  %s %s x%d", it.Key(), it.Name, it.Quantity)
			if opts := chosen(it.Options); opts != "" {
				fmt.Fprintf(&sb, " (%s)", opts)
			}
			sb.WriteString("\n")
			if len(it.Options) > 1 {
				fmt.Fprintf(&sb, "      options: %s\n", listChoices(it.Options))
			}
			if len(it.Preferences) > 0 {
				fmt.Fprintf(&sb, "      preferences: %s\n", listChoices(it.Preferences))
			}
		}
	}
	return sb.String()
}

func chosen(cs []order.Choice) string {
	var names []string
	for _, c := range cs {
		if c.Selected {
			names = append(names, c.Name)
		}
	}
	return strings.Join(names, ", ")
}

func listChoices(cs []order.Choice) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		mark := ""
		if c.Selected {
			mark = "*"
		}
		parts[i] = fmt.Sprintf("%d=%s%s", c.ID, c.Name, mark)
	}
	return strings.Join(parts, ", ")
}

func formatPending(orders []order.DateOrder) string {
	if len(orders) == 0 {
		return "No pending changes."
	}
	var sb strings.Builder
	sb.WriteString("Pending changes:\n")
	for _, o := range orders {
		fmt.Fprintf(&sb, "\n%s (room %d)\n", o.Date, o.RoomID)
		for _, m := range o.Items {
			fmt.Fprintf(&sb, "  item %d:%d qty %d", m.ItemID, m.OrderID, m.Qty)
			if m.Options != "" {
				fmt.Fprintf(&sb, " options %s", m.Options)
			}
			if m.Preference != "" {
				fmt.Fprintf(&sb, " preferences %s", m.Preference)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatRoom(r *dining.Room) string {
	texture := r.FoodTexture
	if texture == "" {
		texture = "regular"
	}
	notes := r.SpecialInstructions
	if notes == "" {
		notes = "none"
	}
	return fmt.Sprintf("Room %s\nFood texture: %s\nSpecial instructions: %s", r.Name, texture, notes)
}

func formatRooms(rooms []session.Room, current int) string {
	var sb strings.Builder
	sb.WriteString("Rooms:")
	for _, r := range rooms {
		mark := ""
		if r.ID == current {
			mark = " (current)"
		}
		fmt.Fprintf(&sb, "\n  %d %s%s", r.ID, r.Name, mark)
	}
	return sb.String()
}

func formTypeName(id int, types []session.FormType) string {
	for _, t := range types {
		if t.ID == id {
			return t.Name
		}
	}
	return fmt.Sprintf("type %d", id)
}

func formatForms(forms []dining.Form, types []session.FormType) string {
	if len(forms) == 0 {
		return "No forms found."
	}

	var sb strings.Builder
	sb.WriteString("Forms:\n")
	for _, f := range forms {
		fmt.Fprintf(&sb, "  #%d %s [%s] %s\n", f.ID, f.Title, formTypeName(f.FormType, types), f.CreatedAt)
	}
	return sb.String()
}

func formatFormDetails(f *dining.FormDetails, types []session.FormType) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Form #%d %s [%s] %s\n", f.ID, f.Title, formTypeName(f.FormType, types), f.CreatedAt)
	if len(f.Fields) == 0 {
		sb.WriteString("  no fields\n")
		return sb.String()
	}
	names := make([]string, 0, len(f.Fields))
	for k := range f.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		fmt.Fprintf(&sb, "  %s: %v\n", k, f.Fields[k])
	}
	return sb.String()
}

func formatMetrics(counts []metrics.DailyCounts, health metrics.SysHealth) string {
	var sb strings.Builder
	sb.WriteString("Usage & Health Report\n\n")

	sb.WriteString("Recent submissions\n")
	if len(counts) == 0 {
		sb.WriteString("  no data yet\n")
	}
	for _, d := range counts {
		fmt.Fprintf(&sb, "  %s: %d submitted, %d failed, %d items, avg %dms\n", d.Date, d.Total, d.Failed, d.Items, d.AvgLatencyMS)
	}

	sb.WriteString("\nSystem health\n")
	fmt.Fprintf(&sb, "  RAM: %dMB (Alloc) / %dMB (Sys)\n", health.AllocMB, health.SysMB)
	fmt.Fprintf(&sb, "  Goroutines: %d\n", health.Goroutines)
	fmt.Fprintf(&sb, "  Report archive: %s\n", health.DataDiskSize)
	return sb.String()
}
