package dining

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"residence-dining/internal/config"
	"residence-dining/internal/order"
	"residence-dining/internal/session"
)

const menuJSON = `{
	"success": 1,
	"data": {
		"breakfast_category": "Continental &amp; Hot",
		"lunch_category": "<b>Autumn</b> Lunch",
		"dinner_category": "Dinner",
		"is_for_guest": "0",
		"breakfast_tray_service": true,
		"lunch_tray_service": 0,
		"dinner_tray_service": "1",
		"breakfast": {
			"daily_special": [
				{"id": 5, "item_name": "Eggs Benedict", "order_id": 0, "qty": "1",
				 "options": [{"id": 1, "name": "Poached", "is_selected": 1}, {"id": 2, "name": "Scrambled", "is_selected": 0}],
				 "preference": [{"id": 1, "name": "No salt", "is_selected": true}]}
			],
			"alternative": []
		},
		"lunch": {
			"soup": [{"item_id": 8, "item_name": "Minestrone", "order_id": 44, "qty": 2, "options": null, "preference": []}]
		},
		"dinner": []
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (Client, *session.Manager) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	sess := session.NewManager(&session.MemoryStore{})
	cfg := &config.Config{DiningAPIURL: server.URL, HTTPTimeout: 5 * time.Second}
	return NewClient(cfg, sess), sess
}

func loggedIn(t *testing.T, sess *session.Manager) {
	t.Helper()
	if err := sess.Begin(context.Background(), &session.Session{Token: "tok"}); err != nil {
		t.Fatalf("Failed to begin session: %v", err)
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/login" || r.Method != http.MethodPost {
				t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.URL.Query().Get("room_no") != "101" || r.URL.Query().Get("password") != "pw" {
				t.Errorf("Unexpected query %s", r.URL.RawQuery)
			}
			if r.Header.Get("Authorization") != "" {
				t.Error("Login must not send a bearer token")
			}
			fmt.Fprintln(w, `{"success": true, "data": {"token": "abc", "role": "resident",
				"rooms": [{"id": "7", "room_name": "101"}],
				"features": {"guest_order": 1},
				"form_types": [{"id": 1, "name": "Incident"}]}}`)
		})

		s, err := client.Login(ctx, "101", "pw")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if s.Profile.RoomNo != "101" || s.Profile.DefaultRoom() != 7 || !s.Profile.Features["guest_order"] {
			t.Errorf("Unexpected profile %+v", s.Profile)
		}
		if tok, _ := sess.Token(); tok != "abc" {
			t.Errorf("Expected session token 'abc', got '%s'", tok)
		}
	})

	t.Run("BadCredentials", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprintln(w, `{"success": false, "message": "Invalid room or password"}`)
		})

		_, err := client.Login(ctx, "101", "nope")
		if err == nil {
			t.Fatal("Expected an error, got nil")
		}
		if Notice(err) != "Invalid room or password" {
			t.Errorf("Unexpected notice %q", Notice(err))
		}
		if _, err := sess.Token(); !errors.Is(err, session.ErrNoSession) {
			t.Errorf("Expected no session, got %v", err)
		}
	})
}

func TestFetchMenu(t *testing.T) {
	ctx := context.Background()

	t.Run("NormalizesPayload", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer tok" {
				t.Errorf("Expected bearer token, got %q", r.Header.Get("Authorization"))
			}
			q := r.URL.Query()
			if r.URL.Path != "/order-list" || q.Get("room_id") != "7" || q.Get("date") != "2026-10-16" || q.Get("type") != "1" {
				t.Errorf("Unexpected request %s?%s", r.URL.Path, r.URL.RawQuery)
			}
			fmt.Fprintln(w, menuJSON)
		})
		loggedIn(t, sess)

		snap, err := client.FetchMenu(ctx, 7, "2026-10-16")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if snap.CategoryNames[order.Breakfast] != "Continental & Hot" {
			t.Errorf("Expected entity decoded, got %q", snap.CategoryNames[order.Breakfast])
		}
		if snap.CategoryNames[order.Lunch] != "Autumn Lunch" {
			t.Errorf("Expected markup stripped, got %q", snap.CategoryNames[order.Lunch])
		}
		if snap.Guest || !snap.TrayService.Breakfast || snap.TrayService.Lunch || !snap.TrayService.Dinner {
			t.Errorf("Unexpected flags guest=%v tray=%+v", snap.Guest, snap.TrayService)
		}
		if len(snap.Items) != 2 {
			t.Fatalf("Expected 2 items, got %d", len(snap.Items))
		}
		eggs := snap.Items[0]
		if eggs.Period != order.Breakfast || eggs.Category != order.DailySpecial || eggs.ItemID != 5 || eggs.Quantity != 1 {
			t.Errorf("Unexpected first item %+v", eggs)
		}
		if got := eggs.SelectedOptions(); len(got) != 1 || got[0] != 1 {
			t.Errorf("Expected option 1 selected, got %v", got)
		}
		soup := snap.Items[1]
		if soup.Period != order.Lunch || soup.Category != order.Soup || soup.OrderID != 44 || len(soup.Options) != 0 {
			t.Errorf("Unexpected second item %+v", soup)
		}
	})

	t.Run("RejectsInvalidSlot", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"success": true, "data": {"breakfast": {"soup": [{"id": 1, "qty": 0}]}}}`)
		})
		loggedIn(t, sess)

		if _, err := client.FetchMenu(ctx, 7, "2026-10-16"); !errors.Is(err, ErrMalformed) {
			t.Errorf("Expected ErrMalformed, got %v", err)
		}
	})

	t.Run("RejectsDuplicateItem", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"success": true, "data": {"lunch": {"entree": [{"id": 9, "qty": 1}], "alternative": [{"id": 9, "qty": 0}]}}}`)
		})
		loggedIn(t, sess)

		if _, err := client.FetchMenu(ctx, 7, "2026-10-16"); !errors.Is(err, ErrMalformed) {
			t.Errorf("Expected ErrMalformed for item 9:0 listed twice, got %v", err)
		}
	})

	t.Run("UnauthorizedTearsDownSession", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
		loggedIn(t, sess)
		torn := false
		sess.OnTeardown(func() { torn = true })

		_, err := client.FetchMenu(ctx, 7, "2026-10-16")
		if !IsUnauthorized(err) {
			t.Fatalf("Expected ErrUnauthorized, got %v", err)
		}
		if !torn {
			t.Error("Expected teardown hook to run")
		}
		if _, err := sess.Token(); !errors.Is(err, session.ErrNoSession) {
			t.Errorf("Expected session cleared, got %v", err)
		}
	})

	t.Run("NoSession", func(t *testing.T) {
		called := false
		client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		})
		if _, err := client.FetchMenu(ctx, 7, "2026-10-16"); !IsUnauthorized(err) {
			t.Errorf("Expected ErrUnauthorized, got %v", err)
		}
		if called {
			t.Error("Expected no request without a session")
		}
	})
}

func TestSubmitOrders(t *testing.T) {
	ctx := context.Background()
	orders := []order.DateOrder{{
		Date:   "2026-10-16",
		RoomID: 7,
		Items:  []order.ItemMutation{{ItemID: 5, Qty: 2, Preference: "1,2", Options: "1"}},
	}}

	t.Run("Success", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/multi-order-update" {
				t.Errorf("Unexpected path %s", r.URL.Path)
			}
			if r.Header.Get("X-Request-ID") == "" {
				t.Error("Expected a request id header")
			}
			body, _ := io.ReadAll(r.Body)
			var req struct {
				CurrentDate    string `json:"current_date"`
				RoomID         int    `json:"room_id"`
				OrdersToChange string `json:"orders_to_change"`
			}
			if err := json.Unmarshal(body, &req); err != nil {
				t.Errorf("Failed to decode body: %v", err)
				return
			}
			var sent []order.DateOrder
			if err := json.Unmarshal([]byte(req.OrdersToChange), &sent); err != nil {
				t.Errorf("orders_to_change is not a JSON string of orders: %v", err)
				return
			}
			if req.CurrentDate != "2026-10-15" || req.RoomID != 7 || len(sent) != 1 || sent[0].Items[0].Preference != "1,2" {
				t.Errorf("Unexpected submission %+v / %+v", req, sent)
			}
			fmt.Fprintln(w, `{"success": true, "message": "Saved", "item_id": [5], "order_id": ["301"]}`)
		})
		loggedIn(t, sess)

		res, err := client.SubmitOrders(ctx, "2026-10-15", 7, orders)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if res.Message != "Saved" || len(res.ItemIDs) != 1 || res.OrderIDs[0] != 301 || res.RequestID == "" {
			t.Errorf("Unexpected result %+v", res)
		}
	})

	t.Run("NestedIDs", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"success": true, "data": {"item_id": [5], "order_id": [302]}}`)
		})
		loggedIn(t, sess)

		res, err := client.SubmitOrders(ctx, "2026-10-15", 7, orders)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(res.OrderIDs) != 1 || res.OrderIDs[0] != 302 {
			t.Errorf("Unexpected result %+v", res)
		}
	})

	t.Run("FailureResponse", func(t *testing.T) {
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"success": 0, "message": "Generic failure", "text": "Lunch is closed for today"}`)
		})
		loggedIn(t, sess)

		_, err := client.SubmitOrders(ctx, "2026-10-15", 7, orders)
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("Expected APIError, got %v", err)
		}
		if Notice(err) != "Lunch is closed for today" {
			t.Errorf("Expected text to win over message, got %q", Notice(err))
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		var sentID string
		client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			sentID = r.Header.Get("X-Request-ID")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintln(w, `{"message": "Database unavailable"}`)
		})
		loggedIn(t, sess)

		_, err := client.SubmitOrders(ctx, "2026-10-15", 7, orders)
		if Notice(err) != "Database unavailable" {
			t.Errorf("Expected message notice, got %q", Notice(err))
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || apiErr.Status != http.StatusInternalServerError {
			t.Errorf("Expected APIError with status 500, got %v", err)
		}
		if sentID == "" || RequestID(err) != sentID {
			t.Errorf("Expected request id %q on the error, got %q", sentID, RequestID(err))
		}
	})
}

func TestRoomsAndForms(t *testing.T) {
	ctx := context.Background()
	client, sess := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/rooms/7":
			fmt.Fprintln(w, `{"data": {"id": 7, "room_name": "101", "food_texture": "Minced", "special_instructions": "No nuts"}}`)
		case r.Method == http.MethodPut && r.URL.Path == "/rooms/7":
			var upd RoomUpdate
			_ = json.NewDecoder(r.Body).Decode(&upd)
			fmt.Fprintf(w, `{"success": true, "data": {"id": 7, "room_name": "101", "food_texture": %q, "special_instructions": %q}}`, upd.FoodTexture, upd.SpecialInstructions)
		case r.URL.Path == "/list-forms":
			fmt.Fprintln(w, `{"success": true, "data": [{"id": 1, "form_type": 2, "title": "Fall in hallway", "created_at": "2026-10-01"}]}`)
		case r.URL.Path == "/general-form-submit-phase1":
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["form_type"] != float64(2) || body["summary"] != "Slipped" {
				t.Errorf("Unexpected form body %v", body)
			}
			fmt.Fprintln(w, `{"success": true, "data": {"id": 12}}`)
		case r.URL.Path == "/edit-form-phase1":
			fmt.Fprintln(w, `{"success": true}`)
		case r.URL.Path == "/form-details":
			fmt.Fprintln(w, `{"success": true, "data": {"id": 12, "form_type": 2, "title": "Fall", "fields": {"summary": "Slipped"}}}`)
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})
	loggedIn(t, sess)

	room, err := client.GetRoom(ctx, 7)
	if err != nil || room.FoodTexture != "Minced" || room.SpecialInstructions != "No nuts" {
		t.Fatalf("Unexpected room %+v (%v)", room, err)
	}

	room, err = client.UpdateRoom(ctx, 7, RoomUpdate{FoodTexture: "Pureed", SpecialInstructions: "Thickened fluids"})
	if err != nil || room.FoodTexture != "Pureed" {
		t.Fatalf("Unexpected updated room %+v (%v)", room, err)
	}

	forms, err := client.ListForms(ctx, 2)
	if err != nil || len(forms) != 1 || forms[0].Title != "Fall in hallway" {
		t.Fatalf("Unexpected forms %+v (%v)", forms, err)
	}

	id, err := client.SubmitForm(ctx, FormSubmission{FormType: 2, Fields: map[string]any{"summary": "Slipped"}})
	if err != nil || id != 12 {
		t.Fatalf("Unexpected created id %d (%v)", id, err)
	}

	if err := client.EditForm(ctx, FormSubmission{FormType: 2}); err == nil {
		t.Error("Expected an error when editing without id")
	}
	if err := client.EditForm(ctx, FormSubmission{ID: 12, FormType: 2, Fields: map[string]any{"summary": "Tripped"}}); err != nil {
		t.Errorf("EditForm failed: %v", err)
	}

	details, err := client.FormDetails(ctx, 12)
	if err != nil || details.Fields["summary"] != "Slipped" {
		t.Fatalf("Unexpected details %+v (%v)", details, err)
	}
}

func TestNotice(t *testing.T) {
	if got := Notice(fmt.Errorf("dial tcp: connection refused")); got != "dial tcp: connection refused" {
		t.Errorf("Expected transport message, got %q", got)
	}
	if got := Notice(&APIError{Status: 500}); got != "dining api error: status 500" {
		t.Errorf("Unexpected notice %q", got)
	}
	if got := Notice(nil); got != "" {
		t.Errorf("Expected empty notice, got %q", got)
	}
}
