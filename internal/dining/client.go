// Package dining is the HTTP client for the residence dining API.
package dining

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"residence-dining/internal/config"
	"residence-dining/internal/order"
	"residence-dining/internal/session"

	"github.com/google/uuid"
)

// Room is the room metadata the kitchen keeps per resident.
type Room struct {
	ID                  int    `json:"id"`
	Name                string `json:"room_name"`
	FoodTexture         string `json:"food_texture"`
	SpecialInstructions string `json:"special_instructions"`
}

// RoomUpdate carries the editable room fields.
type RoomUpdate struct {
	FoodTexture         string `json:"food_texture"`
	SpecialInstructions string `json:"special_instructions"`
}

// Form is one submitted static form (incident, log, move-in, ...).
type Form struct {
	ID        int    `json:"id"`
	FormType  int    `json:"form_type"`
	Title     string `json:"title"`
	CreatedAt string `json:"created_at"`
}

// FormSubmission is the body of a new or edited form.
type FormSubmission struct {
	ID       int
	FormType int
	Fields   map[string]any
}

// FormDetails is a form together with its field values.
type FormDetails struct {
	Form
	Fields map[string]any `json:"fields"`
}

// SubmitResult is the outcome of a successful order submission.
type SubmitResult struct {
	RequestID string
	Message   string
	ItemIDs   []int
	OrderIDs  []int
}

// Client is an interface for the dining API.
type Client interface {
	Login(ctx context.Context, roomNo, password string) (*session.Session, error)
	FetchMenu(ctx context.Context, roomID int, date string) (*order.MealSnapshot, error)
	SubmitOrders(ctx context.Context, currentDate string, roomID int, orders []order.DateOrder) (*SubmitResult, error)
	GetRoom(ctx context.Context, id int) (*Room, error)
	UpdateRoom(ctx context.Context, id int, update RoomUpdate) (*Room, error)
	ListForms(ctx context.Context, formType int) ([]Form, error)
	SubmitForm(ctx context.Context, f FormSubmission) (int, error)
	EditForm(ctx context.Context, f FormSubmission) error
	FormDetails(ctx context.Context, id int) (*FormDetails, error)
}

// httpClient is the concrete implementation of the dining API client.
type httpClient struct {
	baseURL    string
	httpClient *http.Client
	sess       *session.Manager
}

// NewClient creates a new dining API client bound to a session context.
func NewClient(cfg *config.Config, sess *session.Manager) Client {
	return &httpClient{
		baseURL:    cfg.DiningAPIURL,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		sess:       sess,
	}
}

// Login authenticates a room and begins a session on success.
func (c *httpClient) Login(ctx context.Context, roomNo, password string) (*session.Session, error) {
	q := url.Values{"room_no": {roomNo}, "password": {password}}
	env, _, err := c.do(ctx, http.MethodPost, "/login?"+q.Encode(), nil, false)
	if err != nil {
		return nil, err
	}

	var data loginData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: failed to decode login data: %v", ErrMalformed, err)
	}
	s, err := data.toSession(roomNo)
	if err != nil {
		return nil, err
	}
	if err := c.sess.Begin(ctx, s); err != nil {
		return nil, err
	}
	log.Printf("Room %s logged in with role %q", s.Profile.RoomNo, s.Profile.Role)
	return s, nil
}

// FetchMenu fetches the meal snapshot for a room and date.
func (c *httpClient) FetchMenu(ctx context.Context, roomID int, date string) (*order.MealSnapshot, error) {
	q := url.Values{"room_id": {strconv.Itoa(roomID)}, "date": {date}, "type": {"1"}}
	env, _, err := c.do(ctx, http.MethodPost, "/order-list?"+q.Encode(), nil, true)
	if err != nil {
		return nil, err
	}

	var data menuData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("%w: failed to decode menu: %v", ErrMalformed, err)
	}
	return data.toSnapshot(roomID, date)
}

// SubmitOrders sends a change-set. The orders are embedded as a JSON string,
// which is what the endpoint expects.
func (c *httpClient) SubmitOrders(ctx context.Context, currentDate string, roomID int, orders []order.DateOrder) (*SubmitResult, error) {
	ordersJSON, err := json.Marshal(orders)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal orders: %w", err)
	}
	body := map[string]any{
		"current_date":     currentDate,
		"room_id":          roomID,
		"orders_to_change": string(ordersJSON),
	}

	env, requestID, err := c.do(ctx, http.MethodPost, "/multi-order-update", body, true)
	if err != nil {
		return nil, err
	}

	res := &SubmitResult{
		RequestID: requestID,
		Message:   env.Message,
		ItemIDs:   ints(env.ItemID),
		OrderIDs:  ints(env.OrderID),
	}
	if len(res.ItemIDs) == 0 && len(env.Data) > 0 {
		var nested struct {
			ItemID  []flexInt `json:"item_id"`
			OrderID []flexInt `json:"order_id"`
		}
		if err := json.Unmarshal(env.Data, &nested); err == nil {
			res.ItemIDs = ints(nested.ItemID)
			res.OrderIDs = ints(nested.OrderID)
		}
	}
	return res, nil
}

// GetRoom fetches room metadata.
func (c *httpClient) GetRoom(ctx context.Context, id int) (*Room, error) {
	env, _, err := c.do(ctx, http.MethodGet, "/rooms/"+strconv.Itoa(id), nil, true)
	if err != nil {
		return nil, err
	}
	return decodeRoom(env.Data)
}

// UpdateRoom saves the editable room fields and returns the stored room.
func (c *httpClient) UpdateRoom(ctx context.Context, id int, update RoomUpdate) (*Room, error) {
	env, _, err := c.do(ctx, http.MethodPut, "/rooms/"+strconv.Itoa(id), update, true)
	if err != nil {
		return nil, err
	}
	if len(env.Data) == 0 || string(env.Data) == "null" {
		return &Room{ID: id, FoodTexture: update.FoodTexture, SpecialInstructions: update.SpecialInstructions}, nil
	}
	return decodeRoom(env.Data)
}

func decodeRoom(raw json.RawMessage) (*Room, error) {
	var wr wireRoom
	if err := json.Unmarshal(raw, &wr); err != nil {
		return nil, fmt.Errorf("%w: failed to decode room: %v", ErrMalformed, err)
	}
	return &Room{
		ID:                  int(wr.ID),
		Name:                plainText(wr.RoomName),
		FoodTexture:         wr.FoodTexture,
		SpecialInstructions: wr.SpecialInstructions,
	}, nil
}

type wireForm struct {
	ID        flexInt        `json:"id"`
	FormType  flexInt        `json:"form_type"`
	Title     string         `json:"title"`
	CreatedAt string         `json:"created_at"`
	Fields    map[string]any `json:"fields"`
}

func (wf wireForm) form() Form {
	return Form{ID: int(wf.ID), FormType: int(wf.FormType), Title: plainText(wf.Title), CreatedAt: wf.CreatedAt}
}

// ListForms lists submitted forms, optionally filtered by form type (0 = all).
func (c *httpClient) ListForms(ctx context.Context, formType int) ([]Form, error) {
	body := map[string]any{}
	if formType != 0 {
		body["form_type"] = formType
	}
	env, _, err := c.do(ctx, http.MethodPost, "/list-forms", body, true)
	if err != nil {
		return nil, err
	}

	var wf []wireForm
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &wf); err != nil {
			return nil, fmt.Errorf("%w: failed to decode forms: %v", ErrMalformed, err)
		}
	}
	forms := make([]Form, 0, len(wf))
	for _, f := range wf {
		forms = append(forms, f.form())
	}
	return forms, nil
}

// SubmitForm creates a form and returns its id.
func (c *httpClient) SubmitForm(ctx context.Context, f FormSubmission) (int, error) {
	env, _, err := c.do(ctx, http.MethodPost, "/general-form-submit-phase1", formBody(f), true)
	if err != nil {
		return 0, err
	}
	var created struct {
		ID flexInt `json:"id"`
	}
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &created); err != nil {
			return 0, fmt.Errorf("%w: failed to decode created form: %v", ErrMalformed, err)
		}
	}
	return int(created.ID), nil
}

// EditForm updates an existing form.
func (c *httpClient) EditForm(ctx context.Context, f FormSubmission) error {
	if f.ID == 0 {
		return fmt.Errorf("edit form: missing form id")
	}
	_, _, err := c.do(ctx, http.MethodPost, "/edit-form-phase1", formBody(f), true)
	return err
}

// FormDetails fetches one form with its field values.
func (c *httpClient) FormDetails(ctx context.Context, id int) (*FormDetails, error) {
	env, _, err := c.do(ctx, http.MethodPost, "/form-details", map[string]any{"id": id}, true)
	if err != nil {
		return nil, err
	}
	var wf wireForm
	if err := json.Unmarshal(env.Data, &wf); err != nil {
		return nil, fmt.Errorf("%w: failed to decode form details: %v", ErrMalformed, err)
	}
	return &FormDetails{Form: wf.form(), Fields: wf.Fields}, nil
}

func formBody(f FormSubmission) map[string]any {
	body := make(map[string]any, len(f.Fields)+2)
	for k, v := range f.Fields {
		body[k] = v
	}
	body["form_type"] = f.FormType
	if f.ID != 0 {
		body["id"] = f.ID
	}
	return body
}

// do sends one request and decodes the response envelope. With auth set the
// bearer token is attached and a 401 tears the session down. Errors after the
// request id is assigned are returned as *RequestError.
func (c *httpClient) do(ctx context.Context, method, path string, body any, auth bool) (*envelope, string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		token, err := c.sess.Token()
		if err != nil {
			return nil, requestID, &RequestError{RequestID: requestID, Err: fmt.Errorf("%w: %v", ErrUnauthorized, err)}
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	env, err := c.send(ctx, req, auth)
	if err != nil {
		return nil, requestID, &RequestError{RequestID: requestID, Err: err}
	}
	return env, requestID, nil
}

func (c *httpClient) send(ctx context.Context, req *http.Request, auth bool) (*envelope, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	decodeErr := json.Unmarshal(raw, &env)

	if resp.StatusCode == http.StatusUnauthorized && auth {
		log.Printf("Request %s %s rejected with 401, ending session", req.Method, req.URL.Path)
		if err := c.sess.Teardown(context.WithoutCancel(ctx)); err != nil {
			log.Printf("Warning: failed to tear down session: %v", err)
		}
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Text: env.Text, Message: env.Message}
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, decodeErr)
	}
	if env.Success != nil && !bool(*env.Success) {
		return nil, &APIError{Status: resp.StatusCode, Text: env.Text, Message: env.Message}
	}
	return &env, nil
}

// IsUnauthorized reports whether err ended the session.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
