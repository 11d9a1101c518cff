package telegram

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"residence-dining/internal/app"
	"residence-dining/internal/config"
	"residence-dining/internal/cutoff"
	"residence-dining/internal/dining"
	"residence-dining/internal/metrics"
	"residence-dining/internal/order"
	"residence-dining/internal/ordering"
	"residence-dining/internal/session"
	"residence-dining/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of the Telegram API the bot uses to reply.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// chat is the ordering context of one Telegram chat.
type chat struct {
	sess   *session.Manager
	client dining.Client

	mu  sync.Mutex
	svc *ordering.Service
}

func (c *chat) service() *ordering.Service {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.svc
}

func (c *chat) setService(svc *ordering.Service) {
	c.mu.Lock()
	c.svc = svc
	c.mu.Unlock()
}

// Bot wraps the Telegram API and gives every chat its own dining session.
type Bot struct {
	api          sender
	cfg          *config.Config
	gate         *cutoff.Gate
	metricsStore *metrics.Store
	reportStore  *storage.ReportStore

	newStore  func(chatID int64) session.Store
	newClient func(sess *session.Manager) dining.Client
	now       func() time.Time

	mu    sync.Mutex
	chats map[int64]*chat
}

// NewBot initializes the Telegram Bot and sets the Webhook.
func NewBot(cfg *config.Config, db *sql.DB, metricsStore *metrics.Store, reportStore *storage.ReportStore) (*Bot, error) {
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to init telegram api: %w", err)
	}

	log.Printf("Authorized on account %s", bot.Self.UserName)

	webhookURL := cfg.TelegramWebhookURL
	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook url %s: %w", webhookURL, err)
	}
	resp, err := bot.Request(wh)
	if err != nil {
		return nil, fmt.Errorf("failed to set webhook to %s: %w", webhookURL, err)
	}
	log.Printf("Webhook set response: %s", resp.Description)

	b := newBot(bot, cfg, metricsStore, reportStore)
	b.newStore = func(chatID int64) session.Store {
		return session.NewSQLStore(db, fmt.Sprintf("tg:%d", chatID))
	}
	return b, nil
}

func newBot(api sender, cfg *config.Config, metricsStore *metrics.Store, reportStore *storage.ReportStore) *Bot {
	return &Bot{
		api:          api,
		cfg:          cfg,
		gate:         app.NewGate(cfg),
		metricsStore: metricsStore,
		reportStore:  reportStore,
		newStore:     func(int64) session.Store { return &session.MemoryStore{} },
		newClient: func(sess *session.Manager) dining.Client {
			return dining.NewClient(cfg, sess)
		},
		now:   time.Now,
		chats: make(map[int64]*chat),
	}
}

// RegisterHandlers registers the webhook handler on mux.
func (b *Bot) RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("/webhook", b.handleWebhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
}

func (b *Bot) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		log.Printf("Error parsing update: %v", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if update.Message == nil || update.Message.From == nil {
		return
	}

	if !b.allowed(update.Message.From.ID) {
		log.Printf("Warning: unauthorized access attempt from UserID: %d (@%s)", update.Message.From.ID, update.Message.From.UserName)
		return
	}

	go b.processMessage(update.Message)
}

func (b *Bot) allowed(userID int64) bool {
	if len(b.cfg.TelegramAllowedUserIDs) == 0 {
		return true
	}
	for _, id := range b.cfg.TelegramAllowedUserIDs {
		if userID == id {
			return true
		}
	}
	return false
}

func (b *Bot) processMessage(msg *tgbotapi.Message) {
	reply := b.handle(context.Background(), msg.Chat.ID, msg.From.ID, msg.Text)
	if reply == "" {
		return
	}
	if _, err := b.api.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		log.Printf("Failed to send reply: %v", err)
	}
}

// chatFor returns the context of chatID, restoring a saved session on first use.
func (b *Bot) chatFor(ctx context.Context, chatID int64) *chat {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c, ok := b.chats[chatID]; ok {
		return c
	}

	sess := session.NewManager(b.newStore(chatID))
	c := &chat{sess: sess, client: b.newClient(sess)}
	sess.OnTeardown(func() {
		c.setService(nil)
		log.Printf("Session for chat %d ended", chatID)
	})

	if err := sess.Restore(ctx); err != nil {
		log.Printf("Warning: failed to restore session for chat %d: %v", chatID, err)
	} else if p, err := sess.Profile(); err == nil {
		c.setService(b.newService(c, p.DefaultRoom()))
	}
	b.chats[chatID] = c
	return c
}

func (b *Bot) newService(c *chat, roomID int) *ordering.Service {
	var opts []ordering.Option
	if b.metricsStore != nil {
		opts = append(opts, ordering.WithRecorder(b.metricsStore))
	}
	opts = append(opts, ordering.WithClock(b.now))
	return ordering.NewService(c.client, b.gate, b.cfg.MaxMealQty, roomID, opts...)
}

// handle runs one command and returns the reply text.
func (b *Bot) handle(ctx context.Context, chatID, fromID int64, text string) string {
	cmd, args := splitCommand(text)
	c := b.chatFor(ctx, chatID)

	switch cmd {
	case "/start", "/help":
		return helpText
	case "/login":
		return b.handleLogin(ctx, c, args)
	case "/logout":
		if err := c.sess.Teardown(ctx); err != nil {
			return "Logout failed: " + err.Error()
		}
		return "Logged out."
	case "/metrics":
		if fromID != b.cfg.AdminTelegramID {
			return "Access denied: admin only."
		}
		return b.handleMetrics(ctx)
	}

	profile, err := c.sess.Profile()
	if err != nil {
		return "Please /login first."
	}
	svc := c.service()
	if svc == nil {
		svc = b.newService(c, profile.DefaultRoom())
		c.setService(svc)
	}

	switch cmd {
	case "/menu":
		return b.handleMenu(ctx, svc, args)
	case "/set", "/option", "/pref":
		return b.handleEdit(ctx, svc, cmd, args)
	case "/pending":
		return formatPending(svc.Pending())
	case "/submit":
		return b.handleSubmit(ctx, svc)
	case "/room":
		return b.handleRoom(ctx, c, svc.RoomID(), args)
	case "/useroom":
		return b.handleUseRoom(c, profile, svc, args)
	case "/forms":
		return b.handleForms(ctx, c, profile, args)
	case "/form":
		return b.handleFormDetails(ctx, c, profile, args)
	case "/formnew":
		return b.handleFormNew(ctx, c, args)
	case "/formedit":
		return b.handleFormEdit(ctx, c, args)
	case "/report":
		if !profile.IsAdmin() {
			return "Access denied: dining staff only."
		}
		return b.handleReport(ctx, c, args)
	}
	return "Unknown command. Send /help for the list of commands."
}

func (b *Bot) handleLogin(ctx context.Context, c *chat, args []string) string {
	if len(args) != 2 {
		return "Usage: /login <room_no> <password>"
	}
	s, err := c.client.Login(ctx, args[0], args[1])
	if err != nil {
		log.Printf("Login failed for room %s: %v", args[0], err)
		return "Login failed: " + dining.Notice(err)
	}
	c.setService(b.newService(c, s.Profile.DefaultRoom()))
	return fmt.Sprintf("Logged in as room %s (%s).", s.Profile.RoomNo, s.Profile.Role)
}

func (b *Bot) handleMenu(ctx context.Context, svc *ordering.Service, args []string) string {
	date := b.gate.Today(b.now())
	periods := order.Periods
	for _, arg := range args {
		if p, err := order.ParsePeriod(strings.ToLower(arg)); err == nil {
			periods = []order.MealPeriod{p}
			continue
		}
		date = arg
	}
	sel, err := svc.Open(ctx, date)
	if err != nil {
		return "Could not load menu: " + dining.Notice(err)
	}
	states, err := svc.States(date)
	if err != nil {
		return err.Error()
	}
	return formatSelection(sel, states, periods)
}

func (b *Bot) handleEdit(ctx context.Context, svc *ordering.Service, cmd string, args []string) string {
	if len(args) != 3 {
		return fmt.Sprintf("Usage: %s <date> <item[:order]> <value>", cmd)
	}
	date := args[0]
	key, err := parseKey(args[1])
	if err != nil {
		return err.Error()
	}
	value, err := parseInt(args[2])
	if err != nil {
		return err.Error()
	}
	if _, err := svc.Open(ctx, date); err != nil {
		return "Could not load menu: " + dining.Notice(err)
	}
	if key, err = svc.Resolve(date, key); err != nil {
		return err.Error()
	}

	switch cmd {
	case "/set":
		err = svc.SetQuantity(date, key, value)
	case "/option":
		err = svc.SelectOption(date, key, value)
	case "/pref":
		err = svc.TogglePreference(date, key, value)
	}
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("Updated item %s on %s. Send /pending to review or /submit to save.", key, date)
}

func (b *Bot) handleSubmit(ctx context.Context, svc *ordering.Service) string {
	res, err := svc.Submit(ctx)
	if err != nil {
		return "Submit failed: " + dining.Notice(err)
	}
	if res.Message != "" {
		return res.Message
	}
	return "Orders saved."
}

func (b *Bot) handleRoom(ctx context.Context, c *chat, roomID int, args []string) string {
	if len(args) == 0 {
		room, err := c.client.GetRoom(ctx, roomID)
		if err != nil {
			return "Could not load room: " + dining.Notice(err)
		}
		return formatRoom(room)
	}

	field, value := args[0], strings.Join(args[1:], " ")
	room, err := c.client.GetRoom(ctx, roomID)
	if err != nil {
		return "Could not load room: " + dining.Notice(err)
	}
	update := dining.RoomUpdate{FoodTexture: room.FoodTexture, SpecialInstructions: room.SpecialInstructions}
	switch field {
	case "texture":
		update.FoodTexture = value
	case "instructions":
		update.SpecialInstructions = value
	default:
		return "Usage: /room [texture|instructions <value>]"
	}
	room, err = c.client.UpdateRoom(ctx, roomID, update)
	if err != nil {
		return "Could not update room: " + dining.Notice(err)
	}
	return formatRoom(room)
}

func (b *Bot) handleUseRoom(c *chat, p session.Profile, current *ordering.Service, args []string) string {
	if len(args) != 1 {
		return fmt.Sprintf("Usage: /useroom <room_id>\n%s", formatRooms(p.Rooms, current.RoomID()))
	}
	id, err := parseInt(args[0])
	if err != nil {
		return err.Error()
	}
	if !p.HasRoom(id) {
		return fmt.Sprintf("Room %d is not on your profile.", id)
	}
	if id == current.RoomID() {
		return fmt.Sprintf("Already ordering for room %d.", id)
	}
	reply := fmt.Sprintf("Now ordering for room %d.", id)
	if len(current.Pending()) > 0 {
		reply += fmt.Sprintf(" Unsubmitted changes for room %d were discarded.", current.RoomID())
	}
	c.setService(b.newService(c, id))
	return reply
}

func (b *Bot) handleForms(ctx context.Context, c *chat, p session.Profile, args []string) string {
	formType := 0
	if len(args) > 0 {
		n, err := parseInt(args[0])
		if err != nil {
			return err.Error()
		}
		formType = n
	}
	forms, err := c.client.ListForms(ctx, formType)
	if err != nil {
		return "Could not load forms: " + dining.Notice(err)
	}
	return formatForms(forms, p.FormTypes)
}

func (b *Bot) handleFormDetails(ctx context.Context, c *chat, p session.Profile, args []string) string {
	if len(args) != 1 {
		return "Usage: /form <form_id>"
	}
	id, err := parseInt(args[0])
	if err != nil {
		return err.Error()
	}
	f, err := c.client.FormDetails(ctx, id)
	if err != nil {
		return "Could not load form: " + dining.Notice(err)
	}
	return formatFormDetails(f, p.FormTypes)
}

func (b *Bot) handleFormNew(ctx context.Context, c *chat, args []string) string {
	if len(args) < 2 {
		return "Usage: /formnew <form_type> <field>=<value> ..."
	}
	formType, err := parseInt(args[0])
	if err != nil {
		return err.Error()
	}
	fields, err := parseFields(args[1:])
	if err != nil {
		return err.Error()
	}
	id, err := c.client.SubmitForm(ctx, dining.FormSubmission{FormType: formType, Fields: fields})
	if err != nil {
		return "Could not submit form: " + dining.Notice(err)
	}
	return fmt.Sprintf("Form #%d submitted.", id)
}

// handleFormEdit loads the form, overlays the given fields and saves it.
func (b *Bot) handleFormEdit(ctx context.Context, c *chat, args []string) string {
	if len(args) < 2 {
		return "Usage: /formedit <form_id> <field>=<value> ..."
	}
	id, err := parseInt(args[0])
	if err != nil {
		return err.Error()
	}
	changes, err := parseFields(args[1:])
	if err != nil {
		return err.Error()
	}
	f, err := c.client.FormDetails(ctx, id)
	if err != nil {
		return "Could not load form: " + dining.Notice(err)
	}
	fields := make(map[string]any, len(f.Fields)+len(changes))
	for k, v := range f.Fields {
		fields[k] = v
	}
	for k, v := range changes {
		fields[k] = v
	}
	if err := c.client.EditForm(ctx, dining.FormSubmission{ID: id, FormType: f.FormType, Fields: fields}); err != nil {
		return "Could not update form: " + dining.Notice(err)
	}
	return fmt.Sprintf("Form #%d updated.", id)
}

func (b *Bot) handleReport(ctx context.Context, c *chat, args []string) string {
	date := b.gate.Today(b.now())
	cached := false
	for _, arg := range args {
		if strings.ToLower(arg) == "cached" {
			cached = true
			continue
		}
		date = arg
	}
	a := app.NewApp(c.client, c.sess, b.reportStore, b.metricsStore, b.cfg)
	d, err := a.DailyReport(ctx, date, cached)
	if err != nil {
		return "Report failed: " + dining.Notice(err)
	}
	return d.Text()
}

func (b *Bot) handleMetrics(ctx context.Context) string {
	var counts []metrics.DailyCounts
	if b.metricsStore != nil {
		var err error
		counts, err = b.metricsStore.GetDailyCounts(ctx, 7)
		if err != nil {
			return "Error fetching metrics."
		}
	}
	return formatMetrics(counts, metrics.GetSysHealth(b.cfg.ReportStoragePath))
}
