// Package chat turns inbound chat messages into Session Manager operations
// and replies to the user.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tejaschuahan/job-scraper-bot/internal/scraper"
	"github.com/tejaschuahan/job-scraper-bot/internal/session"
)

const replyTimeout = 10 * time.Second

// Message is one inbound chat message.
type Message struct {
	UserID string
	Name   string
	Text   string
}

// Replier sends plain text back to a user.
type Replier interface {
	SendText(ctx context.Context, userID, text string) error
}

// Sessions is the part of the Session Manager the router drives.
type Sessions interface {
	Start(userID, role string, filter scraper.FilterSpec) (session.Snapshot, error)
	Confirm(userID string) (session.Snapshot, error)
	Decline(userID string) (session.Snapshot, error)
	Stop(userID string) (session.Snapshot, error)
	Status(userID string) (session.Snapshot, error)
}

// Router handles commands: /start, /help, /search [role], /stop, /status
// and /cancel, plus free text while a role or a confirmation is expected.
type Router struct {
	sessions Sessions
	out      Replier
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	asking map[string]bool
}

// NewRouter returns a Router. interval is only used in messages.
func NewRouter(sessions Sessions, out Replier, interval time.Duration, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		sessions: sessions,
		out:      out,
		interval: interval,
		logger:   logger.Named("chat"),
		asking:   make(map[string]bool),
	}
}

var confirmWords = map[string]bool{"YES": true, "Y": true, "START": true, "OK": true}

// Handle processes msg and sends the reply.
func (r *Router) Handle(ctx context.Context, msg Message) error {
	reply := r.route(msg)
	if reply == "" {
		return nil
	}
	if err := r.out.SendText(ctx, msg.UserID, reply); err != nil {
		return fmt.Errorf("reply to %s: %w", msg.UserID, err)
	}
	return nil
}

func (r *Router) route(msg Message) string {
	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		cmd, arg, _ := strings.Cut(text, " ")
		// Group chats address commands as /cmd@botname.
		cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")
		r.logger.Debug("command", zap.String("user_id", msg.UserID), zap.String("command", cmd))
		switch cmd {
		case "/start":
			return welcomeText(msg.Name)
		case "/help":
			return helpText
		case "/search":
			if strings.TrimSpace(arg) != "" {
				r.setAsking(msg.UserID, false)
				return r.start(msg.UserID, arg)
			}
			if _, err := r.sessions.Status(msg.UserID); err == nil {
				return "You already have a search. Use /stop first."
			}
			r.setAsking(msg.UserID, true)
			return askRoleText()
		case "/stop":
			return r.stop(msg.UserID)
		case "/status":
			return r.status(msg.UserID)
		case "/cancel":
			r.setAsking(msg.UserID, false)
			if _, err := r.sessions.Decline(msg.UserID); err == nil {
				return "Cancelled. Use /search to start again."
			}
			return "Nothing to cancel. Use /search to start a search."
		default:
			return "Unknown command. Use /help to see what I can do."
		}
	}

	if r.takeAsking(msg.UserID) {
		return r.start(msg.UserID, text)
	}
	snap, err := r.sessions.Status(msg.UserID)
	if err == nil && snap.State == session.StateAwaitingConfirmation {
		if confirmWords[strings.ToUpper(text)] {
			return r.confirm(msg.UserID)
		}
		if _, err := r.sessions.Decline(msg.UserID); err == nil {
			return "Search cancelled. Use /search to start again."
		}
	}
	return "Use /search to start finding jobs, or /help for all commands."
}

func (r *Router) start(userID, role string) string {
	snap, err := r.sessions.Start(userID, role, scraper.FilterSpec{})
	switch {
	case errors.Is(err, session.ErrEmptyRole):
		r.setAsking(userID, true)
		return "Please type the job role you are looking for."
	case errors.Is(err, session.ErrInvalidTransition):
		return "You already have a search. Use /stop first."
	case err != nil:
		r.logger.Error("start session", zap.String("user_id", userID), zap.Error(err))
		return "Could not start the search right now. Please try again later."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Got it! I'll search for %s.\n\nI'll also include these related roles:\n", session.DisplayRole(snap.Role))
	for _, q := range snap.Queries {
		fmt.Fprintf(&b, "  • %s\n", session.DisplayRole(q))
	}
	fmt.Fprintf(&b, "\nI'll check every %s and send you new openings.\n\n", r.interval)
	b.WriteString("Ready to start? Type YES to begin or NO to cancel.")
	return b.String()
}

func (r *Router) confirm(userID string) string {
	snap, err := r.sessions.Confirm(userID)
	if err != nil {
		if errors.Is(err, session.ErrNoSession) {
			return "That search expired. Use /search to start again."
		}
		r.logger.Error("confirm session", zap.String("user_id", userID), zap.Error(err))
		return "Could not start the search right now. Please try again later."
	}
	return fmt.Sprintf("Starting job search for %s!\n\nRunning the first scrape now. After that I'll check every %s.\n\nUse /stop to stop the search anytime.",
		session.DisplayRole(snap.Role), r.interval)
}

func (r *Router) stop(userID string) string {
	r.setAsking(userID, false)
	snap, err := r.sessions.Status(userID)
	if err != nil {
		return "No active search found.\nUse /search to start a new job search."
	}
	if snap.State == session.StateAwaitingConfirmation {
		if _, err := r.sessions.Decline(userID); err != nil {
			return "No active search found.\nUse /search to start a new job search."
		}
		return "Search cancelled. Use /search to start again."
	}
	if _, err := r.sessions.Stop(userID); err != nil {
		return "No active search found.\nUse /search to start a new job search."
	}
	return fmt.Sprintf("Stopped searching for %s jobs.\n\nUse /search to start a new search anytime!", session.DisplayRole(snap.Role))
}

func (r *Router) status(userID string) string {
	snap, err := r.sessions.Status(userID)
	if err != nil {
		return "No active search running.\nUse /search to start finding jobs!"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Search status: %s\n\nMain role: %s\nSearching for:\n", strings.ReplaceAll(snap.State.String(), "_", " "), session.DisplayRole(snap.Role))
	for _, q := range snap.Queries {
		fmt.Fprintf(&b, "  • %s\n", session.DisplayRole(q))
	}
	fmt.Fprintf(&b, "\nCycles run: %d", snap.Cycles)
	if snap.LastError != "" {
		fmt.Fprintf(&b, "\nLast cycle problem: %s", snap.LastError)
	}
	return b.String()
}

// OnTransition tells the user about transitions they did not ask for.
func (r *Router) OnTransition(t session.Transition) {
	var text string
	switch t.Reason {
	case session.ReasonConfirmTimeout:
		text = "No confirmation received, so the search was cancelled. Use /search to start again."
	case session.ReasonError:
		text = "Your search was stopped because of an error. Please use /search to start a new search."
	default:
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	if err := r.out.SendText(ctx, t.UserID, text); err != nil {
		r.logger.Warn("transition notice failed", zap.String("user_id", t.UserID), zap.Error(err))
	}
}

func (r *Router) setAsking(userID string, v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v {
		r.asking[userID] = true
		return
	}
	delete(r.asking, userID)
}

func (r *Router) takeAsking(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.asking[userID] {
		return false
	}
	delete(r.asking, userID)
	return true
}

func welcomeText(name string) string {
	greeting := "Hi!"
	if name != "" {
		greeting = fmt.Sprintf("Hi %s!", name)
	}
	return greeting + "\n\nI'm your job scraper bot. I search several job boards and send you new openings as they appear.\n\n" +
		"Use /search to start finding jobs\nUse /stop to stop your active search\nUse /status to check your current search"
}

func askRoleText() string {
	var b strings.Builder
	b.WriteString("What job role are you looking for?\n\nType one of these or your own:\n")
	for _, role := range session.SuggestedRoles() {
		fmt.Fprintf(&b, "  • %s\n", role)
	}
	return strings.TrimRight(b.String(), "\n")
}

const helpText = "Commands:\n" +
	"/start - Welcome message\n" +
	"/search [role] - Start a job search\n" +
	"/stop - Stop your active search\n" +
	"/status - Check search status\n" +
	"/cancel - Cancel a search waiting for confirmation\n" +
	"/help - Show this help"
