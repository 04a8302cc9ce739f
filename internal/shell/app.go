// Package shell is the application frame around the chat session: which view
// is showing, who is signed in, the UI preferences, and which client
// provides speech.
package shell

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/brain"
	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/observability"
	"github.com/antoniostano/aura/internal/prefs"
	"github.com/antoniostano/aura/internal/voice"
)

type View string

const (
	ViewHome     View = "home"
	ViewSession  View = "session"
	ViewProgress View = "progress"
	ViewHelp     View = "help"
	ViewLogin    View = "login"
	ViewRegister View = "register"
)

func (v View) protected() bool {
	return v == ViewSession || v == ViewProgress
}

func (v View) valid() bool {
	switch v {
	case ViewHome, ViewSession, ViewProgress, ViewHelp, ViewLogin, ViewRegister:
		return true
	default:
		return false
	}
}

var ErrUnauthenticated = errors.New("no account signed in")

const subscriberBuffer = 64

type Config struct {
	Catalog  *i18n.Catalog
	Prefs    *prefs.Service
	Accounts *account.Store
	Provider brain.Provider
	Metrics  *observability.Metrics
}

// State is what the frame shows: the view, the account and the greeting
// line for it.
type State struct {
	View     View             `json:"view"`
	Account  *account.Account `json:"account,omitempty"`
	Language i18n.Language    `json:"language"`
	Welcome  string           `json:"welcome,omitempty"`
	Speech   bool             `json:"speech_attached"`
}

type App struct {
	catalog  *i18n.Catalog
	prefs    *prefs.Service
	accounts *account.Store
	provider brain.Provider
	metrics  *observability.Metrics

	mu          sync.Mutex
	view        View
	acct        *account.Account
	lang        i18n.Language
	session     *chat.Orchestrator
	capability  voice.Capability
	synth       voice.Synthesizer
	speechOwner string

	subMu   sync.Mutex
	subs    map[int]chan chat.Event
	nextSub int
}

// New restores the saved language and signed-in account.
func New(ctx context.Context, cfg Config) (*App, error) {
	lang, err := cfg.Prefs.Language(ctx)
	if err != nil {
		return nil, err
	}
	acct, err := cfg.Accounts.Current(ctx)
	if err != nil {
		return nil, err
	}
	a := &App{
		catalog:    cfg.Catalog,
		prefs:      cfg.Prefs,
		accounts:   cfg.Accounts,
		provider:   cfg.Provider,
		metrics:    cfg.Metrics,
		view:       ViewHome,
		acct:       acct,
		lang:       lang,
		capability: voice.Unavailable(),
		synth:      voice.Silent{},
		subs:       make(map[int]chan chat.Event),
	}
	if acct != nil {
		a.mu.Lock()
		a.openSessionLocked()
		a.mu.Unlock()
	}
	return a, nil
}

func (a *App) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stateLocked()
}

func (a *App) stateLocked() State {
	st := State{View: a.view, Language: a.lang, Speech: a.speechOwner != ""}
	if a.acct != nil {
		acct := *a.acct
		st.Account = &acct
		st.Welcome = a.catalog.Bundle(a.lang).Format(i18n.KeyWelcomeUser, map[string]string{"username": acct.Username})
	}
	return st
}

func (a *App) Bundle() *i18n.Bundle {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.catalog.Bundle(a.lang)
}

// Navigate shows v. Protected views fall back to login without an account;
// unknown views fall back to home.
func (a *App) Navigate(v View) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	switch {
	case !v.valid():
		v = ViewHome
	case v.protected() && a.acct == nil:
		v = ViewLogin
	}
	a.view = v
	return a.stateLocked()
}

// StartSession opens the chat view, creating the session when needed.
func (a *App) StartSession(_ context.Context) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acct == nil {
		a.view = ViewLogin
		return a.stateLocked()
	}
	if a.session == nil {
		a.openSessionLocked()
	}
	a.view = ViewSession
	return a.stateLocked()
}

// Session returns the signed-in account's chat session.
func (a *App) Session() (*chat.Orchestrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.acct == nil {
		return nil, ErrUnauthenticated
	}
	if a.session == nil {
		a.openSessionLocked()
	}
	return a.session, nil
}

func (a *App) Login(ctx context.Context, username, password string) (State, error) {
	acct, err := a.accounts.Login(ctx, username, password)
	if err != nil {
		return a.State(), err
	}
	return a.signedIn(acct), nil
}

func (a *App) Register(ctx context.Context, username, password, confirm string) (State, error) {
	acct, err := a.accounts.Register(ctx, username, password, confirm)
	if err != nil {
		return a.State(), err
	}
	return a.signedIn(acct), nil
}

func (a *App) signedIn(acct account.Account) State {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeSessionLocked()
	a.acct = &acct
	a.openSessionLocked()
	a.view = ViewHome
	log.Printf("account signed in id=%s", acct.ID)
	return a.stateLocked()
}

func (a *App) Logout(ctx context.Context) (State, error) {
	if err := a.accounts.Logout(ctx); err != nil {
		return a.State(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeSessionLocked()
	a.acct = nil
	a.view = ViewHome
	return a.stateLocked(), nil
}

// SetLanguage persists lang and restarts an open session in it.
func (a *App) SetLanguage(ctx context.Context, lang i18n.Language) (State, error) {
	if err := a.prefs.SetLanguage(ctx, lang); err != nil {
		return a.State(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lang = lang
	if a.session != nil {
		if err := a.session.SetLanguage(lang); err != nil {
			return a.stateLocked(), fmt.Errorf("switch session language: %w", err)
		}
	}
	return a.stateLocked(), nil
}

func (a *App) ToggleLanguage(ctx context.Context) (State, error) {
	a.mu.Lock()
	next := a.lang.Toggle()
	a.mu.Unlock()
	return a.SetLanguage(ctx, next)
}

func (a *App) ToggleTheme(ctx context.Context) (prefs.Theme, error) {
	return a.prefs.ToggleTheme(ctx)
}

func (a *App) AcceptCookies(ctx context.Context) error {
	return a.prefs.AcceptCookies(ctx)
}

func (a *App) Preferences(ctx context.Context) (prefs.Preferences, error) {
	return a.prefs.Load(ctx)
}

// AttachSpeech makes owner the speech provider. The most recent caller wins.
func (a *App) AttachSpeech(owner string, capability voice.Capability, synth voice.Synthesizer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speechOwner = owner
	a.capability = capability
	a.synth = synth
	if a.session != nil {
		a.session.AttachSpeech(capability, synth)
	}
}

// DetachSpeech drops owner's speech engines if it still holds them.
func (a *App) DetachSpeech(owner string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.speechOwner != owner {
		return
	}
	a.speechOwner = ""
	a.capability = voice.Unavailable()
	a.synth = voice.Silent{}
	if a.session != nil {
		a.session.AttachSpeech(a.capability, a.synth)
	}
}

// Subscribe returns a stream of session events. Slow subscribers miss
// events rather than stall the session.
func (a *App) Subscribe() (<-chan chat.Event, func()) {
	ch := make(chan chat.Event, subscriberBuffer)
	a.subMu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = ch
	a.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, id)
			a.subMu.Unlock()
			close(ch)
		})
	}
}

func (a *App) broadcast(ev chat.Event) {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for id, ch := range a.subs {
		select {
		case ch <- ev:
		default:
			log.Printf("session event dropped: subscriber=%d type=%s", id, ev.Type)
		}
	}
}

// Close ends the open session.
func (a *App) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closeSessionLocked()
}

func (a *App) openSessionLocked() {
	a.session = chat.New(chat.Config{
		Catalog:     a.catalog,
		Language:    a.lang,
		Model:       brain.NewClient(a.provider, a.catalog, a.metrics),
		Capability:  a.capability,
		Synthesizer: a.synth,
		Metrics:     a.metrics,
		Sink:        a.broadcast,
	})
	a.broadcast(chat.Event{Type: chat.EventSessionReset, State: a.session.Snapshot()})
}

func (a *App) closeSessionLocked() {
	if a.session == nil {
		return
	}
	a.session.Close()
	a.session = nil
}
