package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/antoniostano/aura/internal/account"
	"github.com/antoniostano/aura/internal/chat"
	"github.com/antoniostano/aura/internal/i18n"
	"github.com/antoniostano/aura/internal/shell"
	"github.com/antoniostano/aura/internal/voice"
)

const speechOwner = "terminal"

var errQuit = errors.New("quit")

// lockedWriter lets the event printer and the prompt loop share one output.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// printedSynthesizer "speaks" by printing the utterance.
type printedSynthesizer struct {
	out io.Writer
}

func (p printedSynthesizer) Speak(_ context.Context, u voice.Utterance) error {
	_, err := fmt.Fprintf(p.out, "  (speaking %s) %s\n", u.Lang, u.Text)
	return err
}

func (printedSynthesizer) Cancel() {}

type repl struct {
	app        *shell.App
	out        io.Writer
	recognizer *voice.MockRecognizer
}

func newRepl(app *shell.App, out io.Writer) *repl {
	r := &repl{
		app:        app,
		out:        &lockedWriter{w: out},
		recognizer: voice.NewMockRecognizer(),
	}
	app.AttachSpeech(speechOwner, voice.Available(r.recognizer), printedSynthesizer{out: r.out})
	return r
}

// printEvents writes assistant turns and new errors until events closes.
func (r *repl) printEvents(events <-chan chat.Event) {
	lastErr := ""
	for ev := range events {
		switch ev.Type {
		case chat.EventTurnAppended:
			if ev.Turn != nil && ev.Turn.Speaker == chat.SpeakerAssistant {
				fmt.Fprintf(r.out, "aura> %s\n", ev.Turn.Text)
			}
		case chat.EventSessionReset:
			lastErr = ""
			if n := len(ev.State.Transcript); n > 0 {
				fmt.Fprintf(r.out, "aura> %s\n", ev.State.Transcript[n-1].Text)
			}
		}
		if ev.State.Error != "" && ev.State.Error != lastErr && ev.State.ErrorCategory != chat.CategoryUpstream && ev.State.ErrorCategory != chat.CategoryConfiguration {
			r.printError(ev.State.Error)
		}
		lastErr = ev.State.Error
	}
}

// printError writes msg behind the localized error prefix.
func (r *repl) printError(msg string) {
	fmt.Fprintf(r.out, "%s%s\n", r.app.Bundle().Text(i18n.KeyErrorPrefix), msg)
}

func (r *repl) prompt() string {
	st := r.app.State()
	if st.Account == nil {
		return "guest> "
	}
	return st.Account.Username + "> "
}

// handle runs one input line. Lines starting with / are commands; anything
// else is sent to the session.
func (r *repl) handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return r.submit(ctx, line)
	}

	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "/quit", "/exit":
		return errQuit
	case "/help":
		r.printHelp()
	case "/register":
		if len(args) != 3 {
			return errors.New("usage: /register <username> <password> <confirm>")
		}
		st, err := r.app.Register(ctx, args[0], args[1], args[2])
		return r.reportSignIn(st, err)
	case "/login":
		if len(args) != 2 {
			return errors.New("usage: /login <username> <password>")
		}
		st, err := r.app.Login(ctx, args[0], args[1])
		return r.reportSignIn(st, err)
	case "/logout":
		if _, err := r.app.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(r.out, "signed out")
	case "/lang":
		return r.switchLanguage(ctx, args)
	case "/theme":
		theme, err := r.app.ToggleTheme(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "theme: %s\n", theme)
	case "/reset":
		o, err := r.app.Session()
		if err != nil {
			return err
		}
		return o.ResetSession()
	case "/voice":
		o, err := r.app.Session()
		if err != nil {
			return err
		}
		on, err := o.ToggleVoiceOutput()
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "voice output: %t\n", on)
	case "/mode":
		if len(args) != 1 {
			return errors.New("usage: /mode text|voice")
		}
		mode, ok := chat.ParseMode(args[0])
		if !ok {
			return chat.ErrInvalidMode
		}
		o, err := r.app.Session()
		if err != nil {
			return err
		}
		return o.SetMode(ctx, mode)
	case "/say":
		return r.say(ctx, strings.TrimSpace(strings.TrimPrefix(line, "/say")))
	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

func (r *repl) submit(ctx context.Context, text string) error {
	o, err := r.app.Session()
	if err != nil {
		return err
	}
	_, err = o.SubmitText(ctx, text)
	return err
}

// say plays text through the voice path: it records, hears text as a final
// result, and lets the recognition end.
func (r *repl) say(ctx context.Context, text string) error {
	if text == "" {
		return errors.New("usage: /say <words>")
	}
	o, err := r.app.Session()
	if err != nil {
		return err
	}
	if o.Snapshot().Mode != chat.ModeVoice {
		if err := o.SetMode(ctx, chat.ModeVoice); err != nil {
			return err
		}
	}
	if err := o.StartRecording(ctx); err != nil {
		return err
	}
	rec := r.recognizer.Last()
	if rec == nil || !o.Snapshot().Recording {
		return errors.New("recording did not start")
	}
	rec.Emit(voice.Result(text, true))
	rec.Emit(voice.End())
	return nil
}

func (r *repl) switchLanguage(ctx context.Context, args []string) error {
	var (
		st  shell.State
		err error
	)
	if len(args) == 0 {
		st, err = r.app.ToggleLanguage(ctx)
	} else {
		lang, perr := i18n.ParseLanguage(args[0])
		if perr != nil {
			return perr
		}
		st, err = r.app.SetLanguage(ctx, lang)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(r.out, "language: %s\n", st.Language)
	return nil
}

func (r *repl) reportSignIn(st shell.State, err error) error {
	var ve *account.ValidationError
	if errors.As(err, &ve) {
		return errors.New(r.app.Bundle().Text(ve.MessageKey()))
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, st.Welcome)
	return nil
}

func (r *repl) printHelp() {
	b := r.app.Bundle()
	fmt.Fprintln(r.out, b.Text(i18n.KeyAppName))
	for i, step := range b.OnboardingSteps {
		fmt.Fprintf(r.out, "%d. %s: %s\n", i+1, step.Title, step.Description)
	}
	fmt.Fprintln(r.out, "commands: /register /login /logout /lang [cze|eng] /theme /mode text|voice /say <words> /voice /reset /quit")
}
