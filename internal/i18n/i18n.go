// Package i18n holds the localized string tables and the persona instruction
// for every supported UI language.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// Language is the application's language code as persisted in preferences.
type Language string

const (
	Czech   Language = "cze"
	English Language = "eng"

	DefaultLanguage = Czech
)

// Message keys the service reads directly. Everything else is passed through
// to clients untouched.
const (
	KeyAppName                  = "appName"
	KeyInitialGreeting          = "initialGreeting"
	KeyErrorPrefix              = "errorPrefix"
	KeyErrorGeneral             = "errorGeneral"
	KeyErrorAPIKeyMissing       = "errorApiKeyMissing"
	KeyErrorAIResponse          = "errorAiResponse"
	KeyErrorSpeechNotSupported  = "errorSpeechRecognitionNotSupported"
	KeyErrorSpeechNoSpeech      = "errorSpeechNoSpeech"
	KeyErrorSpeechAudioCapture  = "errorSpeechAudioCapture"
	KeyErrorSpeechNotAllowed    = "errorSpeechNotAllowed"
	KeyErrorMicStart            = "errorMicStart"
	KeyErrorSpeechSynthesis     = "errorSpeechSynthesis"
	KeyErrorSpeechGeneric       = "errorSpeechGeneric"
	KeyAuthUsernameRequired     = "authUsernameRequired"
	KeyAuthPasswordRequired     = "authPasswordRequired"
	KeyAuthPasswordTooShort     = "authErrorPasswordTooShort"
	KeyAuthPasswordMismatch     = "authErrorPasswordMismatch"
	KeyAuthUserExists           = "authErrorUserExists"
	KeyAuthUserNotFound         = "authErrorUserNotFound"
	KeyAuthInvalidPassword      = "authErrorInvalidPassword"
	KeyWelcomeUser              = "welcomeUser"
	KeyCookieConsentMessage     = "cookieConsentMessage"
	KeyCookieConsentAcknowledge = "cookieConsentAccept"
)

var supported = []Language{Czech, English}

// Supported lists the languages with a bundle, default first.
func Supported() []Language {
	out := make([]Language, len(supported))
	copy(out, supported)
	return out
}

// ParseLanguage accepts the persisted codes ("cze", "eng") and BCP 47 tags
// ("cs", "en-US").
func ParseLanguage(raw string) (Language, error) {
	v := strings.ToLower(strings.TrimSpace(raw))
	switch Language(v) {
	case Czech, English:
		return Language(v), nil
	}
	tag, err := language.Parse(v)
	if err != nil {
		return "", fmt.Errorf("unsupported language %q", raw)
	}
	base, _ := tag.Base()
	switch base.String() {
	case "cs":
		return Czech, nil
	case "en":
		return English, nil
	default:
		return "", fmt.Errorf("unsupported language %q", raw)
	}
}

// Toggle returns the other supported language.
func (l Language) Toggle() Language {
	if l == Czech {
		return English
	}
	return Czech
}

// Tag is the BCP 47 tag used for speech recognition and synthesis.
func (l Language) Tag() language.Tag {
	switch l {
	case English:
		return language.AmericanEnglish
	default:
		return language.MustParse("cs-CZ")
	}
}

func (l Language) Valid() bool {
	return l == Czech || l == English
}

// Step is one onboarding step shown on the help view.
type Step struct {
	Title       string `yaml:"title" json:"title"`
	Description string `yaml:"description" json:"description"`
}

// Bundle is the string table for one language.
type Bundle struct {
	Language           Language          `yaml:"language" json:"language"`
	SpeechTag          string            `yaml:"speech_tag" json:"speech_tag"`
	Strings            map[string]string `yaml:"strings" json:"strings"`
	OnboardingSteps    []Step            `yaml:"onboarding_steps" json:"onboarding_steps"`
	PersonaInstruction string            `yaml:"persona_instruction" json:"-"`
}

// Text returns the string for key, or the key itself when it is missing so a
// gap in a table is visible instead of blank.
func (b *Bundle) Text(key string) string {
	if b == nil {
		return key
	}
	if v, ok := b.Strings[key]; ok {
		return v
	}
	return key
}

// Format returns Text(key) with every {name} placeholder replaced.
func (b *Bundle) Format(key string, args map[string]string) string {
	out := b.Text(key)
	for k, v := range args {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// Catalog holds one bundle per supported language.
type Catalog struct {
	bundles map[Language]*Bundle
	matcher language.Matcher
}

//go:embed locales/*.yaml
var embeddedLocales embed.FS

// Load parses the embedded locale files.
func Load() (*Catalog, error) {
	return LoadFS(embeddedLocales, "locales")
}

// LoadFS parses every *.yaml file in dir. Each supported language must be
// present exactly once and carry a persona instruction and a greeting.
func LoadFS(fsys fs.FS, dir string) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	bundles := make(map[Language]*Bundle, len(supported))
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".yaml" {
			continue
		}
		raw, err := fs.ReadFile(fsys, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", e.Name(), err)
		}
		var b Bundle
		if err := yaml.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		if !b.Language.Valid() {
			return nil, fmt.Errorf("%s: unsupported language %q", e.Name(), b.Language)
		}
		if _, dup := bundles[b.Language]; dup {
			return nil, fmt.Errorf("%s: duplicate bundle for %q", e.Name(), b.Language)
		}
		if strings.TrimSpace(b.PersonaInstruction) == "" {
			return nil, fmt.Errorf("%s: persona_instruction is empty", e.Name())
		}
		if strings.TrimSpace(b.Strings[KeyInitialGreeting]) == "" {
			return nil, fmt.Errorf("%s: %s is empty", e.Name(), KeyInitialGreeting)
		}
		if b.SpeechTag == "" {
			b.SpeechTag = b.Language.Tag().String()
		}
		bundles[b.Language] = &b
	}
	for _, l := range supported {
		if _, ok := bundles[l]; !ok {
			return nil, fmt.Errorf("missing bundle for %q", l)
		}
	}

	tags := make([]language.Tag, 0, len(supported))
	for _, l := range supported {
		tags = append(tags, l.Tag())
	}
	return &Catalog{bundles: bundles, matcher: language.NewMatcher(tags)}, nil
}

// Bundle returns the bundle for l, falling back to the default language.
func (c *Catalog) Bundle(l Language) *Bundle {
	if b, ok := c.bundles[l]; ok {
		return b
	}
	return c.bundles[DefaultLanguage]
}

// PersonaInstruction is the fixed system instruction for l.
func (c *Catalog) PersonaInstruction(l Language) string {
	return c.Bundle(l).PersonaInstruction
}

// Negotiate picks a supported language from an Accept-Language header.
// ok is false when the header is empty or matches nothing.
func (c *Catalog) Negotiate(acceptLanguage string) (Language, bool) {
	if strings.TrimSpace(acceptLanguage) == "" {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := c.matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	return supported[idx], true
}
