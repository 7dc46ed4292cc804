package i18n

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/amoylab/tokenbridge/internal/common/cnst"
	"github.com/amoylab/tokenbridge/internal/common/errorx"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed translations/*.toml
var builtin embed.FS

// I18n manages internationalization and translations
type I18n struct {
	bundle      *i18n.Bundle
	defaultLang string
}

// New creates a translator with the embedded translations loaded
func New(defaultLang string) (*I18n, error) {
	defaultLang = normalizeLang(defaultLang, cnst.LangDefault)
	bundle := i18n.NewBundle(language.Make(defaultLang))
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := builtin.ReadDir("translations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded translations: %w", err)
	}
	for _, f := range files {
		buf, err := builtin.ReadFile("translations/" + f.Name())
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, f.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name(), err)
		}
	}

	return &I18n{
		bundle:      bundle,
		defaultLang: defaultLang,
	}, nil
}

// DefaultLang returns the language used when a request names none
func (i *I18n) DefaultLang() string {
	return i.defaultLang
}

// LoadTranslations loads extra translation files from a directory, overriding
// embedded messages with the same id
func (i *I18n) LoadTranslations(translationsDir string) error {
	files, err := os.ReadDir(translationsDir)
	if err != nil {
		return fmt.Errorf("failed to read translations directory: %w", err)
	}

	for _, file := range files {
		if file.IsDir() || !strings.HasSuffix(file.Name(), ".toml") {
			continue
		}
		if _, err := i.bundle.LoadMessageFile(filepath.Join(translationsDir, file.Name())); err != nil {
			return fmt.Errorf("failed to load %s: %w", file.Name(), err)
		}
	}

	return nil
}

// Translate returns a localized string for the given message ID and language.
// The message ID itself is returned when no translation exists.
func (i *I18n) Translate(msgID string, lang string, templateData map[string]any) string {
	localizer := i18n.NewLocalizer(i.bundle, normalizeLang(lang, i.defaultLang), i.defaultLang)

	lc := &i18n.LocalizeConfig{
		MessageID: msgID,
	}
	if len(templateData) > 0 {
		lc.TemplateData = templateData
	}

	msg, err := localizer.Localize(lc)
	if err != nil && msg == "" {
		return msgID
	}
	return msg
}

// Message translates msgID, falling back to the given text
func (i *I18n) Message(msgID, lang, fallback string) string {
	if i == nil || msgID == "" {
		return fallback
	}
	if msg := i.Translate(msgID, lang, nil); msg != msgID {
		return msg
	}
	return fallback
}

// Describe returns the localized description of an OAuth2 error. Dynamic descriptions
// such as upstream provider bodies are returned unchanged.
func (i *I18n) Describe(err *errorx.OAuth2Error, lang string) string {
	return i.Message(err.MessageID, lang, err.ErrorDescription)
}
