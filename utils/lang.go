package utils

import (
	"embed"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	log "github.com/sirupsen/logrus"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v2"
)

//go:embed locales/*.yaml
var builtinLocales embed.FS

// Catalog holds the localized user-facing copy.
type Catalog struct {
	bundle *i18n.Bundle
}

// NewCatalog loads the built-in message files and then every *.yaml file in dir, which may
// override or add languages. An empty dir loads the built-in messages only.
func NewCatalog(dir string) (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	entries, err := builtinLocales.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := path.Join("locales", e.Name())
		b, err := builtinLocales.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(b, name); err != nil {
			return nil, err
		}
	}

	if dir != "" {
		files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
		if err != nil {
			return nil, err
		}
		for _, f := range files {
			if _, err := bundle.LoadMessageFile(f); err != nil {
				return nil, err
			}
			log.WithField("prefix", "i18n").Debugf("loaded message file %s", f)
		}
	}

	return &Catalog{bundle: bundle}, nil
}

// NewLocalizer returns a localizer for Accept-Language style preferences.
func (c *Catalog) NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(c.bundle, langs...)
}

// Localize renders message id for the preferred languages, falling back to English. An
// unknown id renders as the id itself.
func (c *Catalog) Localize(accept string, id string, data map[string]interface{}) string {
	msg, err := c.NewLocalizer(accept).Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		log.WithField("prefix", "i18n").Warnf("localize %s: %s", id, err)
		return id
	}
	return msg
}

// Languages lists the tags the catalog has messages for.
func (c *Catalog) Languages() []language.Tag {
	return c.bundle.LanguageTags()
}

// NormalizeLanguage turns a POSIX locale such as "en_NG.UTF-8" into a BCP 47 tag such as
// "en-NG". The C and POSIX locales have no language and yield "".
func NormalizeLanguage(locale string) string {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	if locale == "" || locale == "C" || locale == "POSIX" {
		return ""
	}

	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return ""
	}
	return tag.String()
}

// HostLanguage returns the negotiated UI language of the host from the usual locale
// variables, in their POSIX precedence order.
func HostLanguage() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if lang := NormalizeLanguage(os.Getenv(key)); lang != "" {
			return lang
		}
	}
	return ""
}
