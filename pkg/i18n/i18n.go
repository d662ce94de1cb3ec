package i18n

import (
	"embed"
	"encoding/json"
	"os"
	"path"
	"sync"

	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var locales embed.FS

var (
	mu     sync.RWMutex
	bundle *goi18n.Bundle
)

// Init builds the bundle with the embedded en and id message files.
func Init() {
	b := goi18n.NewBundle(language.English)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)

	entries, _ := locales.ReadDir("locales")
	for _, e := range entries {
		raw, err := locales.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			continue
		}
		_, _ = b.ParseMessageFileBytes(raw, e.Name())
	}

	mu.Lock()
	bundle = b
	mu.Unlock()
}

// Load adds or overrides messages from a file on disk, e.g. active.fr.json.
func Load(file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if bundle == nil {
		bundle = goi18n.NewBundle(language.English)
		bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	}
	_, err = bundle.ParseMessageFileBytes(raw, path.Base(file))
	return err
}

// Localize renders messageID for the languages in an Accept-Language style list.
// Unknown ids and an uninitialised bundle fall back to the id itself.
func Localize(messageID string, data map[string]interface{}, langs ...string) string {
	mu.RLock()
	b := bundle
	mu.RUnlock()
	if b == nil {
		return messageID
	}

	msg, err := goi18n.NewLocalizer(b, langs...).Localize(&goi18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return messageID
	}
	return msg
}
