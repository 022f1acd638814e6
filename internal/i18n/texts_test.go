package i18n

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ru", Normalize("ru-RU"))
	assert.Equal(t, "zh", Normalize("zh-hans"))
	assert.Equal(t, "en", Normalize("de"))
	assert.Equal(t, "en", Normalize(""))
}

func TestGetFallsBackToEnglish(t *testing.T) {
	assert.Equal(t, packs["en"], Get("fr"))
	assert.Equal(t, "中文", Get("zh").LanguageName)
}

func TestPacksAreComplete(t *testing.T) {
	for _, locale := range Locales {
		t.Run(locale, func(t *testing.T) {
			v := reflect.ValueOf(packs[locale])
			for i := 0; i < v.NumField(); i++ {
				assert.NotEmpty(t, v.Field(i).String(), "missing %s", v.Type().Field(i).Name)
			}
		})
	}
}
