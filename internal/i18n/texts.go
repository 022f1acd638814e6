// Package i18n holds the interface language packs of the bot.
package i18n

import "strings"

const DefaultLocale = "en"

// Texts is one language pack. Fields ending in "f" are fmt templates.
type Texts struct {
	LanguageName string

	Welcome  string
	Settingsf string

	LangPrompt   string
	LangSetf     string
	VoicePrompt  string
	VoiceSetf    string
	VoiceUnknown string
	SpeedPrompt  string
	SpeedSetf    string
	SpeedInvalid string
	UIPrompt     string
	UISet        string
	ManualOn     string
	ManualOff    string

	NotEPUB       string
	FileTooLarge  string
	Busy          string
	Received      string
	Progressf     string
	Done          string
	DoneNoBook    string
	Failedf       string
	Canceled      string
	NoSelection   string
	NothingToStop string
	Stopping      string
	TooBigToSendf string

	PickPrompt string
	PickDone   string
	PickCancel string
	PickNone   string

	NoJobs     string
	JobsHeader string
	OpenApp    string
}

var packs = map[string]Texts{
	"en": {
		LanguageName: "English",
		Welcome: "Send me an EPUB file and I will turn it into an audiobook.\n\n" +
			"/lang - narration language\n/voice - voice\n/speed - speed 50..200 (100 = normal)\n" +
			"/manual - pick chapters yourself\n/ui - interface language\n/cancel - stop the current book\n/jobs - your audiobooks",
		Settingsf:     "Narration: %s, voice %s, speed %d, manual chapters: %v",
		LangPrompt:    "Select TTS language:",
		LangSetf:      "Narration language: %s",
		VoicePrompt:   "Select voice:",
		VoiceSetf:     "Voice: %s",
		VoiceUnknown:  "Unknown voice. Use /voice to see the list.",
		SpeedPrompt:   "Speed (0.5~2.0, i.e. 50~200): send /speed 120",
		SpeedSetf:     "Speed: %d",
		SpeedInvalid:  "Speed must be a whole number from 50 to 200.",
		UIPrompt:      "Interface language:",
		UISet:         "Interface language changed.",
		ManualOn:      "You will pick chapters yourself.",
		ManualOff:     "Chapters will be detected automatically.",
		NotEPUB:       "Please send an EPUB file.",
		FileTooLarge:  "The file is too large.",
		Busy:          "A book is already being converted. Use /cancel to stop it.",
		Received:      "Book received, preparing...",
		Progressf:     "Converting: %d%%\nTime left: %s",
		Done:          "Done, audio files have been generated!",
		DoneNoBook:    "Chapters were narrated but no audiobook could be packaged.",
		Failedf:       "Error occurred: %s",
		Canceled:      "Conversion stopped. Send the same book again to resume.",
		NoSelection:   "No chapters were selected.",
		NothingToStop: "Nothing is running.",
		Stopping:      "Stopping after the current chapter...",
		TooBigToSendf: "The audiobook is ready but too large for Telegram (%s). Open it from the library.",
		PickPrompt:    "Pick the chapters to narrate:",
		PickDone:      "Done",
		PickCancel:    "Cancel",
		PickNone:      "Pick at least one chapter.",
		NoJobs:        "You have no audiobooks yet.",
		JobsHeader:    "Your audiobooks:",
		OpenApp:       "Open library",
	},
	"zh": {
		LanguageName: "中文",
		Welcome: "发送EPUB文件，我会把它转换成有声书。\n\n" +
			"/lang - 语音合成语言\n/voice - 声音\n/speed - 语速 50~200（100 为正常）\n" +
			"/manual - 手动选择章节\n/ui - 界面语言\n/cancel - 停止当前转换\n/jobs - 我的有声书",
		Settingsf:     "语言: %s，声音 %s，语速 %d，手动选择章节: %v",
		LangPrompt:    "选择语音合成语言:",
		LangSetf:      "语音合成语言: %s",
		VoicePrompt:   "选择声音:",
		VoiceSetf:     "声音: %s",
		VoiceUnknown:  "未知的声音，请使用 /voice 查看列表。",
		SpeedPrompt:   "语速 (0.5~2.0，对应 50~200): 发送 /speed 120",
		SpeedSetf:     "语速: %d",
		SpeedInvalid:  "语速必须是 50 到 200 之间的整数。",
		UIPrompt:      "界面语言:",
		UISet:         "界面语言已更改。",
		ManualOn:      "你将手动选择章节。",
		ManualOff:     "将自动识别章节。",
		NotEPUB:       "请先选择EPUB文件",
		FileTooLarge:  "文件太大。",
		Busy:          "已有一本书正在转换，使用 /cancel 停止。",
		Received:      "已收到书籍，正在准备…",
		Progressf:     "转换中: %d%%\n剩余时间: %s",
		Done:          "转换完成，音频文件已生成！",
		DoneNoBook:    "章节已生成，但无法打包有声书。",
		Failedf:       "发生错误: %s",
		Canceled:      "转换已停止。再次发送同一本书即可继续。",
		NoSelection:   "没有选择任何章节。",
		NothingToStop: "当前没有任务。",
		Stopping:      "将在当前章节结束后停止…",
		TooBigToSendf: "有声书已生成，但对 Telegram 来说太大 (%s)。请在书库中打开。",
		PickPrompt:    "选择要朗读的章节:",
		PickDone:      "完成",
		PickCancel:    "取消",
		PickNone:      "请至少选择一个章节。",
		NoJobs:        "你还没有有声书。",
		JobsHeader:    "我的有声书:",
		OpenApp:       "打开书库",
	},
	"ru": {
		LanguageName: "Русский",
		Welcome: "Пришли EPUB-файл, и я сделаю из него аудиокнигу.\n\n" +
			"/lang - язык озвучки\n/voice - голос\n/speed - скорость 50..200 (100 = обычная)\n" +
			"/manual - выбрать главы вручную\n/ui - язык интерфейса\n/cancel - остановить\n/jobs - мои аудиокниги",
		Settingsf:     "Озвучка: %s, голос %s, скорость %d, ручной выбор глав: %v",
		LangPrompt:    "Выбери язык озвучки:",
		LangSetf:      "Язык озвучки: %s",
		VoicePrompt:   "Выбери голос:",
		VoiceSetf:     "Голос: %s",
		VoiceUnknown:  "Неизвестный голос. Список: /voice",
		SpeedPrompt:   "Скорость (0.5~2.0, т.е. 50~200): отправь /speed 120",
		SpeedSetf:     "Скорость: %d",
		SpeedInvalid:  "Скорость должна быть целым числом от 50 до 200.",
		UIPrompt:      "Язык интерфейса:",
		UISet:         "Язык интерфейса изменён.",
		ManualOn:      "Главы будешь выбирать сам.",
		ManualOff:     "Главы будут найдены автоматически.",
		NotEPUB:       "Пришли файл в формате EPUB.",
		FileTooLarge:  "Файл слишком большой.",
		Busy:          "Книга уже конвертируется. Останови её командой /cancel.",
		Received:      "Книга получена, готовлю...",
		Progressf:     "Конвертация: %d%%\nОсталось: %s",
		Done:          "Готово, аудиофайлы созданы!",
		DoneNoBook:    "Главы озвучены, но собрать аудиокнигу не удалось.",
		Failedf:       "Произошла ошибка: %s",
		Canceled:      "Конвертация остановлена. Пришли ту же книгу ещё раз, чтобы продолжить.",
		NoSelection:   "Не выбрано ни одной главы.",
		NothingToStop: "Сейчас ничего не выполняется.",
		Stopping:      "Остановлюсь после текущей главы...",
		TooBigToSendf: "Аудиокнига готова, но слишком велика для Telegram (%s). Открой её в библиотеке.",
		PickPrompt:    "Выбери главы для озвучки:",
		PickDone:      "Готово",
		PickCancel:    "Отмена",
		PickNone:      "Выбери хотя бы одну главу.",
		NoJobs:        "У тебя пока нет аудиокниг.",
		JobsHeader:    "Твои аудиокниги:",
		OpenApp:       "Открыть библиотеку",
	},
}

// Locales lists the available packs in display order.
var Locales = []string{"en", "zh", "ru"}

// Normalize maps a client language code such as "ru-RU" or "zh-hans" to a
// known locale, falling back to DefaultLocale.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	if _, ok := packs[code]; ok {
		return code
	}
	return DefaultLocale
}

// Get returns the pack for locale, or the English one when it is unknown.
func Get(locale string) Texts {
	return packs[Normalize(locale)]
}
