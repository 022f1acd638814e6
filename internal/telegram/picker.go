package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var errPickCancelled = errors.New("chapter selection cancelled")

// pickPageSize keeps one keyboard well under Telegram's button limit.
const pickPageSize = 20

// pickState is an open multi-select keyboard. chosen and page are guarded by mu.
type pickState struct {
	names []string

	mu     sync.Mutex
	chosen []bool
	page   int

	once   sync.Once
	result chan []string
}

func newPickState(names []string) *pickState {
	return &pickState{
		names:  names,
		chosen: make([]bool, len(names)),
		result: make(chan []string, 1),
	}
}

// resolve delivers the outcome once; nil means cancelled.
func (p *pickState) resolve(names []string) {
	p.once.Do(func() { p.result <- names })
}

func (p *pickState) toggle(i int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.chosen) {
		return false
	}
	p.chosen[i] = !p.chosen[i]
	return true
}

func (p *pickState) selected() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for i, ok := range p.chosen {
		if ok {
			out = append(out, p.names[i])
		}
	}
	return out
}

func (p *pickState) pages() int {
	return (len(p.names) + pickPageSize - 1) / pickPageSize
}

func (p *pickState) setPage(n int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n < 0 || n >= p.pages() {
		return false
	}
	p.page = n
	return true
}

func (p *pickState) keyboard(done, cancel string) tgbotapi.InlineKeyboardMarkup {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := p.page * pickPageSize
	to := min(from+pickPageSize, len(p.names))

	rows := make([][]tgbotapi.InlineKeyboardButton, 0, to-from+2)
	for i := from; i < to; i++ {
		mark := "▫️ "
		if p.chosen[i] {
			mark = "✅ "
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark+p.names[i], cbPickPrefix+"t:"+strconv.Itoa(i)),
		))
	}
	if pages := p.pages(); pages > 1 {
		var nav []tgbotapi.InlineKeyboardButton
		if p.page > 0 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("◀️", cbPickPrefix+"p:"+strconv.Itoa(p.page-1)))
		}
		nav = append(nav, tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d/%d", p.page+1, pages), cbPickPrefix+"p:"+strconv.Itoa(p.page)))
		if p.page < pages-1 {
			nav = append(nav, tgbotapi.NewInlineKeyboardButtonData("▶️", cbPickPrefix+"p:"+strconv.Itoa(p.page+1)))
		}
		rows = append(rows, nav)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData(done, cbPickPrefix+"done"),
		tgbotapi.NewInlineKeyboardButtonData(cancel, cbPickPrefix+"cancel"),
	))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// chatPicker asks the chat to choose chapters with an inline keyboard.
type chatPicker struct {
	bot    *Bot
	chatID int64
}

func (c *chatPicker) Pick(ctx context.Context, names []string) ([]string, error) {
	b := c.bot
	t := b.texts(c.chatID)
	st := newPickState(names)

	b.sessionsMu.Lock()
	b.sessions[c.chatID].pick = st
	b.sessionsMu.Unlock()
	defer func() {
		b.sessionsMu.Lock()
		if s, ok := b.sessions[c.chatID]; ok && s.pick == st {
			s.pick = nil
		}
		b.sessionsMu.Unlock()
	}()

	msg := tgbotapi.NewMessage(c.chatID, t.PickPrompt)
	msg.ReplyMarkup = st.keyboard(t.PickDone, t.PickCancel)
	if _, err := b.api.Send(msg); err != nil {
		return nil, fmt.Errorf("send chapter keyboard: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case picked := <-st.result:
		if picked == nil {
			return nil, errPickCancelled
		}
		return picked, nil
	}
}

func (b *Bot) handlePickCallback(chatID int64, messageID int, data string) {
	t := b.texts(chatID)

	b.sessionsMu.Lock()
	st := b.sessions[chatID].pick
	b.sessionsMu.Unlock()
	if st == nil {
		return
	}

	switch {
	case data == "done":
		picked := st.selected()
		if len(picked) == 0 {
			b.sendMessage(chatID, t.PickNone)
			return
		}
		st.resolve(picked)
		b.send(tgbotapi.NewEditMessageText(chatID, messageID, t.PickPrompt+"\n"+strings.Join(picked, "\n")))
	case data == "cancel":
		st.resolve(nil)
		b.send(tgbotapi.NewEditMessageText(chatID, messageID, t.NoSelection))
	case strings.HasPrefix(data, "t:"):
		i, err := strconv.Atoi(strings.TrimPrefix(data, "t:"))
		if err != nil || !st.toggle(i) {
			b.log.Warn("bad pick callback", "chat", chatID, "data", data)
			return
		}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, st.keyboard(t.PickDone, t.PickCancel)))
	case strings.HasPrefix(data, "p:"):
		n, err := strconv.Atoi(strings.TrimPrefix(data, "p:"))
		if err != nil || !st.setPage(n) {
			b.log.Warn("bad pick callback", "chat", chatID, "data", data)
			return
		}
		b.send(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, st.keyboard(t.PickDone, t.PickCancel)))
	}
}
