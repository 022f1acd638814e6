package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/cycleuser/audiblez/internal/models"
	"github.com/cycleuser/audiblez/internal/service"
	"github.com/cycleuser/audiblez/internal/storage"
)

const (
	maxSendBytes      = 50 * 1024 * 1024
	progressEditEvery = 3 * time.Second
	jobsListLimit     = 10
)

type upload struct {
	chatID   int64
	userID   int64
	username string
	doc      *tgbotapi.Document
}

func isEPUB(doc *tgbotapi.Document) bool {
	return strings.EqualFold(filepath.Ext(doc.FileName), ".epub") || doc.MimeType == "application/epub+zip"
}

func (b *Bot) handleDocument(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	t := b.texts(chatID)
	doc := msg.Document

	if !isEPUB(doc) {
		b.sendMessage(chatID, t.NotEPUB)
		return
	}
	if b.opts.MaxUpload > 0 && int64(doc.FileSize) > b.opts.MaxUpload {
		b.sendMessage(chatID, t.FileTooLarge)
		return
	}

	jobCtx, ok := b.claim(ctx, chatID)
	if !ok {
		b.sendMessage(chatID, t.Busy)
		return
	}

	up := upload{chatID: chatID, userID: chatID, doc: doc}
	if msg.From != nil {
		up.userID = msg.From.ID
		up.username = msg.From.UserName
	}
	go b.runJob(jobCtx, up)
}

// claim reserves the chat for one conversion. The returned context is
// cancelled by /cancel.
func (b *Bot) claim(ctx context.Context, chatID int64) (context.Context, bool) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()

	s := b.sessions[chatID]
	if s.cancel != nil {
		return nil, false
	}
	jobCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	return jobCtx, true
}

func (b *Bot) release(chatID int64) {
	b.sessionsMu.Lock()
	defer b.sessionsMu.Unlock()
	if s, ok := b.sessions[chatID]; ok {
		if s.cancel != nil {
			s.cancel()
		}
		s.cancel = nil
	}
}

func (b *Bot) runJob(ctx context.Context, up upload) {
	defer b.release(up.chatID)

	log := b.log.With("chat", up.chatID)
	t := b.texts(up.chatID)
	settings := b.settings(up.chatID)
	status := b.send(tgbotapi.NewMessage(up.chatID, t.Received))

	path, err := b.download(ctx, up.doc)
	if err != nil {
		log.Error("download failed", "file", up.doc.FileName, "error", err)
		if errors.Is(err, storage.ErrTooLarge) {
			b.editStatus(up.chatID, status.MessageID, t.FileTooLarge)
		} else {
			b.editStatus(up.chatID, status.MessageID, fmt.Sprintf(t.Failedf, err))
		}
		return
	}

	speed, err := service.SpeedFromControl(settings.Speed)
	if err != nil {
		b.editStatus(up.chatID, status.MessageID, t.SpeedInvalid)
		return
	}

	job := models.Job{
		UserID: up.userID,
		Source: path,
		Lang:   settings.Lang,
		Voice:  settings.Voice,
		Speed:  speed,
	}
	if b.store != nil {
		if err := b.store.EnsureUser(ctx, up.userID, up.username); err != nil {
			log.Warn("ensure user", "error", err)
		}
		if created, err := b.store.CreateJob(ctx, job); err != nil {
			log.Warn("create job", "error", err)
		} else {
			job = created
		}
	}
	log.Info("conversion started", "job", job.ID, "file", path)

	task := service.Start(ctx, b.conv, service.Request{
		Source: path,
		Lang:   settings.Lang,
		Voice:  settings.Voice,
		Speed:  speed,
		Manual: settings.Manual,
		Picker: &chatPicker{bot: b, chatID: up.chatID},
		JobID:  job.ID,
	})

	last := -1
	var lastEdit time.Time
	for e := range task.Events() {
		if e.Kind != service.EventProgress || e.Percent < 0 || e.Percent == last {
			continue
		}
		if time.Since(lastEdit) < progressEditEvery && e.Percent < 100 {
			continue
		}
		last, lastEdit = e.Percent, time.Now()
		b.editStatus(up.chatID, status.MessageID, fmt.Sprintf(t.Progressf, e.Percent, service.FormatETA(e.ETA)))
	}

	res, err := task.Wait()
	b.finish(up.chatID, status.MessageID, job.ID, res, err)
}

func (b *Bot) finish(chatID int64, statusID int, jobID string, res service.Result, runErr error) {
	t := b.texts(chatID)
	log := b.log.With("chat", chatID, "job", jobID)

	var (
		jobStatus models.JobStatus
		text      string
	)
	switch {
	case runErr == nil && res.Packaged:
		jobStatus, text = models.JobCompleted, t.Done
	case runErr == nil:
		jobStatus, text = models.JobCompleted, t.DoneNoBook
	case service.Canceled(runErr):
		jobStatus, text = models.JobCanceled, t.Canceled
	case errors.Is(runErr, service.ErrSelectionEmpty):
		jobStatus, text = models.JobFailed, t.NoSelection
	default:
		jobStatus, text = models.JobFailed, fmt.Sprintf(t.Failedf, runErr)
	}

	message := service.DoneMessage(res)
	if runErr != nil {
		message = runErr.Error()
	}
	if b.store != nil && jobID != "" {
		// the job context may already be cancelled here
		if err := b.store.FinishJob(context.Background(), jobID, jobStatus, message, res.Output); err != nil {
			log.Warn("finish job", "error", err)
		}
	}
	log.Info("conversion finished", "status", jobStatus, "files", len(res.Files), "failed", res.Failed)
	b.editStatus(chatID, statusID, text)

	if res.Packaged {
		b.sendAudiobook(chatID, res, t.TooBigToSendf)
	}
}

func (b *Bot) sendAudiobook(chatID int64, res service.Result, tooBig string) {
	info, err := os.Stat(res.Output)
	if err != nil {
		b.log.Error("audiobook missing", "chat", chatID, "file", res.Output, "error", err)
		return
	}
	if info.Size() > maxSendBytes {
		b.sendMessage(chatID, fmt.Sprintf(tooBig, humanize.Bytes(uint64(info.Size()))))
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(res.Output))
	doc.Caption = fmt.Sprintf("%s - %s", res.Title, res.Author)
	if _, err := b.api.Send(doc); err != nil {
		b.log.Error("send audiobook", "chat", chatID, "error", err)
	}
}

func (b *Bot) download(ctx context.Context, doc *tgbotapi.Document) (string, error) {
	url, err := b.api.GetFileDirectURL(doc.FileID)
	if err != nil {
		return "", fmt.Errorf("file url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := b.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: %s", resp.Status)
	}

	saved, err := storage.SaveUpload(b.opts.StorageDir, doc.FileName, resp.Body, b.opts.MaxUpload)
	if err != nil {
		return "", err
	}
	return saved.Path, nil
}

func (b *Bot) editStatus(chatID int64, messageID int, text string) {
	if messageID == 0 {
		b.sendMessage(chatID, text)
		return
	}
	b.send(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

func (b *Bot) handleCancel(chatID int64) {
	t := b.texts(chatID)

	b.sessionsMu.Lock()
	s := b.sessions[chatID]
	cancel := s.cancel
	pick := s.pick
	b.sessionsMu.Unlock()

	if cancel == nil {
		b.sendMessage(chatID, t.NothingToStop)
		return
	}
	if pick != nil {
		pick.resolve(nil)
	}
	cancel()
	b.sendMessage(chatID, t.Stopping)
}

func (b *Bot) handleJobs(ctx context.Context, chatID, userID int64) {
	t := b.texts(chatID)
	if b.store == nil {
		b.sendMessage(chatID, t.NoJobs)
		return
	}
	jobs, err := b.store.ListJobs(ctx, userID, jobsListLimit)
	if err != nil {
		b.log.Error("list jobs", "chat", chatID, "error", err)
		b.sendMessage(chatID, fmt.Sprintf(t.Failedf, err))
		return
	}
	if len(jobs) == 0 {
		b.sendMessage(chatID, t.NoJobs)
		return
	}

	var sb strings.Builder
	sb.WriteString(t.JobsHeader)
	for _, j := range jobs {
		sb.WriteString("\n" + formatJob(j))
	}
	b.sendMessage(chatID, sb.String())
}

func formatJob(j models.Job) string {
	title := j.Title
	if title == "" {
		title = filepath.Base(j.Source)
	}
	line := fmt.Sprintf("• %s - %s", title, j.Status)
	if j.Status == models.JobProcessing {
		line += fmt.Sprintf(" %d%%", j.Progress)
	}
	return line + " (" + humanize.Time(j.CreatedAt) + ")"
}
