package models

import "time"

// Chapter is a document selected for narration together with its plain text.
type Chapter struct {
	Index    int
	Document Document
	Text     string
}

// SynthesisRequest is what the TTS engine receives for one chapter.
type SynthesisRequest struct {
	Text  string
	Voice string
	Lang  string
	Speed float64
}

// AudioChapterFile is the on-disk waveform of one chapter. Its presence on
// disk marks the chapter as done.
type AudioChapterFile struct {
	Index    int
	Path     string
	Title    string
	Chars    int
	Duration time.Duration
}

// Audiobook is the final tagged artifact.
type Audiobook struct {
	Title    string
	Author   string
	Path     string
	Chapters []AudioChapterFile
}
