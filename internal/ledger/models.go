package ledger

import (
	"strings"
	"time"
)

// Status records the last fully completed checkpoint for a document. A
// document sits at a status until the next stage finishes; failures never
// move it backward.
type Status string

const (
	StatusDiscovered     Status = "discovered"
	StatusDownloaded     Status = "downloaded"
	StatusOCRDone        Status = "ocr_done"
	StatusTransliterated Status = "transliterated"
	StatusConverted      Status = "converted"
	StatusDelivered      Status = "delivered"
)

// Stage names match the handler packages and are used as attempt-map keys
// and failed_stage values.
const (
	StageDownload      = "download"
	StageRecognize     = "recognize"
	StageTransliterate = "transliterate"
	StageConvert       = "convert"
	StageDeliver       = "deliver"
)

var statusOrder = []Status{
	StatusDiscovered,
	StatusDownloaded,
	StatusOCRDone,
	StatusTransliterated,
	StatusConverted,
	StatusDelivered,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(statusOrder))
	for _, status := range statusOrder {
		set[status] = struct{}{}
	}
	return set
}()

// nextStage maps a checkpoint to the stage that advances past it.
var nextStage = map[Status]string{
	StatusDiscovered:     StageDownload,
	StatusDownloaded:     StageRecognize,
	StatusOCRDone:        StageTransliterate,
	StatusTransliterated: StageConvert,
	StatusConverted:      StageDeliver,
}

// stageResult maps a stage to the checkpoint it establishes on success.
var stageResult = map[string]Status{
	StageDownload:      StatusDownloaded,
	StageRecognize:     StatusOCRDone,
	StageTransliterate: StatusTransliterated,
	StageConvert:       StatusConverted,
	StageDeliver:       StatusDelivered,
}

// AllStatuses returns the ordered status ladder.
func AllStatuses() []Status {
	cp := make([]Status, len(statusOrder))
	copy(cp, statusOrder)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// NextStage returns the stage that advances a document past its current
// checkpoint. ok is false when the document is already delivered.
func NextStage(status Status) (string, bool) {
	stage, ok := nextStage[status]
	return stage, ok
}

// StatusAfter returns the checkpoint a stage establishes on success.
func StatusAfter(stage string) (Status, bool) {
	status, ok := stageResult[stage]
	return status, ok
}

// Document is one catalog entry tracked through the pipeline.
type Document struct {
	ID              int64
	Key             string
	SourceTitle     string
	SourceAuthor    string
	SourceURL       string
	TranslitTitle   string
	TranslitAuthor  string
	Status          Status
	FailedStage     string
	Attempts        map[string]int
	LastError       string
	NeedsAttention  bool
	AttentionReason string
	RawFile         string
	RecognizedFile  string
	ConvertedFile   string
	DeliveredFile   string
	Checksum        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// StageAttempts returns the recorded attempt count for a stage.
func (d *Document) StageAttempts(stage string) int {
	if d.Attempts == nil {
		return 0
	}
	return d.Attempts[stage]
}

// RecordFailure notes a failed stage attempt without moving the checkpoint.
func (d *Document) RecordFailure(stage, message string) {
	if d.Attempts == nil {
		d.Attempts = make(map[string]int, 1)
	}
	d.Attempts[stage]++
	d.FailedStage = stage
	d.LastError = message
}

// ClearFailure resets error bookkeeping after a successful stage or an
// operator retry.
func (d *Document) ClearFailure() {
	d.FailedStage = ""
	d.LastError = ""
	d.NeedsAttention = false
	d.AttentionReason = ""
}

// MarkAttention parks the document for operator review.
func (d *Document) MarkAttention(reason string) {
	d.NeedsAttention = true
	d.AttentionReason = reason
}

// Eligible reports whether the scheduler should pick this document up.
func (d *Document) Eligible() bool {
	return d.Status != StatusDelivered && !d.NeedsAttention
}
