package telephony

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"dialer_backend/internal/events"
	"dialer_backend/platform/logger"

	"github.com/google/uuid"
)

// RecordingStore persists the archive location of a call recording.
type RecordingStore interface {
	SetRecordingKey(ctx context.Context, id uuid.UUID, key string) error
}

// ObjectUploader is the object storage surface the archiver needs.
type ObjectUploader interface {
	Upload(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// RecordingArchiver copies provider-hosted call recordings into our own
// object storage when a call ends. Provider URLs expire; the archive copy is
// the durable one.
type RecordingArchiver struct {
	store    RecordingStore
	uploader ObjectUploader
	bucket   string
	http     *http.Client
	log      *logger.Logger
}

// NewRecordingArchiver creates the archiver. It subscribes itself to call
// end events on the bus.
func NewRecordingArchiver(store RecordingStore, uploader ObjectUploader, bucket string, bus events.Bus, log *logger.Logger) *RecordingArchiver {
	a := &RecordingArchiver{
		store:    store,
		uploader: uploader,
		bucket:   bucket,
		http:     &http.Client{Timeout: 60 * time.Second},
		log:      log,
	}
	bus.Subscribe(events.CallEnded{}.EventName(), events.HandlerFunc(a.handleCallEnded))
	return a
}

func (a *RecordingArchiver) handleCallEnded(ctx context.Context, event events.Event) error {
	ended, ok := event.(events.CallEnded)
	if !ok || ended.RecordingURL == nil || *ended.RecordingURL == "" {
		return nil
	}

	key, err := a.archive(ctx, ended.TenantID, ended.CallLogID, *ended.RecordingURL)
	if err != nil {
		a.log.Error("failed to archive call recording",
			"call_log_id", ended.CallLogID, "error", err)
		return err
	}

	if err := a.store.SetRecordingKey(ctx, ended.CallLogID, key); err != nil {
		return err
	}
	a.log.Info("archived call recording", "call_log_id", ended.CallLogID, "key", key)
	return nil
}

func (a *RecordingArchiver) archive(ctx context.Context, tenantID, callLogID uuid.UUID, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download recording: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download recording: unexpected status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	key := fmt.Sprintf("%s/%s/%s.mp3",
		tenantID, time.Now().UTC().Format("2006/01/02"), callLogID)
	if err := a.uploader.Upload(ctx, a.bucket, key, resp.Body, resp.ContentLength, contentType); err != nil {
		return "", fmt.Errorf("upload recording: %w", err)
	}
	return key, nil
}
