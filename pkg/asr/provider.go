// Package asr wraps the external ASR (speech-to-text) collaborator used
// to produce a Transcript for a Recording ( §6:
// "transcribe(audio_url) -> {transcript_text, diarized_segments[],
// confidence, sentiment?}").
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/calliq/qaengine/pkg/models"
	"github.com/calliq/qaengine/pkg/telemetry"
)

// DefaultTimeout is the documented per-stage default (30 s download + provider default).
const DefaultTimeout = 30 * time.Second

// ObjectStore resolves a recording's object key to a fetchable URL
// (signed-URL collaborator).
type ObjectStore interface {
	SignedURL(ctx context.Context, objectKey string) (string, error)
}

// Client is an HTTP-based ASR provider. The upstream service is an
// external REST collaborator, not a vendored SDK, so this talks
// plain JSON over net/http.
type Client struct {
	httpClient *http.Client
	endpoint string
	objectStore ObjectStore
	logger *slog.Logger
	breaker *gobreaker.CircuitBreaker
}

// NewClient builds a Client. endpoint is the ASR service's transcription
// URL; it receives a POST with {"audio_url": "..."} and must return the
// response shape documented on transcribeResponse.
func NewClient(endpoint string, objectStore ObjectStore) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		endpoint: endpoint,
		objectStore: objectStore,
		logger: slog.Default(),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
				Name: "asr-provider",
				MaxRequests: 3,
				Interval: time.Minute,
				Timeout: 30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures >= 5
				},
				OnStateChange: func(name string, from, to gobreaker.State) {
					slog.Warn("asr provider circuit breaker state change",
						"breaker", name, "from", from.String(), "to", to.String())
				},
		}),
	}
}

type transcribeRequest struct {
	AudioURL string `json:"audio_url"`
}

type diarizedSegment struct {
	Speaker string `json:"speaker"`
	Text string `json:"text"`
	StartSecs float64 `json:"start_secs"`
	EndSecs float64 `json:"end_secs"`
	Confidence float64 `json:"confidence"`
}

type transcribeResponse struct {
	TranscriptText string `json:"transcript_text"`
	DiarizedSegments []diarizedSegment `json:"diarized_segments"`
	Confidence float64 `json:"confidence"`
	Sentiment *string `json:"sentiment,omitempty"`
	Language string `json:"language,omitempty"`
}

// Transcribe implements pipeline.ASRProvider.
func (c *Client) Transcribe(ctx context.Context, recording *models.Recording) (*models.Transcript, error) {
	audioURL:= recording.ObjectKey
	if c.objectStore != nil {
		url, err:= c.objectStore.SignedURL(ctx, recording.ObjectKey)
		if err != nil {
			return nil, fmt.Errorf("resolve signed url: %w", err)
		}
		audioURL = url
	}

	timer:= telemetry.NewTimer()
	result, err:= c.breaker.Execute(func() (any, error) {
			return c.transcribe(ctx, recording.ID, audioURL)
	})
	telemetry.RecordASRTranscription(timer.Elapsed())
	if err != nil {
		return nil, err
	}

	return result.(*models.Transcript), nil
}

func (c *Client) transcribe(ctx context.Context, recordingID, audioURL string) (*models.Transcript, error) {
	body, err:= json.Marshal(transcribeRequest{AudioURL: audioURL})
	if err != nil {
		return nil, fmt.Errorf("marshal asr request: %w", err)
	}

	req, err:= http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build asr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err:= c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("asr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _:= io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("asr provider returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed transcribeResponse
	if err:= json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode asr response: %w", err)
	}

	c.logger.Info("asr transcription complete", "recording_id", recordingID, "segments", len(parsed.DiarizedSegments))

	return toTranscript(recordingID, parsed), nil
}

func toTranscript(recordingID string, resp transcribeResponse) *models.Transcript {
	segments:= make([]*models.Segment, 0, len(resp.DiarizedSegments))
	duration:= 0.0
	for _, s:= range resp.DiarizedSegments {
		segments = append(segments, &models.Segment{
				ID: models.NewID(),
				Speaker: mapSpeaker(s.Speaker),
				Text: s.Text,
				StartSecs: s.StartSecs,
				EndSecs: s.EndSecs,
				Confidence: s.Confidence,
		})
		if s.EndSecs > duration {
			duration = s.EndSecs
		}
	}

	return &models.Transcript{
		ID: models.NewID(),
		RecordingID: recordingID,
		Segments: segments,
		DurationSecs: duration,
		Language: resp.Language,
		NormalizedAt: time.Now(),
	}
}

func mapSpeaker(raw string) models.ExpectedRole {
	switch raw {
	case string(models.RoleCaller), "customer", "caller":
		return models.RoleCaller
	default:
		return models.RoleAgent
	}
}
