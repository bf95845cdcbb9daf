package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// StorageNotification one "object created" event in the quarantine bucket
type StorageNotification struct {
	Bucket      string
	Key         string
	Size        int64
	ContentType string
	EventName   string
}

// s3Event S3 / MinIO bucket notification payload
type s3Event struct {
	Records []struct {
		EventName string `json:"eventName"`
		S3        struct {
			Bucket struct {
				Name string `json:"name"`
			} `json:"bucket"`
			Object struct {
				Key         string `json:"key"`
				Size        int64  `json:"size"`
				ContentType string `json:"contentType"`
			} `json:"object"`
		} `json:"s3"`
	} `json:"Records"`
}

// ParseStorageEvent decode S3 event JSON, keys arrive url encoded ("+" is a space).
// Only ObjectCreated records are returned, an s3:TestEvent yields none.
func ParseStorageEvent(body []byte) ([]StorageNotification, error) {
	var ev s3Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	out := make([]StorageNotification, 0, len(ev.Records))
	for _, r := range ev.Records {
		if r.EventName != "" && !strings.Contains(r.EventName, "ObjectCreated") {
			continue
		}
		key, err := url.QueryUnescape(r.S3.Object.Key)
		if err != nil {
			return nil, fmt.Errorf("%w: key %q: %v", ErrMalformedMessage, r.S3.Object.Key, err)
		}
		if r.S3.Bucket.Name == "" || key == "" {
			return nil, fmt.Errorf("%w: record without bucket or key", ErrMalformedMessage)
		}
		out = append(out, StorageNotification{
			Bucket:      r.S3.Bucket.Name,
			Key:         key,
			Size:        r.S3.Object.Size,
			ContentType: r.S3.Object.ContentType,
			EventName:   r.EventName,
		})
	}
	return out, nil
}

// FormatProfile single rendition profile of the output group
type FormatProfile struct {
	Name            string `json:"name"`
	Container       string `json:"container"`
	SegmentSeconds  int    `json:"segmentSeconds"`
	VideoCodec      string `json:"videoCodec"`
	MaxBitrate      int    `json:"maxBitrate"`
	AudioCodec      string `json:"audioCodec"`
	AudioBitrate    int    `json:"audioBitrate"`
	AudioSampleRate int    `json:"audioSampleRate"`
}

// TranscodeOutput one output group
type TranscodeOutput struct {
	FormatProfile     FormatProfile `json:"formatProfile"`
	DestinationPrefix Locator       `json:"destinationPrefix"`
}

// TranscodeJob message on the transcode queue
type TranscodeJob struct {
	JobID          string            `json:"jobId"`
	AssetID        string            `json:"assetId"`
	Input          Locator           `json:"input"`
	Outputs        []TranscodeOutput `json:"outputs"`
	CallbackTarget string            `json:"callbackTarget"`
}

// Validate required fields
func (j TranscodeJob) Validate() error {
	if j.JobID == "" || j.AssetID == "" || j.Input.IsZero() || len(j.Outputs) == 0 {
		return fmt.Errorf("%w: transcode job missing fields", ErrMalformedMessage)
	}
	return nil
}

// TranscodeOutcome result of a transcode job
type TranscodeOutcome string

const (
	// OutcomeSuccess rendition written
	OutcomeSuccess TranscodeOutcome = "Success"
	// OutcomeFailure executor gave up
	OutcomeFailure TranscodeOutcome = "Failure"
)

// TranscodeCompletion message on the completion queue
type TranscodeCompletion struct {
	JobID   string           `json:"jobId"`
	AssetID string           `json:"assetId"`
	Outcome TranscodeOutcome `json:"outcome"`
	Message string           `json:"message,omitempty"`
}

// ParseTranscodeCompletion decode and check a completion
func ParseTranscodeCompletion(body []byte) (TranscodeCompletion, error) {
	var c TranscodeCompletion
	if err := json.Unmarshal(body, &c); err != nil {
		return c, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if c.JobID == "" || c.AssetID == "" {
		return c, fmt.Errorf("%w: completion missing jobId or assetId", ErrMalformedMessage)
	}
	if c.Outcome != OutcomeSuccess && c.Outcome != OutcomeFailure {
		return c, fmt.Errorf("%w: unknown outcome %q", ErrMalformedMessage, c.Outcome)
	}
	return c, nil
}

// LifecycleEvent status change published to kafka
type LifecycleEvent struct {
	AssetID string      `json:"assetId"`
	From    AssetStatus `json:"from"`
	To      AssetStatus `json:"to"`
	Reason  string      `json:"reason,omitempty"`
	At      time.Time   `json:"at"`
}

// Incident operator visible pipeline failure
type Incident struct {
	AssetID   string    `bson:"asset_id" json:"assetId"`
	Stage     string    `bson:"stage" json:"stage"`
	Reason    string    `bson:"reason" json:"reason"`
	JobID     string    `bson:"job_id,omitempty" json:"jobId,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
}
