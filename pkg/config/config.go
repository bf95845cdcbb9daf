package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig missing or invalid configuration, fatal at startup and never retried
var ErrConfig = errors.New("config error")

// APIGateway definition api_gateway YAML structure
type APIGateway struct {
	Port      string `mapstructure:"port"`
	JWTSecret string `mapstructure:"jwt_secret"`

	PostgreSQL DatabaseConfig `mapstructure:"pg"`
	Storage    StorageConfig  `mapstructure:"storage"`
	Signing    SigningConfig  `mapstructure:"signing"`
	Region     RegionConfig   `mapstructure:"region"`
	Edge       EdgeConfig     `mapstructure:"edge"`
}

// IngestService definition ingest_service YAML structure
type IngestService struct {
	IP   string `mapstructure:"ip"`
	Port string `mapstructure:"port"`

	PostgreSQL DatabaseConfig   `mapstructure:"pg"`
	Mongo      DatabaseConfig   `mapstructure:"mongo"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Redis      RedisConfig      `mapstructure:"redis"`
	RabbitMQ   RabbitMQConfig   `mapstructure:"rabbitmq"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	CloudFront CloudFrontConfig `mapstructure:"cloudfront"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Transcode  TranscodeConfig  `mapstructure:"transcode"`
}

// TranscodeWorker definition transcode_worker YAML structure
type TranscodeWorker struct {
	IP     string `mapstructure:"ip"`
	Port   string `mapstructure:"port"`
	TmpDir string `mapstructure:"tmp_dir"`

	Storage  StorageConfig  `mapstructure:"storage"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

// DatabaseConfig definition db setting
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	Database      string `mapstructure:"database"`
	RetryInterval int    `mapstructure:"retry_interval"`
	RetryCount    int    `mapstructure:"retry_count"`
}

// DSN build the postgres dsn, for sqlite the database field is the file path
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Database
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		d.Host, d.User, d.Password, d.Database, d.Port)
}

// MongoURI build the mongodb connect string
func (d DatabaseConfig) MongoURI() string {
	if d.User == "" {
		return fmt.Sprintf("mongodb://%s:%d", d.Host, d.Port)
	}
	return fmt.Sprintf("mongodb://%s:%s@%s:%d", d.User, d.Password, d.Host, d.Port)
}

// RedisConfig definition redis setting, Addr empty means use sentinel from .env
type RedisConfig struct {
	Addr    string `mapstructure:"addr"`
	RedisDB int    `mapstructure:"redis_db"`
}

// RabbitMQConfig definition rabbitmq setting and queue names
type RabbitMQConfig struct {
	IP            string        `mapstructure:"ip"`
	Port          string        `mapstructure:"port"`
	User          string        `mapstructure:"user"`
	Password      string        `mapstructure:"password"`
	RetryCount    int           `mapstructure:"retry_count"`
	RetryInterval int           `mapstructure:"retry_interval"`
	RequeueDelay  time.Duration `mapstructure:"requeue_delay"`
	Prefetch      int           `mapstructure:"prefetch"`

	NotificationQueue string `mapstructure:"notification_queue"`
	JobQueue          string `mapstructure:"job_queue"`
	CompletionQueue   string `mapstructure:"completion_queue"`
}

// URL build the amqp url
func (r RabbitMQConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", r.User, r.Password, r.IP, r.Port)
}

// KafkaConfig definition kafka setting
type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	RetryCount    int      `mapstructure:"retry_count"`
	RetryInterval int      `mapstructure:"retry_interval"`
}

// MinIOConfig definition minio setting
type MinIOConfig struct {
	Host          string `mapstructure:"host"`
	Port          int    `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	RetryCount    int    `mapstructure:"retry_count"`
	RetryInterval int    `mapstructure:"retry_interval"`
}

// S3Config definition aws s3 / sqs setting
type S3Config struct {
	Region      string `mapstructure:"region"`
	SQSQueueURL string `mapstructure:"sqs_queue_url"`
}

// StorageConfig definition object storage setting
type StorageConfig struct {
	Driver           string      `mapstructure:"driver"` // "minio" or "s3"
	QuarantineBucket string      `mapstructure:"quarantine_bucket"`
	DurableBucket    string      `mapstructure:"durable_bucket"`
	MinIO            MinIOConfig `mapstructure:"minio"`
	S3               S3Config    `mapstructure:"s3"`
}

// SigningConfig definition url signing setting
type SigningConfig struct {
	KeyPairID      string        `mapstructure:"key_pair_id"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	PrivateKeyPEM  string        `mapstructure:"private_key_pem"`
	CDNBaseURL     string        `mapstructure:"cdn_base_url"`
	PlaybackTTL    time.Duration `mapstructure:"playback_ttl"`
	UploadTTL      time.Duration `mapstructure:"upload_ttl"`
}

// RegionConfig definition region policy setting
type RegionConfig struct {
	// FailOpenOnMissingGeoSignal nil means unset, see FailOpen
	FailOpenOnMissingGeoSignal *bool             `mapstructure:"fail_open_on_missing_geo_signal"`
	CountryCodes               map[string]string `mapstructure:"country_codes"`
}

// FailOpen viewers without a country signal are allowed unless explicitly disabled
func (r RegionConfig) FailOpen() bool {
	if r.FailOpenOnMissingGeoSignal == nil {
		return true
	}
	return *r.FailOpenOnMissingGeoSignal
}

// EdgeConfig definition how the trusted edge passes the viewer country
type EdgeConfig struct {
	CountryHeader  string   `mapstructure:"country_header"`
	SecretHeader   string   `mapstructure:"secret_header"`
	Secret         string   `mapstructure:"secret"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// CloudFrontConfig definition cdn invalidation setting
type CloudFrontConfig struct {
	Region         string `mapstructure:"region"`
	DistributionID string `mapstructure:"distribution_id"`
}

// RetryConfig definition bounded exponential backoff
type RetryConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
}

// PipelineConfig definition ingest pipeline setting
type PipelineConfig struct {
	AllowedMIMEPrefixes []string      `mapstructure:"allowed_mime_prefixes"`
	StatRetry           RetryConfig   `mapstructure:"stat_retry"`
	StorageRetry        RetryConfig   `mapstructure:"storage_retry"`
	SubmitRetry         RetryConfig   `mapstructure:"submit_retry"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	HandlerTimeout      time.Duration `mapstructure:"handler_timeout"`
}

// TranscodeConfig definition the single rendition profile
type TranscodeConfig struct {
	Name            string `mapstructure:"name"`
	SegmentSeconds  int    `mapstructure:"segment_seconds"`
	VideoCodec      string `mapstructure:"video_codec"`
	MaxBitrate      int    `mapstructure:"max_bitrate"`
	AudioCodec      string `mapstructure:"audio_codec"`
	AudioBitrate    int    `mapstructure:"audio_bitrate"`
	AudioSampleRate int    `mapstructure:"audio_sample_rate"`
}

const (
	defaultUploadTTL   = time.Hour
	defaultPlaybackTTL = 5 * time.Hour
	maxPlaybackTTL     = 7 * 24 * time.Hour
)

// ApplyDefaults fill the zero values
func (s *SigningConfig) ApplyDefaults() {
	if s.UploadTTL <= 0 {
		s.UploadTTL = defaultUploadTTL
	}
	if s.PlaybackTTL <= 0 {
		s.PlaybackTTL = defaultPlaybackTTL
	}
}

// Validate check playback signing setting
func (s SigningConfig) Validate() error {
	if strings.TrimSpace(s.KeyPairID) == "" {
		return fmt.Errorf("%w: signing.key_pair_id is required", ErrConfig)
	}
	if s.PrivateKeyPath == "" && s.PrivateKeyPEM == "" {
		return fmt.Errorf("%w: signing.private_key_path or signing.private_key_pem is required", ErrConfig)
	}
	if strings.TrimSpace(s.CDNBaseURL) == "" {
		return fmt.Errorf("%w: signing.cdn_base_url is required", ErrConfig)
	}
	if s.PlaybackTTL <= 0 || s.PlaybackTTL > maxPlaybackTTL {
		return fmt.Errorf("%w: signing.playback_ttl %s is out of range", ErrConfig, s.PlaybackTTL)
	}
	return nil
}

// Validate check bucket setting
func (s StorageConfig) Validate() error {
	if s.QuarantineBucket == "" || s.DurableBucket == "" {
		return fmt.Errorf("%w: storage.quarantine_bucket and storage.durable_bucket are required", ErrConfig)
	}
	if s.QuarantineBucket == s.DurableBucket {
		return fmt.Errorf("%w: quarantine and durable bucket must differ", ErrConfig)
	}
	switch s.Driver {
	case "", "minio", "s3":
	default:
		return fmt.Errorf("%w: unknown storage.driver %q", ErrConfig, s.Driver)
	}
	return nil
}

// ApplyDefaults fill the zero values
func (e *EdgeConfig) ApplyDefaults() {
	if e.CountryHeader == "" {
		e.CountryHeader = "CloudFront-Viewer-Country"
	}
	if e.SecretHeader == "" {
		e.SecretHeader = "X-Edge-Secret"
	}
}

// Validate the edge must be provable, otherwise every country header is ignored
func (e EdgeConfig) Validate() error {
	if strings.TrimSpace(e.CountryHeader) == "" {
		return fmt.Errorf("%w: edge.country_header is required", ErrConfig)
	}
	hasSecret := strings.TrimSpace(e.Secret) != "" && strings.TrimSpace(e.SecretHeader) != ""
	hasProxy := false
	for _, p := range e.TrustedProxies {
		if strings.TrimSpace(p) != "" {
			hasProxy = true
			break
		}
	}
	if !hasSecret && !hasProxy {
		return fmt.Errorf("%w: edge.secret or edge.trusted_proxies is required", ErrConfig)
	}
	return nil
}

// ApplyDefaults fill the zero values
func (p *PipelineConfig) ApplyDefaults() {
	if len(p.AllowedMIMEPrefixes) == 0 {
		p.AllowedMIMEPrefixes = []string{"video/"}
	}
	p.StatRetry.applyDefaults(500*time.Millisecond, 8*time.Second, 6)
	p.StorageRetry.applyDefaults(time.Second, 15*time.Second, 5)
	p.SubmitRetry.applyDefaults(time.Second, 30*time.Second, 5)
	if p.LockTTL <= 0 {
		p.LockTTL = 5 * time.Minute
	}
	if p.HandlerTimeout <= 0 {
		p.HandlerTimeout = 2 * time.Minute
	}
}

func (r *RetryConfig) applyDefaults(initial, max time.Duration, attempts int) {
	if r.InitialInterval <= 0 {
		r.InitialInterval = initial
	}
	if r.MaxInterval <= 0 {
		r.MaxInterval = max
	}
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = attempts
	}
}

// ApplyDefaults fill the zero values, matching the original HLS group settings
func (t *TranscodeConfig) ApplyDefaults() {
	if t.Name == "" {
		t.Name = "hls_720p"
	}
	if t.SegmentSeconds <= 0 {
		t.SegmentSeconds = 10
	}
	if t.VideoCodec == "" {
		t.VideoCodec = "h264"
	}
	if t.MaxBitrate <= 0 {
		t.MaxBitrate = 5000000
	}
	if t.AudioCodec == "" {
		t.AudioCodec = "aac"
	}
	if t.AudioBitrate <= 0 {
		t.AudioBitrate = 96000
	}
	if t.AudioSampleRate <= 0 {
		t.AudioSampleRate = 48000
	}
}

// ApplyDefaults fill the zero values
func (r *RabbitMQConfig) ApplyDefaults() {
	if r.NotificationQueue == "" {
		r.NotificationQueue = "storage.quarantine"
	}
	if r.JobQueue == "" {
		r.JobQueue = "transcode"
	}
	if r.CompletionQueue == "" {
		r.CompletionQueue = "transcode.completed"
	}
	if r.RequeueDelay <= 0 {
		r.RequeueDelay = 10 * time.Second
	}
	if r.Prefetch <= 0 {
		r.Prefetch = 10
	}
	if r.RetryCount <= 0 {
		r.RetryCount = 5
	}
	if r.RetryInterval <= 0 {
		r.RetryInterval = 5
	}
}
