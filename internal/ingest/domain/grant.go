package domain

import "time"

// SignedURLGrant one time-bounded credential, never reused or extended
type SignedURLGrant struct {
	TargetLocator string    `json:"-"`
	Method        string    `json:"method"`
	URL           string    `json:"url"`
	Signature     string    `json:"-"`
	IssuedAt      time.Time `json:"issuedAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// UploadSlot response of RequestUploadSlot
type UploadSlot struct {
	AssetID    string         `json:"assetId"`
	ObjectKey  string         `json:"objectKey"`
	WriteGrant SignedURLGrant `json:"writeGrant"`
}

// PlaybackGrant response of RequestPlaybackURL
type PlaybackGrant struct {
	SignedURL string    `json:"signedURL"`
	ExpiresAt time.Time `json:"expiresAt"`
}
