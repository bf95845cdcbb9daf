package domain

import (
	"fmt"
	"strings"
)

// Locator bucket + key of one object
type Locator struct {
	Bucket string `json:"bucket"`
	Key    string `json:"key"`
}

// String bucket/key
func (l Locator) String() string {
	if l.Bucket == "" && l.Key == "" {
		return ""
	}
	return l.Bucket + "/" + l.Key
}

// IsZero no object
func (l Locator) IsZero() bool {
	return l.Bucket == "" && l.Key == ""
}

// ParseLocator inverse of Locator.String
func ParseLocator(s string) (Locator, error) {
	if s == "" {
		return Locator{}, nil
	}
	i := strings.IndexByte(s, '/')
	if i <= 0 || i == len(s)-1 {
		return Locator{}, fmt.Errorf("invalid locator %q", s)
	}
	return Locator{Bucket: s[:i], Key: s[i+1:]}, nil
}

const (
	quarantinePrefix = "uploads/"
	durablePrefix    = "sources/"
	renditionPrefix  = "renditions/"
	objectName       = "source"
	// ManifestName HLS master playlist written by the transcoder
	ManifestName = "index.m3u8"
)

// QuarantineKey uploads/<assetId>/source, never derived from the client file name
func QuarantineKey(assetID string) string {
	return quarantinePrefix + assetID + "/" + objectName
}

// DurableKey sources/<assetId>/source
func DurableKey(assetID string) string {
	return durablePrefix + assetID + "/" + objectName
}

// RenditionPrefix renditions/<assetId>/
func RenditionPrefix(assetID string) string {
	return renditionPrefix + assetID + "/"
}

// RenditionManifestKey renditions/<assetId>/index.m3u8
func RenditionManifestKey(assetID string) string {
	return RenditionPrefix(assetID) + ManifestName
}

// AssetIDFromQuarantineKey extract the asset id, false when key is not a quarantine key
func AssetIDFromQuarantineKey(key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, quarantinePrefix)
	if !ok {
		return "", false
	}
	id, name, ok := strings.Cut(rest, "/")
	if !ok || id == "" || name != objectName {
		return "", false
	}
	return id, true
}
