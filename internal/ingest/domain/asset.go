package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// VideoAsset 影片資產, 由 metadata 服務共用, core 不是唯一寫入者
type VideoAsset struct {
	ID                  string      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	OriginalFileName    string      `json:"original_file_name"`
	DeclaredContentType string      `json:"declared_content_type"`
	RawLocator          string      `json:"raw_locator,omitempty"`
	SourceLocator       string      `json:"source_locator,omitempty"`
	RenditionLocator    string      `json:"rendition_locator,omitempty"`
	Status              AssetStatus `gorm:"type:varchar(32);index" json:"status"`
	BlockedCountries    CountryList `gorm:"type:text" json:"blocked_countries"`
	JobID               string      `gorm:"type:varchar(36)" json:"job_id,omitempty"`
	FailureReason       string      `json:"failure_reason,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// TableName gorm table
func (VideoAsset) TableName() string {
	return "video_assets"
}

// CountryList blocked countries, ISO codes or country names, stored as a JSON array
type CountryList []string

// Value implements driver.Valuer
func (c CountryList) Value() (driver.Value, error) {
	cleaned := make([]string, 0, len(c))
	for _, v := range c {
		if v = strings.TrimSpace(v); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	sort.Strings(cleaned)
	b, err := json.Marshal(cleaned)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *CountryList) Scan(src interface{}) error {
	var s string
	switch v := src.(type) {
	case nil:
		*c = nil
		return nil
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("unsupported CountryList source %T", src)
	}

	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return fmt.Errorf("decode CountryList: %w", err)
		}
		*c = list
		return nil
	}

	// 舊資料: 逗號分隔
	list := CountryList{}
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			list = append(list, part)
		}
	}
	*c = list
	return nil
}
