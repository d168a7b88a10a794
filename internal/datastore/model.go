package datastore

import "time"

// CaptionRecord is one persisted final caption.
type CaptionRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID string    `gorm:"size:36;index:idx_captions_session_seq,priority:1" json:"session_id"`
	Seq       uint64    `gorm:"index:idx_captions_session_seq,priority:2" json:"seq"`
	Language  string    `gorm:"size:64" json:"language"`
	Text      string    `gorm:"type:text" json:"text"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the table name independently of the struct name.
func (CaptionRecord) TableName() string {
	return "captions"
}
