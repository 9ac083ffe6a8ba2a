package model

import "time"

// Draft is persisted in-progress reply text keyed by the thing being replied to.
type Draft struct {
	ID       string    `json:"id"`
	TargetID string    `json:"target_id"`
	Text     string    `json:"text"`
	Modified time.Time `json:"modified"`
}
