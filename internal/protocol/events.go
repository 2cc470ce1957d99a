// Package protocol defines the JSON messages published to Kafka.
package protocol

import (
	"encoding/json"
	"time"
)

// EventType names a snapshot lifecycle event.
type EventType string

const (
	EventSnapshotRefreshed EventType = "SNAPSHOT_REFRESHED"
	EventPipelineFailed    EventType = "PIPELINE_FAILED"
)

// SnapshotEvent is published on the snapshots topic after each rebuild or
// failed rebuild of a resource.
type SnapshotEvent struct {
	Type       EventType      `json:"type"`
	SnapshotID string         `json:"snapshot_id,omitempty"`
	ResourceID string         `json:"resource_id"`
	FetchedAt  time.Time      `json:"fetched_at,omitempty"`
	BuiltAt    time.Time      `json:"built_at"`
	Records    int            `json:"records"`
	Metrics    int            `json:"metrics"`
	LatestDay  string         `json:"latest_day,omitempty"`
	Quality    map[string]int `json:"quality,omitempty"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// AlertType is the quality alert transition.
type AlertType string

const (
	AlertOpened   AlertType = "VIOLATION_OPENED"
	AlertResolved AlertType = "VIOLATION_RESOLVED"
)

// QualityAlert is published on the alerts topic when a data-quality
// violation opens or resolves.
type QualityAlert struct {
	Type       AlertType `json:"type"`
	ResourceID string    `json:"resource_id"`
	Kind       string    `json:"kind"`
	Severity   string    `json:"severity"`
	Metric     string    `json:"metric"`
	Subject    string    `json:"subject,omitempty"`
	RecordIDs  []int64   `json:"record_ids"`
	Detail     string    `json:"detail"`
	OpenedAt   time.Time `json:"opened_at"`
	At         time.Time `json:"at"`
}

// Key partitions alerts so that every transition of one violation lands on
// the same partition in order.
func (a *QualityAlert) Key() string {
	return a.ResourceID + "-" + a.Kind + "-" + a.Metric
}

// EncodeSnapshotEvent encodes a SnapshotEvent to JSON
func EncodeSnapshotEvent(ev *SnapshotEvent) ([]byte, error) {
	return json.Marshal(ev)
}

// DecodeSnapshotEvent decodes JSON to SnapshotEvent
func DecodeSnapshotEvent(data []byte) (*SnapshotEvent, error) {
	var ev SnapshotEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// EncodeQualityAlert encodes a QualityAlert to JSON
func EncodeQualityAlert(alert *QualityAlert) ([]byte, error) {
	return json.Marshal(alert)
}

// DecodeQualityAlert decodes JSON to QualityAlert
func DecodeQualityAlert(data []byte) (*QualityAlert, error) {
	var alert QualityAlert
	if err := json.Unmarshal(data, &alert); err != nil {
		return nil, err
	}
	return &alert, nil
}
