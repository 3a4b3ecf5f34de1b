package dto

import (
	"encoding/json"
	"time"
)

// TaskPayload carries the action parameters handed to the bridge script.
// Fields not relevant to an action are left zero and omitted on the wire.
// IPAddress doubles as the lease to release when the action is delete.
type TaskPayload struct {
	InstanceID   uint   `json:"instance_id,omitempty"`
	VMID         int    `json:"vmid"`
	Name         string `json:"name,omitempty"`
	VCPU         int    `json:"vcpu,omitempty"`
	RAMMB        int    `json:"ram_mb,omitempty"`
	DiskGB       int    `json:"disk_gb,omitempty"`
	OSTemplate   string `json:"os_template,omitempty"`
	IPAddress    string `json:"ip_address,omitempty"`
	Gateway      string `json:"gateway,omitempty"`
	Node         string `json:"node,omitempty"`
	Force        bool   `json:"force,omitempty"`
	SnapshotName string `json:"snapshot_name,omitempty"`
}

type TaskResponseDTO struct {
	ID         uint            `json:"id"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	StartedAt  *time.Time      `json:"started_at,omitempty"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
}
