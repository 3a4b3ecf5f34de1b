package dto

import "time"

type CreateInstanceDTO struct {
	Name       string `json:"name" validate:"required,min=3,max=63"`
	VCPU       int    `json:"vcpu" validate:"required,min=1,max=16"`
	RAMMB      int    `json:"ram_mb" validate:"required,min=256,max=65536"`
	DiskGB     int    `json:"disk_gb" validate:"required,min=5,max=1024"`
	OSTemplate string `json:"os_template" validate:"required"`
}

type StopInstanceDTO struct {
	Force bool `json:"force"`
}

type CreateSnapshotDTO struct {
	Name string `json:"name" validate:"required,max=40"`
}

// LifecycleResponseDTO is returned by every dispatch endpoint. TaskID lets
// the caller poll the task until it reaches a terminal status.
type LifecycleResponseDTO struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	TaskID     uint   `json:"task_id,omitempty"`
	InstanceID uint   `json:"instance_id,omitempty"`
}

type InstanceResponseDTO struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	VMID        *int      `json:"vmid,omitempty"`
	IPAddress   *string   `json:"ip_address,omitempty"`
	VCPU        int       `json:"vcpu"`
	RAMMB       int       `json:"ram_mb"`
	DiskGB      int       `json:"disk_gb"`
	OSTemplate  string    `json:"os_template"`
	Status      string    `json:"status"`
	Node        string    `json:"node"`
	HourlyPrice float64   `json:"hourly_price"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
