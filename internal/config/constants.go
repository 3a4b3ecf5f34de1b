package config

type TaskStatus = string

type InstanceStatus = string

var (
	// Actions mirror the bridge script's --action values.
	ActionCreate         = "create"
	ActionStart          = "start"
	ActionStop           = "stop"
	ActionReboot         = "reboot"
	ActionDelete         = "delete"
	ActionStatus         = "status"
	ActionConsole        = "console"
	ActionSnapshotList   = "snapshot_list"
	ActionSnapshotCreate = "snapshot_create"

	AllowedActions = []string{
		ActionCreate, ActionStart, ActionStop, ActionReboot, ActionDelete,
		ActionStatus, ActionConsole, ActionSnapshotList, ActionSnapshotCreate,
	}

	AllowedTemplates = []string{
		"ubuntu-22.04", "ubuntu-24.04", "debian-12", "rocky-9", "alpine-3.20",
	}

	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"

	InstanceStatusPending  InstanceStatus = "pending"
	InstanceStatusCreating InstanceStatus = "creating"
	InstanceStatusRunning  InstanceStatus = "running"
	InstanceStatusStopped  InstanceStatus = "stopped"
	InstanceStatusError    InstanceStatus = "error"
	InstanceStatusDeleted  InstanceStatus = "deleted"
)

// TaskTerminal reports whether a task status is final.
func TaskTerminal(status TaskStatus) bool {
	return status == TaskStatusCompleted || status == TaskStatusFailed
}
