package models

// ContainerMetrics is the latest usage sample of one container. Request, limit and
// percentage fields are nil when the container declares no such request or limit.
type ContainerMetrics struct {
	Name            string   `json:"name"`
	CPUMillicores   float64  `json:"cpu"`
	MemoryMiB       float64  `json:"memoryMiB"`
	CPURequest      *float64 `json:"cpuRequest,omitempty"`
	CPULimit        *float64 `json:"cpuLimit,omitempty"`
	MemRequestMiB   *float64 `json:"memRequestMiB,omitempty"`
	MemLimitMiB     *float64 `json:"memLimitMiB,omitempty"`
	CPUPctOfRequest *float64 `json:"cpuPctOfRequest,omitempty"`
	CPUPctOfLimit   *float64 `json:"cpuPctOfLimit,omitempty"`
	MemPctOfRequest *float64 `json:"memPctOfRequest,omitempty"`
	MemPctOfLimit   *float64 `json:"memPctOfLimit,omitempty"`
}

// Thresholds are the red-highlight cutoffs handed to viewers.
type Thresholds struct {
	CPULimitRed int `json:"cpuLimitRed"`
	MemLimitRed int `json:"memLimitRed"`
}

// MetricsView is the data of a "metrics" message. Disabled is set when the
// cluster has no metrics API; Containers and Thresholds are then omitted.
type MetricsView struct {
	Pod        string             `json:"pod,omitempty"`
	Containers []ContainerMetrics `json:"containers,omitempty"`
	Thresholds *Thresholds        `json:"thresholds,omitempty"`
	Disabled   bool               `json:"disabled,omitempty"`
}
