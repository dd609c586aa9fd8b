package models

// ServiceHealth is the connectivity report for one backend dependency.
type ServiceHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type NodeInfo struct {
	Name                string  `json:"name"`
	Ready               bool    `json:"ready"`
	CPUCapacity         float64 `json:"cpu_capacity"`
	CPUAllocatable      float64 `json:"cpu_allocatable"`
	MemoryCapacityGB    float64 `json:"memory_capacity_gb"`
	MemoryAllocatableGB float64 `json:"memory_allocatable_gb"`
	KubeletVersion      string  `json:"kubelet_version,omitempty"`
}

type ClusterInfo struct {
	Nodes               int        `json:"nodes"`
	TotalCPU            float64    `json:"total_cpu"`
	TotalMemoryGB       float64    `json:"total_memory_gb"`
	AllocatableCPU      float64    `json:"allocatable_cpu"`
	AllocatableMemoryGB float64    `json:"allocatable_memory_gb"`
	NodeDetails         []NodeInfo `json:"node_details,omitempty"`
}

// HealthReport is the response of GET /health.
type HealthReport struct {
	OverallStatus string                   `json:"overall_status"`
	Services      map[string]ServiceHealth `json:"services"`
	Cluster       *ClusterInfo             `json:"cluster,omitempty"`
}

func (h *HealthReport) Healthy() bool {
	return h != nil && h.OverallStatus == "healthy"
}
