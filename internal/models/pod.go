package models

// PodSummary is one row of the pod list.
type PodSummary struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Phase     string `json:"phase"`
	Restarts  int32  `json:"restarts"`
	Ready     int    `json:"ready"`
	Total     int    `json:"total"`
}

// PodDetail is the normalized view of the focused pod.
type PodDetail struct {
	Name       string            `json:"name"`
	UID        string            `json:"uid"`
	Namespace  string            `json:"namespace"`
	Phase      string            `json:"phase"`
	Node       string            `json:"node"`
	PodIP      string            `json:"podIP"`
	AgeSeconds int64             `json:"ageSeconds"`
	Containers []ContainerDetail `json:"containers"`
}

// ContainerDetail describes a single container of a pod.
type ContainerDetail struct {
	Name      string    `json:"name"`
	Ready     bool      `json:"ready"`
	Restarts  int32     `json:"restarts"`
	State     string    `json:"state"` // running, waiting(reason), terminated(reason), unknown
	Image     string    `json:"image"`
	Env       []EnvVar  `json:"env"`
	Resources Resources `json:"resources"`
}

// EnvVar carries a display value; secret-sourced values are always masked.
type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Resources maps resource names (cpu, memory) to quantity strings.
type Resources struct {
	Requests map[string]string `json:"requests"`
	Limits   map[string]string `json:"limits"`
}

// PodsPayload is the data of a "pods" message.
type PodsPayload struct {
	Pods    []PodSummary `json:"pods"`
	Focus   *string      `json:"focus"`
	Pattern *string      `json:"pattern"`
}
