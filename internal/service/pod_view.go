package service

import (
	"fmt"
	"time"

	corev1 "k8s.io/api/core/v1"

	"github.com/kubilitics/kubeluma/internal/models"
)

// envSourceKind tags where an env var value comes from.
type envSourceKind int

const (
	envLiteral envSourceKind = iota
	envSecret
	envConfigMap
	envField
	envResourceField
	envOther
)

type envSource struct {
	kind  envSourceKind
	value string // literal value
	name  string // secret or configmap name
	key   string // secret or configmap key, field path, or resource name
}

func classifyEnv(ev corev1.EnvVar) envSource {
	src := ev.ValueFrom
	switch {
	case src == nil:
		return envSource{kind: envLiteral, value: ev.Value}
	case src.SecretKeyRef != nil:
		return envSource{kind: envSecret, name: src.SecretKeyRef.Name, key: src.SecretKeyRef.Key}
	case src.ConfigMapKeyRef != nil:
		return envSource{kind: envConfigMap, name: src.ConfigMapKeyRef.Name, key: src.ConfigMapKeyRef.Key}
	case src.FieldRef != nil:
		return envSource{kind: envField, key: src.FieldRef.FieldPath}
	case src.ResourceFieldRef != nil:
		return envSource{kind: envResourceField, key: src.ResourceFieldRef.Resource}
	default:
		return envSource{kind: envOther}
	}
}

// display never returns a secret value.
func (s envSource) display() string {
	switch s.kind {
	case envLiteral:
		return s.value
	case envSecret:
		return fmt.Sprintf("*** (secret %s/%s)", s.name, s.key)
	case envConfigMap:
		return fmt.Sprintf("configmap:%s/%s", s.name, s.key)
	case envField:
		return "fieldRef:" + s.key
	case envResourceField:
		return "resourceField:" + s.key
	default:
		return "(valueFrom)"
	}
}

func containerEnv(c corev1.Container) []models.EnvVar {
	env := make([]models.EnvVar, 0, len(c.Env))
	for _, ev := range c.Env {
		env = append(env, models.EnvVar{Name: ev.Name, Value: classifyEnv(ev).display()})
	}
	return env
}

var viewedResources = []corev1.ResourceName{corev1.ResourceCPU, corev1.ResourceMemory}

func containerResources(c corev1.Container) models.Resources {
	out := models.Resources{Requests: map[string]string{}, Limits: map[string]string{}}
	for _, name := range viewedResources {
		if q, ok := c.Resources.Requests[name]; ok && !q.IsZero() {
			out.Requests[string(name)] = q.String()
		}
		if q, ok := c.Resources.Limits[name]; ok && !q.IsZero() {
			out.Limits[string(name)] = q.String()
		}
	}
	return out
}

func containerState(st corev1.ContainerState) string {
	switch {
	case st.Running != nil:
		return "running"
	case st.Waiting != nil:
		return fmt.Sprintf("waiting(%s)", st.Waiting.Reason)
	case st.Terminated != nil:
		return fmt.Sprintf("terminated(%s)", st.Terminated.Reason)
	default:
		return "unknown"
	}
}

func statusByName(pod *corev1.Pod) map[string]corev1.ContainerStatus {
	out := make(map[string]corev1.ContainerStatus, len(pod.Status.ContainerStatuses))
	for _, cs := range pod.Status.ContainerStatuses {
		out[cs.Name] = cs
	}
	return out
}

// PodSummaryFrom builds the pod list row.
func PodSummaryFrom(pod *corev1.Pod) models.PodSummary {
	s := models.PodSummary{
		Name:      pod.Name,
		Namespace: pod.Namespace,
		Phase:     string(pod.Status.Phase),
		Total:     len(pod.Spec.Containers),
	}
	for _, cs := range pod.Status.ContainerStatuses {
		s.Restarts += cs.RestartCount
		if cs.Ready {
			s.Ready++
		}
	}
	if s.Total == 0 {
		s.Total = len(pod.Status.ContainerStatuses)
	}
	return s
}

// PodDetailFrom builds the focused pod view. Containers follow the spec order; a
// container without a status yet is reported as unknown and not ready.
func PodDetailFrom(pod *corev1.Pod, now time.Time) models.PodDetail {
	d := models.PodDetail{
		Name:       pod.Name,
		UID:        string(pod.UID),
		Namespace:  pod.Namespace,
		Phase:      string(pod.Status.Phase),
		Node:       pod.Status.HostIP,
		PodIP:      pod.Status.PodIP,
		Containers: make([]models.ContainerDetail, 0, len(pod.Spec.Containers)),
	}
	if !pod.CreationTimestamp.IsZero() {
		d.AgeSeconds = int64(now.Sub(pod.CreationTimestamp.Time).Seconds())
	}

	statuses := statusByName(pod)
	for _, c := range pod.Spec.Containers {
		cd := models.ContainerDetail{
			Name:      c.Name,
			State:     "unknown",
			Image:     c.Image,
			Env:       containerEnv(c),
			Resources: containerResources(c),
		}
		if cs, ok := statuses[c.Name]; ok {
			cd.Ready = cs.Ready
			cd.Restarts = cs.RestartCount
			cd.State = containerState(cs.State)
			if cs.Image != "" {
				cd.Image = cs.Image
			}
		}
		d.Containers = append(d.Containers, cd)
	}
	return d
}
