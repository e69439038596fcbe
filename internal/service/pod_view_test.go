package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
)

func TestClassifyEnv_Display(t *testing.T) {
	tests := []struct {
		name string
		env  corev1.EnvVar
		want string
	}{
		{name: "literal", env: corev1.EnvVar{Name: "A", Value: "1"}, want: "1"},
		{name: "empty literal", env: corev1.EnvVar{Name: "A"}, want: ""},
		{
			name: "secret is masked",
			env: corev1.EnvVar{Name: "PASS", ValueFrom: &corev1.EnvVarSource{
				SecretKeyRef: &corev1.SecretKeySelector{LocalObjectReference: corev1.LocalObjectReference{Name: "db"}, Key: "password"},
			}},
			want: "*** (secret db/password)",
		},
		{
			name: "configmap",
			env: corev1.EnvVar{Name: "MODE", ValueFrom: &corev1.EnvVarSource{
				ConfigMapKeyRef: &corev1.ConfigMapKeySelector{LocalObjectReference: corev1.LocalObjectReference{Name: "cfg"}, Key: "mode"},
			}},
			want: "configmap:cfg/mode",
		},
		{
			name: "field ref",
			env: corev1.EnvVar{Name: "NODE", ValueFrom: &corev1.EnvVarSource{
				FieldRef: &corev1.ObjectFieldSelector{FieldPath: "spec.nodeName"},
			}},
			want: "fieldRef:spec.nodeName",
		},
		{
			name: "resource field",
			env: corev1.EnvVar{Name: "LIM", ValueFrom: &corev1.EnvVarSource{
				ResourceFieldRef: &corev1.ResourceFieldSelector{Resource: "limits.cpu"},
			}},
			want: "resourceField:limits.cpu",
		},
		{name: "unknown source", env: corev1.EnvVar{Name: "X", ValueFrom: &corev1.EnvVarSource{}}, want: "(valueFrom)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classifyEnv(tt.env).display())
		})
	}
}

func TestContainerState(t *testing.T) {
	assert.Equal(t, "running", containerState(corev1.ContainerState{Running: &corev1.ContainerStateRunning{}}))
	assert.Equal(t, "waiting(CrashLoopBackOff)", containerState(corev1.ContainerState{
		Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
	}))
	assert.Equal(t, "terminated(OOMKilled)", containerState(corev1.ContainerState{
		Terminated: &corev1.ContainerStateTerminated{Reason: "OOMKilled"},
	}))
	assert.Equal(t, "unknown", containerState(corev1.ContainerState{}))
}

func TestPodDetailFrom(t *testing.T) {
	pod := newPod("prod", "api-1", "app", "sidecar")
	pod.Spec.Containers[0].Resources = corev1.ResourceRequirements{
		Requests: corev1.ResourceList{
			corev1.ResourceCPU:              resource.MustParse("250m"),
			corev1.ResourceMemory:           resource.MustParse("128Mi"),
			corev1.ResourceEphemeralStorage: resource.MustParse("1Gi"),
		},
		Limits: corev1.ResourceList{corev1.ResourceCPU: resource.MustParse("0")},
	}
	pod.Status.ContainerStatuses[1].Ready = false
	pod.Status.ContainerStatuses[1].RestartCount = 4
	pod.Status.ContainerStatuses[1].State = corev1.ContainerState{
		Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
	}

	d := PodDetailFrom(&pod, testNow)
	assert.Equal(t, "api-1", d.Name)
	assert.Equal(t, "uid-api-1", d.UID)
	assert.Equal(t, "prod", d.Namespace)
	assert.Equal(t, "192.168.1.10", d.Node)
	assert.Equal(t, int64(60), d.AgeSeconds)
	require.Len(t, d.Containers, 2)

	app := d.Containers[0]
	assert.Equal(t, "running", app.State)
	assert.Equal(t, map[string]string{"cpu": "250m", "memory": "128Mi"}, app.Resources.Requests)
	assert.Empty(t, app.Resources.Limits, "zero quantities are skipped")

	side := d.Containers[1]
	assert.False(t, side.Ready)
	assert.Equal(t, int32(4), side.Restarts)
	assert.Equal(t, "waiting(CrashLoopBackOff)", side.State)
}

func TestPodDetailFrom_PendingWithoutStatuses(t *testing.T) {
	pod := newPod("default", "api-1", "app")
	pod.Status = corev1.PodStatus{Phase: corev1.PodPending}

	d := PodDetailFrom(&pod, testNow)
	require.Len(t, d.Containers, 1)
	assert.Equal(t, "unknown", d.Containers[0].State)
	assert.False(t, d.Containers[0].Ready)
	assert.Equal(t, "repo/app:1", d.Containers[0].Image)

	s := PodSummaryFrom(&pod)
	assert.Equal(t, 1, s.Total)
	assert.Equal(t, 0, s.Ready)
}
