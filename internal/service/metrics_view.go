package service

import (
	"math"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/kubilitics/kubeluma/internal/models"
)

const bytesPerMiB = 1024 * 1024

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func cpuMillicores(q resource.Quantity) float64 {
	return round(q.AsApproximateFloat64()*1000, 2)
}

func memoryMiB(q resource.Quantity) float64 {
	return round(q.AsApproximateFloat64()/bytesPerMiB, 2)
}

// percentOf returns nil unless of is defined and positive.
func percentOf(usage float64, of *float64) *float64 {
	if of == nil || *of <= 0 {
		return nil
	}
	pct := round(usage/(*of)*100, 1)
	return &pct
}

// parseDeclared parses a request or limit string from a PodDetail. Missing or
// unparsable values yield nil.
func parseDeclared(values map[string]string, name corev1.ResourceName, conv func(resource.Quantity) float64) *float64 {
	raw, ok := values[string(name)]
	if !ok || raw == "" {
		return nil
	}
	q, err := resource.ParseQuantity(raw)
	if err != nil {
		return nil
	}
	v := conv(q)
	return &v
}

// BuildMetricsView joins a metrics sample with the requests and limits of detail.
// detail may be nil, in which case only raw usage is reported.
func BuildMetricsView(pm *metricsv1beta1.PodMetrics, detail *models.PodDetail, thresholds models.Thresholds) models.MetricsView {
	declared := map[string]models.Resources{}
	if detail != nil {
		for _, c := range detail.Containers {
			declared[c.Name] = c.Resources
		}
	}

	view := models.MetricsView{
		Pod:        pm.Name,
		Containers: make([]models.ContainerMetrics, 0, len(pm.Containers)),
		Thresholds: &thresholds,
	}
	for _, c := range pm.Containers {
		cm := models.ContainerMetrics{
			Name:          c.Name,
			CPUMillicores: cpuMillicores(c.Usage[corev1.ResourceCPU]),
			MemoryMiB:     memoryMiB(c.Usage[corev1.ResourceMemory]),
		}
		if res, ok := declared[c.Name]; ok {
			cm.CPURequest = parseDeclared(res.Requests, corev1.ResourceCPU, cpuMillicores)
			cm.CPULimit = parseDeclared(res.Limits, corev1.ResourceCPU, cpuMillicores)
			cm.MemRequestMiB = parseDeclared(res.Requests, corev1.ResourceMemory, memoryMiB)
			cm.MemLimitMiB = parseDeclared(res.Limits, corev1.ResourceMemory, memoryMiB)
			cm.CPUPctOfRequest = percentOf(cm.CPUMillicores, cm.CPURequest)
			cm.CPUPctOfLimit = percentOf(cm.CPUMillicores, cm.CPULimit)
			cm.MemPctOfRequest = percentOf(cm.MemoryMiB, cm.MemRequestMiB)
			cm.MemPctOfLimit = percentOf(cm.MemoryMiB, cm.MemLimitMiB)
		}
		view.Containers = append(view.Containers, cm)
	}
	return view
}
