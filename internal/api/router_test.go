package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	metricsv1beta1 "k8s.io/metrics/pkg/apis/metrics/v1beta1"

	"github.com/kubilitics/kubeluma/internal/api/rest"
	"github.com/kubilitics/kubeluma/internal/api/websocket"
	"github.com/kubilitics/kubeluma/internal/k8s"
	"github.com/kubilitics/kubeluma/internal/models"
	"github.com/kubilitics/kubeluma/internal/service"
)

type healthy struct{}

func (healthy) HealthStatus() (bool, time.Time, error, k8s.CircuitBreakerState) {
	return true, time.Now(), nil, k8s.StateClosed
}

type nopGateway struct{ service.Gateway }

// clusterGateway serves one running pod and no metrics API.
type clusterGateway struct {
	nopGateway
	pod corev1.Pod
}

func (g clusterGateway) ListPods(context.Context, string) ([]corev1.Pod, error) {
	return []corev1.Pod{g.pod}, nil
}

func (g clusterGateway) GetPod(context.Context, string, string) (*corev1.Pod, error) {
	return g.pod.DeepCopy(), nil
}

func (clusterGateway) GetPodMetrics(context.Context, string, string) (*metricsv1beta1.PodMetrics, error) {
	return nil, k8s.ErrMetricsUnavailable
}

func (clusterGateway) ListEvents(context.Context, string) ([]models.ClusterEvent, error) {
	return nil, nil
}

func newTestHandler(t *testing.T) (http.Handler, *service.Engine) {
	t.Helper()
	return newTestHandlerWith(t, nopGateway{}, service.Options{})
}

func newTestHandlerWith(t *testing.T, gw service.Gateway, opts service.Options) (http.Handler, *service.Engine) {
	t.Helper()
	ctx := t.Context()
	hub := websocket.NewHub(ctx, nil)
	go hub.Run()
	t.Cleanup(hub.Stop)

	engine := service.NewEngine(gw, hub, opts)
	h := NewRouter(Deps{
		Admin:  rest.NewHandler(engine, nil),
		Health: rest.NewHealthzHandler(healthy{}),
		Viewer: websocket.NewHandler(ctx, hub, engine, []string{"*"}),
	})
	return h, engine
}

func TestRouter_AdminRoundTrip(t *testing.T) {
	h, engine := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/api/set_pattern", strings.NewReader(`{"pattern":"api"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	text, ok := engine.CurrentPattern()
	assert.True(t, ok)
	assert.Equal(t, "api", text)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/current_pattern", nil))
	assert.JSONEq(t, `{"pattern":"api"}`, rec.Body.String())
}

func TestRouter_HealthMetricsAndIndex(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, path := range []string{"/healthz/live", "/healthz/ready", "/metrics", "/"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestRouter_WebsocketUpgrade(t *testing.T) {
	h, engine := newTestHandler(t)
	srv := httptest.NewServer(h)
	defer srv.Close()

	engine.ResetPattern()

	conn, resp, err := wsDial(srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}

	var msg models.ServerMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, models.MessageAwaitingPattern, msg.Type)
}

func TestRouter_LateSubscriberGetsFocusedState(t *testing.T) {
	pod := corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{Name: "api-1", Namespace: "default", UID: "uid-api-1"},
		Spec:       corev1.PodSpec{Containers: []corev1.Container{{Name: "app", Image: "repo/app:1"}}},
		Status:     corev1.PodStatus{Phase: corev1.PodRunning},
	}
	h, engine := newTestHandlerWith(t, clusterGateway{pod: pod}, service.Options{
		InitialPattern:  "api",
		PodRefresh:      20 * time.Millisecond,
		DetailRefresh:   20 * time.Millisecond,
		MetricsInterval: 20 * time.Millisecond,
		EventsInterval:  20 * time.Millisecond,
	})
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- engine.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return engine.RequestFocus("api-1") == nil }, 2*time.Second, 10*time.Millisecond)
	// Let the loops publish for the new focus before anyone subscribes.
	time.Sleep(100 * time.Millisecond)

	conn, resp, err := wsDial(srv.URL)
	require.NoError(t, err)
	defer conn.Close()
	if resp != nil {
		resp.Body.Close()
	}
	require.NoError(t, conn.WriteJSON(models.ClientMessage{Action: models.ActionSubscribe, Channel: models.ChannelPod}))

	got := map[string]json.RawMessage{}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	want := []string{models.MessagePods, models.MessagePod, models.MessageMetrics}
	hasAll := func() bool {
		for _, typ := range want {
			if _, ok := got[typ]; !ok {
				return false
			}
		}
		return true
	}
	for !hasAll() {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		got[msg.Type] = msg.Data
	}

	var detail models.PodDetail
	require.NoError(t, json.Unmarshal(got[models.MessagePod], &detail))
	assert.Equal(t, "api-1", detail.Name)
	assert.JSONEq(t, `{"disabled":true}`, string(got[models.MessageMetrics]))
	assert.Contains(t, string(got[models.MessagePods]), `"focus":"api-1"`)
}

func wsDial(httpURL string) (*gorillaws.Conn, *http.Response, error) {
	return gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(httpURL, "http")+"/ws", nil)
}
