package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"MLPDev/pkg/core/trainer/runs"
	"MLPDev/pkg/core/trainer/utils"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const smallRun = `{
	"seed": 1,
	"dataset": "separable",
	"samples": 60,
	"features": 2,
	"train_split": 0.75,
	"layers": [
		{"in": 2, "out": 4, "activation": "tanh"},
		{"in": 4, "out": 1, "activation": "sigmoid"}
	],
	"loss": "cross_entropy",
	"learning_rate": 0.05,
	"batch_size": 8,
	"epochs": 6
}`

func newTestTrainer(t *testing.T) (*Trainer, *httptest.Server) {
	t.Helper()
	trainer := NewTrainer("0")
	srv := httptest.NewServer(trainer.HTTPServer.Router)
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		assert.NoError(t, trainer.Shutdown(ctx))
	})
	return trainer, srv
}

func startRun(t *testing.T, srv *httptest.Server, body string) string {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var created struct {
		RunID  string       `json:"run_id"`
		Status utils.Status `json:"status"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	require.NotEmpty(t, created.RunID)
	return created.RunID
}

func waitRun(t *testing.T, trainer *Trainer, id string) *runs.Run {
	t.Helper()
	run, err := trainer.RunManager.Get(id)
	require.NoError(t, err)
	select {
	case <-run.Done():
	case <-time.After(30 * time.Second):
		t.Fatalf("训练任务 %s 超时", id)
	}
	return run
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestRunLifecycle(t *testing.T) {
	trainer, srv := newTestTrainer(t)

	id := startRun(t, srv, smallRun)
	waitRun(t, trainer, id)

	var info utils.RunInfo
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs/"+id, &info))
	assert.Equal(t, id, info.ID)
	assert.Equal(t, utils.StatusCompleted, info.Status)
	assert.Equal(t, 6, info.Epoch)
	assert.Len(t, info.TrainingLosses, 6)
	assert.Len(t, info.ValidationLosses, 6)
	assert.Empty(t, info.Error)
	require.NotNil(t, info.FinishedAt)
	assert.Equal(t, 60, info.Config.Samples)

	var list struct {
		Runs []utils.RunSummary `json:"runs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/api/runs", &list))
	require.Len(t, list.Runs, 1)
	assert.Equal(t, id, list.Runs[0].ID)
	assert.Equal(t, 6, list.Runs[0].Epochs)

	var status struct {
		Status string               `json:"status"`
		Runs   map[utils.Status]int `json:"runs"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/status", &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, 1, status.Runs[utils.StatusCompleted])

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `mlp_runs_total{status="completed"} 1`)
	assert.Contains(t, string(body), `mlp_epochs_total{run="`+id+`"} 6`)
}

func TestStartRun_Rejected(t *testing.T) {
	_, srv := newTestTrainer(t)

	for name, body := range map[string]string{
		"malformed": `{"epochs":`,
		"invalid":   `{"epochs": 0}`,
		"loss":      `{"loss": "hinge"}`,
		"csv":       `{"dataset": "csv", "features_path": "/etc/hosts", "labels_path": "/etc/hosts"}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/runs", "application/json", strings.NewReader(body))
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
}

func TestGetRun_NotFound(t *testing.T) {
	_, srv := newTestTrainer(t)
	var body map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, srv.URL+"/api/runs/missing", &body))
	assert.NotEmpty(t, body["error"])

	resp, err := http.Get(srv.URL + "/api/runs/missing/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// websocket 推送每一轮恰好一次，最后是 done
func TestStreamRun(t *testing.T) {
	trainer, srv := newTestTrainer(t)
	id := startRun(t, srv, smallRun)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/runs/" + id + "/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(30*time.Second)))

	var epochs []int
	var final *utils.RunInfo
	for final == nil {
		var msg utils.StreamMessage
		require.NoError(t, conn.ReadJSON(&msg))
		switch msg.Type {
		case "epoch":
			require.NotNil(t, msg.Epoch)
			assert.Equal(t, id, msg.Epoch.RunID)
			epochs = append(epochs, msg.Epoch.Epoch)
		case "done":
			final = msg.Run
		default:
			t.Fatalf("未知的消息类型 %q", msg.Type)
		}
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, epochs)
	require.NotNil(t, final)
	assert.Equal(t, utils.StatusCompleted, final.Status)

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))

	run := waitRun(t, trainer, id)
	assert.Equal(t, utils.StatusCompleted, run.Status())
}
