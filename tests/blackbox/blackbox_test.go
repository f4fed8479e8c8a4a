package blackbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// findFreePort picks an available TCP port on localhost.
func findFreePort(t *testing.T) (int, func()) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	_, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		t.Fatalf("split: %v", err)
	}
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	return port, func() { _ = ln.Close() }
}

func projectRootFromThisFile(t *testing.T) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// this file: <root>/tests/blackbox/blackbox_test.go
	return filepath.Dir(filepath.Dir(filepath.Dir(thisFile)))
}

func buildBinary(t *testing.T) string {
	t.Helper()
	binPath := filepath.Join(t.TempDir(), "adapterd")
	cmd := exec.Command("go", "build", "-o", binPath, "./cmd/adapterd")
	cmd.Dir = projectRootFromThisFile(t)
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(out))
	}
	return binPath
}

// createAdaptersDir writes manifest files for a retailer and a task adapter.
func createAdaptersDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	manifests := map[string]string{
		"walmart-v1.yaml": `
id: walmart-v1
type: retailer
version: "1.0.0"
tags: [walmart]
`,
		"copy-gen-v1.json": `{
  "id": "copy-gen-v1",
  "type": "task",
  "version": "1.0.0",
  "tags": ["copy_generation"]
}`,
	}
	for name, body := range manifests {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write manifest %s: %v", name, err)
		}
	}
	return dir
}

type serverProc struct {
	base string // http base URL, e.g. http://127.0.0.1:18080
}

func startServer(t *testing.T, bin, adaptersDir string, port int) *serverProc {
	t.Helper()
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	cmd := exec.Command(bin, "serve",
		"--addr", fmt.Sprintf(":%d", port),
		"--adapters-dir", adaptersDir,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(base + "/healthz")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return &serverProc{base: base}
			}
		}
		if time.Now().After(deadline) {
			t.Fatal("server did not become healthy in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func postJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, b
}

func TestBlackbox_Flow(t *testing.T) {
	bin := buildBinary(t)
	adaptersDir := createAdaptersDir(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, adaptersDir, port)

	resp, body := get(t, sp.base+"/adapters")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/adapters %d %s", resp.StatusCode, string(body))
	}
	var adaptersResp struct {
		Adapters []struct {
			ID string `json:"id"`
		} `json:"adapters"`
	}
	if err := json.Unmarshal(body, &adaptersResp); err != nil {
		t.Fatalf("/adapters json: %v body=%s", err, string(body))
	}
	if len(adaptersResp.Adapters) != 2 {
		t.Fatalf("expected 2 adapters, got %d", len(adaptersResp.Adapters))
	}

	resp, body = get(t, sp.base+"/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/readyz %d %s", resp.StatusCode, string(body))
	}

	// Retailer scope resolves before task scope.
	resp, body = postJSON(t, sp.base+"/infer", []byte(`{"prompt":"hello","task":"copy_generation","retailer_id":"walmart"}`))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/infer %d %s", resp.StatusCode, string(body))
	}
	var inferResp struct {
		Output       string   `json:"output"`
		AdaptersUsed []string `json:"adapters_used"`
	}
	if err := json.Unmarshal(body, &inferResp); err != nil {
		t.Fatalf("/infer json: %v body=%s", err, string(body))
	}
	if len(inferResp.AdaptersUsed) != 2 || inferResp.AdaptersUsed[0] != "walmart-v1" || inferResp.AdaptersUsed[1] != "copy-gen-v1" {
		t.Fatalf("adapters_used = %v", inferResp.AdaptersUsed)
	}
	if inferResp.Output == "" {
		t.Fatal("empty output")
	}

	resp, body = get(t, sp.base+"/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/status %d %s", resp.StatusCode, string(body))
	}
	var statusResp struct {
		Adapters int `json:"adapters"`
	}
	if err := json.Unmarshal(body, &statusResp); err != nil {
		t.Fatalf("/status json: %v body=%s", err, string(body))
	}
	if statusResp.Adapters != 2 {
		t.Fatalf("status adapters = %d", statusResp.Adapters)
	}

	resp, body = get(t, sp.base+"/cache/stats")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/cache/stats %d %s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_Infer_NoMatchingAdapter_404(t *testing.T) {
	bin := buildBinary(t)
	adaptersDir := createAdaptersDir(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, adaptersDir, port)

	resp, body := postJSON(t, sp.base+"/infer", []byte(`{"prompt":"hi","task":"seo_optimization"}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, string(body))
	}
}

func TestBlackbox_ForcedUnknownAdapter_404(t *testing.T) {
	bin := buildBinary(t)
	adaptersDir := createAdaptersDir(t)
	port, release := findFreePort(t)
	release()
	sp := startServer(t, bin, adaptersDir, port)

	resp, body := postJSON(t, sp.base+"/infer", []byte(`{"prompt":"hi","force_adapter_ids":["ghost-v1"]}`))
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d, body=%s", resp.StatusCode, string(body))
	}
}
