package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/buildflow/internal/orchestrator"
)

// adminClient talks to the daemon's admin API.
type adminClient struct {
	base string
	http *http.Client
}

func newAdminClient() *adminClient {
	return &adminClient{
		base: strings.TrimRight(CLI.Server, "/"),
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *adminClient) post(path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	resp, err := c.http.Post(c.base+path, "application/json", reader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func (c *adminClient) get(path string, out any) error {
	resp, err := c.http.Get(c.base + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s: %s", resp.Status, apiErr.Error)
		}
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func clientSubmit() error {
	job := orchestrator.Job{
		Key:          CLI.Submit.Key,
		Priority:     CLI.Submit.Priority,
		Params:       CLI.Submit.Param,
		Dependencies: CLI.Submit.Dep,
	}

	var result struct {
		Accepted int `json:"accepted"`
	}
	if err := newAdminClient().post("/api/jobs", map[string]any{"jobs": []orchestrator.Job{job}}, &result); err != nil {
		return err
	}

	fmt.Printf("submitted %s\n", job.Key)
	return nil
}

func clientStatus() error {
	var snap orchestrator.Snapshot
	if err := newAdminClient().get("/api/status", &snap); err != nil {
		return err
	}

	if CLI.Status.JSON {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	fmt.Printf("mode:        %s\n", snap.Mode)
	fmt.Printf("queued:      %d\n", snap.QueueLength)
	fmt.Printf("active:      %d\n", snap.ActiveCount)
	fmt.Printf("concurrency: %d\n", snap.ConcurrencyLimit)
	return nil
}

func clientSignal(name string) error {
	if err := newAdminClient().post("/api/"+name, nil, nil); err != nil {
		return err
	}
	fmt.Println(name + " accepted")
	return nil
}

func clientConcurrency() error {
	limit := CLI.Concurrency.Limit
	if err := newAdminClient().post("/api/concurrency", map[string]int{"limit": limit}, nil); err != nil {
		return err
	}
	fmt.Printf("concurrency limit set to %d\n", limit)
	return nil
}
