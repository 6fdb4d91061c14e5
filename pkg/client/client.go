package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/corralhq/corral/pkg/api"
	"github.com/corralhq/corral/pkg/types"
)

// Client is the REST client the CLI uses against the API surface. It is a
// pure consumer: no scheduling or lifecycle logic lives here.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at addr (host:port or URL).
func NewClient(addr string) *Client {
	baseURL := addr
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError is a failure reported by the server.
type apiError struct {
	Status  int
	Kind    string
	Message string
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	e, ok := err.(*apiError)
	return ok && e.Status == http.StatusNotFound
}

// IsConflict reports whether err is a 409 from the server.
func IsConflict(err error) bool {
	e, ok := err.(*apiError)
	return ok && e.Status == http.StatusConflict
}

func (c *Client) do(method, path string, body any, out any, headers map[string]string) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		var envelope struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if data, rerr := io.ReadAll(resp.Body); rerr == nil {
			if jerr := json.Unmarshal(data, &envelope); jerr == nil {
				apiErr.Kind = envelope.Error
				apiErr.Message = envelope.Message
			}
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func revisionHeader(expectedRevision uint64) map[string]string {
	if expectedRevision == 0 {
		return nil
	}
	return map[string]string{"If-Match": strconv.FormatUint(expectedRevision, 10)}
}

// CreateNode provisions a node with the given capacity.
func (c *Client) CreateNode(cpuCores int, memoryBytes int64) (*types.Node, error) {
	var node types.Node
	err := c.do(http.MethodPost, "/v1/nodes", api.CreateNodeRequest{
		CPUCores:    cpuCores,
		MemoryBytes: memoryBytes,
	}, &node, nil)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// ListNodes returns every node.
func (c *Client) ListNodes() ([]*types.Node, error) {
	var nodeList []*types.Node
	if err := c.do(http.MethodGet, "/v1/nodes", nil, &nodeList, nil); err != nil {
		return nil, err
	}
	return nodeList, nil
}

// GetNode returns one node by ID.
func (c *Client) GetNode(id string) (*types.Node, error) {
	var node types.Node
	if err := c.do(http.MethodGet, "/v1/nodes/"+id, nil, &node, nil); err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteNode terminates a node. A non-zero expectedRevision makes the
// delete conditional.
func (c *Client) DeleteNode(id string, expectedRevision uint64) error {
	return c.do(http.MethodDelete, "/v1/nodes/"+id, nil, nil, revisionHeader(expectedRevision))
}

// Heartbeat records a heartbeat for a node.
func (c *Client) Heartbeat(id string) error {
	return c.do(http.MethodPost, "/v1/nodes/"+id+"/heartbeat", nil, nil, nil)
}

// CreateWorkload submits a workload.
func (c *Client) CreateWorkload(name string, cpuCores int, memoryBytes int64) (*types.Workload, error) {
	var workload types.Workload
	err := c.do(http.MethodPost, "/v1/workloads", api.CreateWorkloadRequest{
		Name:        name,
		CPUCores:    cpuCores,
		MemoryBytes: memoryBytes,
	}, &workload, nil)
	if err != nil {
		return nil, err
	}
	return &workload, nil
}

// ListWorkloads returns every workload.
func (c *Client) ListWorkloads() ([]*types.Workload, error) {
	var workloads []*types.Workload
	if err := c.do(http.MethodGet, "/v1/workloads", nil, &workloads, nil); err != nil {
		return nil, err
	}
	return workloads, nil
}

// GetWorkload returns one workload by ID.
func (c *Client) GetWorkload(id string) (*types.Workload, error) {
	var workload types.Workload
	if err := c.do(http.MethodGet, "/v1/workloads/"+id, nil, &workload, nil); err != nil {
		return nil, err
	}
	return &workload, nil
}

// DeleteWorkload terminates and removes a workload.
func (c *Client) DeleteWorkload(id string, expectedRevision uint64) error {
	return c.do(http.MethodDelete, "/v1/workloads/"+id, nil, nil, revisionHeader(expectedRevision))
}

// ResubmitWorkload clones a Failed workload into a fresh Pending one.
func (c *Client) ResubmitWorkload(id string) (*types.Workload, error) {
	var workload types.Workload
	if err := c.do(http.MethodPost, "/v1/workloads/"+id+"/resubmit", nil, &workload, nil); err != nil {
		return nil, err
	}
	return &workload, nil
}

// ClusterStatus returns the cluster-wide status view.
func (c *Client) ClusterStatus() (*types.ClusterStatus, error) {
	var status types.ClusterStatus
	if err := c.do(http.MethodGet, "/v1/status", nil, &status, nil); err != nil {
		return nil, err
	}
	return &status, nil
}
