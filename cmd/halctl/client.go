package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

// Client sends requests to a running HAL server.
type Client struct {
	baseURL string
	http    *http.Client
}

// newClient builds a Client from the --server flag, falling back to the
// HALCTL_SERVER env var and finally defaultServer, mirroring the teacher's
// newGatewayClient flag/env/default resolution order.
func newClient(cmd *cobra.Command) (*Client, error) {
	server, _ := cmd.Flags().GetString("server")
	if server == "" {
		server = os.Getenv("HALCTL_SERVER")
	}
	if server == "" {
		server = defaultServer
	}
	return &Client{baseURL: server, http: &http.Client{}}, nil
}

func (c *Client) get(path string, out interface{}) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func (c *Client) post(path string, body, out interface{}) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return err
	}
	req, err := http.NewRequest("POST", c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decode(resp, out)
}

func decode(resp *http.Response, out interface{}) error {
	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		var errResp struct {
			Code    string `json:"error_code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			return fmt.Errorf("%s: %s", errResp.Code, errResp.Message)
		}
		return fmt.Errorf("hal error %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}
