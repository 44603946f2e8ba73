package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/tabsdata/tabsdata-server/internal/pkg/httpx"
)

type client struct {
	base string
	user string
	http *http.Client
}

func newClient() *client {
	return &client{
		base: strings.TrimRight(viper.GetString("server"), "/"),
		user: viper.GetString("user"),
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"error"`
}

func (e *apiError) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Message) }

func (c *client) do(method, path string, query url.Values, body interface{}, out interface{}) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	var bodyBytes []byte
	if reader != nil {
		bodyBytes, _ = io.ReadAll(reader)
	}

	var resp *http.Response
	var data []byte
	backoff := time.Second
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequest(method, u, bytes.NewReader(bodyBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-Id", c.user)

		resp, err = c.http.Do(req)
		if err != nil {
			if attempt < 2 && httpx.IsRetryableError(err) {
				time.Sleep(httpx.Jitter(backoff))
				backoff *= 2
				continue
			}
			return err
		}
		data, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return err
		}
		if attempt < 2 && httpx.IsRetryableStatus(resp.StatusCode) {
			time.Sleep(httpx.Jitter(httpx.RetryAfter(resp, backoff, 10*time.Second)))
			backoff *= 2
			continue
		}
		break
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Kind != "" {
			return &apiErr
		}
		return fmt.Errorf("server returned %s", resp.Status)
	}
	if out != nil && len(data) > 0 {
		return json.Unmarshal(data, out)
	}
	return nil
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
