package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

var (
	serverURL      = "http://127.0.0.1:9797"
	pollInterval   = time.Second
	ErrNoURL       = errors.New("no URL found in arguments")
	ErrServerError = errors.New("server returned error")
)

type options struct {
	url         string
	quality     string
	destination string
	server      string
	wait        bool
}

type downloadStatus struct {
	Current *taskStatus `json:"current"`
	Last    *struct {
		Task  *taskStatus `json:"task"`
		Error string      `json:"error"`
	} `json:"last"`
}

type taskStatus struct {
	URL        string  `json:"url"`
	Stage      string  `json:"stage"`
	Percent    float64 `json:"percent"`
	Status     string  `json:"status"`
	OutputPath string  `json:"outputPath"`
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes the client and returns the exit code
func run(args []string, out io.Writer) int {
	opts, err := parseArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}

	if err := submit(opts); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "queued %s\n", opts.url)

	if !opts.wait {
		return 0
	}

	task, err := waitFor(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		return 1
	}
	if task.Stage != "completed" {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", task.Status)
		return 1
	}
	fmt.Fprintln(out, task.OutputPath)
	return 0
}

func parseArgs(args []string) (*options, error) {
	fs := flag.NewFlagSet("ytdl-remote", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	opts := &options{}
	fs.StringVar(&opts.quality, "q", "", "quality")
	fs.StringVar(&opts.destination, "o", "", "destination directory on the server")
	fs.StringVar(&opts.server, "server", serverURL, "server address")
	fs.BoolVar(&opts.wait, "wait", false, "wait for the download to finish")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	for _, arg := range fs.Args() {
		if strings.HasPrefix(strings.ToLower(arg), "http") {
			opts.url = arg
			break
		}
	}
	if opts.url == "" {
		return nil, ErrNoURL
	}
	opts.server = strings.TrimSuffix(opts.server, "/")

	return opts, nil
}

// submit posts the download to the server
func submit(opts *options) error {
	body, err := json.Marshal(map[string]string{
		"url":         opts.url,
		"quality":     opts.quality,
		"destination": opts.destination,
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(opts.server+"/api/download", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("connection refused - is ytdl serve running? %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return serverError(resp)
	}
	return nil
}

// waitFor polls the status endpoint until the submitted download has finished
func waitFor(opts *options) (*taskStatus, error) {
	for {
		status, err := fetchStatus(opts.server)
		if err != nil {
			return nil, err
		}

		if status.Current == nil && status.Last != nil && status.Last.Task != nil && status.Last.Task.URL == opts.url {
			return status.Last.Task, nil
		}
		if status.Current == nil && status.Last != nil && status.Last.Task == nil && status.Last.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrServerError, status.Last.Error)
		}

		time.Sleep(pollInterval)
	}
}

func fetchStatus(server string) (*downloadStatus, error) {
	resp, err := http.Get(server + "/api/status")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, serverError(resp)
	}

	var status downloadStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &status, nil
}

func serverError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(resp.Body)
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return fmt.Errorf("%w: %s", ErrServerError, body.Error)
	}
	return fmt.Errorf("%w: %s", ErrServerError, strings.TrimSpace(string(data)))
}
