package export

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang/glog"

	"github.com/hb9tf/sweeper/metrics"
	"github.com/hb9tf/sweeper/sdr"
)

const (
	contentType             = "application/json"
	CollectEndpoint         = "/spectre/v1/collect"
	defaultSendSampleAmount = 100
)

// CollectResponse is what the collect endpoint answers.
type CollectResponse struct {
	Status      string `json:"status"`
	SampleCount int    `json:"sampleCount"`
}

// SpectreServer posts samples in batches to a collection server.
type SpectreServer struct {
	Server            string
	SendSamplesAmount int
	Client            *http.Client
	Metrics           *metrics.Metrics
}

func (s *SpectreServer) Write(ctx context.Context, samples <-chan sdr.Sample) error {
	sendSamplesAmount := defaultSendSampleAmount
	if s.SendSamplesAmount > 0 {
		sendSamplesAmount = s.SendSamplesAmount
	}
	cnt := &counts{name: "spectre", metrics: s.Metrics}

	var samplesToSend []sdr.Sample
	send := func() {
		if len(samplesToSend) == 0 {
			return
		}
		n, err := s.post(ctx, samplesToSend)
		if err != nil {
			glog.Warningf("error submitting %d samples: %s\n", len(samplesToSend), err)
			cnt.add(len(samplesToSend), false)
		} else {
			glog.V(1).Infof("submitted %d samples to server %s\n", n, s.Server)
			cnt.add(len(samplesToSend), true)
		}
		samplesToSend = nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sample, ok := <-samples:
			if !ok {
				send()
				return nil
			}
			samplesToSend = append(samplesToSend, sample)
			if len(samplesToSend) >= sendSamplesAmount {
				send()
			}
		}
	}
}

func (s *SpectreServer) post(ctx context.Context, batch []sdr.Sample) (int, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return 0, fmt.Errorf("unable to marshal samples: %w", err)
	}
	url := strings.TrimRight(s.Server, "/") + CollectEndpoint
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", contentType)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("unable to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("server answered %s: %s", resp.Status, strings.TrimSpace(string(respBody)))
	}
	collectResponseBody := CollectResponse{}
	if err := json.Unmarshal(respBody, &collectResponseBody); err != nil {
		return 0, fmt.Errorf("unable to parse response: %w", err)
	}
	return collectResponseBody.SampleCount, nil
}
