package consumer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/printdeck/fulfillment/internal/logging"
	"github.com/printdeck/fulfillment/internal/metrics"
)

// StartBacklogMonitor polls nsqd's stats endpoint and exports the depth of
// the watched fulfillment topics. Stops when the returned func is called.
func StartBacklogMonitor(nsqdHTTPAddr string, topics []string, interval time.Duration) func() {
	stop := make(chan struct{})
	go func() {
		log := logging.New("fulfillment-monitor")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		client := &http.Client{Timeout: 5 * time.Second}
		watched := make(map[string]bool, len(topics))
		for _, t := range topics {
			watched[t] = true
		}

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
			}

			resp, err := client.Get(fmt.Sprintf("http://%s/stats?format=json", nsqdHTTPAddr))
			if err != nil {
				log.Plain().WithError(err).Error("failed to get NSQ stats")
				continue
			}

			var stats struct {
				Topics []struct {
					Name     string `json:"topic_name"`
					Channels []struct {
						Name  string `json:"channel_name"`
						Depth int64  `json:"depth"`
					} `json:"channels"`
				} `json:"topics"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
				resp.Body.Close()
				log.Plain().WithError(err).Error("failed to decode NSQ stats")
				continue
			}
			resp.Body.Close()

			for _, topic := range stats.Topics {
				if !watched[topic.Name] {
					continue
				}
				for _, channel := range topic.Channels {
					metrics.UpdateQueueDepth(topic.Name, channel.Name, float64(channel.Depth))
				}
			}
		}
	}()
	return func() { close(stop) }
}
