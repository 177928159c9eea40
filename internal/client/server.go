package client

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/fivetwenty-io/masto/internal/http"
	"github.com/fivetwenty-io/masto/pkg/masto"
)

const serverInfoKeyPrefix = "server-info:"

// negotiate learns the server's API version, software and streaming URL.
// An explicit ServerVersion skips the network entirely.
func negotiate(ctx context.Context, config *masto.Config, httpClient *http.Client) (masto.ServerInfo, error) {
	if config.ServerVersion != "" {
		software := config.ServerSoftware
		if software == "" {
			software = "mastodon"
		}

		return masto.ServerInfo{
			Software:        software,
			SoftwareVersion: config.ServerVersion,
			Version:         config.ServerVersion,
			StreamingURL:    streamingURL(config, ""),
		}, nil
	}

	key := serverInfoKeyPrefix + strings.TrimSuffix(config.URL, "/")

	if info, ok := cachedServerInfo(ctx, config.Cache, key); ok {
		if config.StreamingURL != "" {
			info.StreamingURL = config.StreamingURL
		}

		return info, nil
	}

	rawVersion, advertised, err := fetchInstanceVersion(ctx, httpClient)
	if err != nil {
		return masto.ServerInfo{}, err
	}

	software, softwareVersion, apiVersion := masto.DetectSoftware(rawVersion)
	if config.ServerSoftware != "" {
		software = config.ServerSoftware
	}

	info := masto.ServerInfo{
		Software:        software,
		SoftwareVersion: softwareVersion,
		Version:         apiVersion,
		StreamingURL:    streamingURL(config, advertised),
	}

	storeServerInfo(ctx, config, key, info)

	return info, nil
}

// fetchInstanceVersion tries /api/v2/instance and falls back to v1 on
// servers that predate it.
func fetchInstanceVersion(ctx context.Context, httpClient *http.Client) (string, string, error) {
	v2, err := http.GetJSON[masto.InstanceV2](ctx, httpClient, "/api/v2/instance", nil)
	if err == nil {
		return v2.Version, v2.Configuration.URLs.Streaming, nil
	}

	if !masto.IsNotFound(err) {
		return "", "", err
	}

	v1, err := http.GetJSON[masto.Instance](ctx, httpClient, "/api/v1/instance", nil)
	if err != nil {
		return "", "", err
	}

	return v1.Version, v1.URLs.StreamingAPI, nil
}

// streamingURL prefers the configured URL, then the advertised one, then the
// instance itself. Advertised wss:// URLs are normalised to https://.
func streamingURL(config *masto.Config, advertised string) string {
	switch {
	case config.StreamingURL != "":
		return config.StreamingURL
	case advertised != "":
		advertised = strings.Replace(advertised, "wss://", "https://", 1)

		return strings.Replace(advertised, "ws://", "http://", 1)
	default:
		return config.URL
	}
}

func cachedServerInfo(ctx context.Context, cache masto.Cache, key string) (masto.ServerInfo, bool) {
	if cache == nil {
		return masto.ServerInfo{}, false
	}

	entry, err := cache.Get(ctx, key)
	if err != nil || entry.Expired(time.Now()) {
		return masto.ServerInfo{}, false
	}

	var info masto.ServerInfo

	err = json.Unmarshal(entry.Data, &info)
	if err != nil || info.Version == "" {
		return masto.ServerInfo{}, false
	}

	return info, true
}

func storeServerInfo(ctx context.Context, config *masto.Config, key string, info masto.ServerInfo) {
	if config.Cache == nil {
		return
	}

	data, err := json.Marshal(info)
	if err != nil {
		return
	}

	err = config.Cache.Set(ctx, key, &masto.CacheEntry{Data: data, ExpiresAt: time.Now().Add(serverInfoTTL(config))})
	if err != nil {
		masto.LoggerOrNop(config.Logger).Warn("failed to cache server info", map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		})
	}
}
