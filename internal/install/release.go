package install

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

// ReleaseAsset is a downloadable file attached to a release.
type ReleaseAsset struct {
	Name        string `json:"name"`
	DownloadURL string `json:"browser_download_url"`
}

// ReleaseDescriptor describes a published elm-analyzer release.
type ReleaseDescriptor struct {
	Tag    string         `json:"tag_name"`
	Assets []ReleaseAsset `json:"assets"`
}

// FetchLatestRelease fetches release metadata from endpoint. Network
// errors propagate as-is; a body that is not the expected JSON shape is
// wrapped into a parse error. There is no retry.
func FetchLatestRelease(ctx context.Context, client *http.Client, endpoint string) (*ReleaseDescriptor, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if resp != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		return nil, errors.Wrapf(err, "%s", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("%s: unexpected status %v", endpoint, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read body of %s", endpoint)
	}

	var rel ReleaseDescriptor
	if err := json.Unmarshal(body, &rel); err != nil {
		return nil, errors.Wrapf(err, "failed to parse release metadata from %s", endpoint)
	}
	return &rel, nil
}
