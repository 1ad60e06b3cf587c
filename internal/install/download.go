package install

import (
	"context"
	"io"
	"net/http"
	"os"

	"github.com/pkg/errors"
)

// maxRedirects bounds the 301/302 chain followed during a binary
// download. GitHub asset downloads redirect once or twice; anything
// beyond this is a misconfigured or malicious endpoint.
const maxRedirects = 10

// ErrTooManyRedirects is returned when a download chains through more
// than maxRedirects redirects.
var ErrTooManyRedirects = errors.New("too many redirects")

// download streams the body at url to dest, following 301/302 redirects
// by re-issuing the request against the Location header. A non-200
// terminal status is an error. A partially written dest is removed on
// failure. When executable is set, the executable permission bits are
// set on dest after a successful write.
func download(ctx context.Context, client *http.Client, url, dest string, executable bool) error {
	// Redirects are followed here rather than by the client so the
	// chain length can be bounded and reported.
	noRedirect := *client
	noRedirect.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	for redirects := 0; ; redirects++ {
		if redirects > maxRedirects {
			return errors.Wrapf(ErrTooManyRedirects, "downloading %s", url)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", userAgent)

		resp, err := noRedirect.Do(req)
		if err != nil {
			return errors.Wrapf(err, "failed to download %s", url)
		}

		switch resp.StatusCode {
		case http.StatusMovedPermanently, http.StatusFound:
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			if loc == "" {
				return errors.Errorf("redirect from %s carries no Location", url)
			}
			url = loc
			continue
		case http.StatusOK:
			err := writeBody(resp.Body, dest, executable)
			resp.Body.Close()
			return err
		default:
			resp.Body.Close()
			return errors.Errorf("download of %s failed: %v", url, resp.Status)
		}
	}
}

func writeBody(body io.Reader, dest string, executable bool) error {
	f, err := os.Create(dest)
	if err != nil {
		return errors.Wrap(err, "failed to create binary file")
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		os.Remove(dest)
		return errors.Wrapf(err, "failed to write %s", dest)
	}
	if err := f.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	if executable {
		if err := os.Chmod(dest, binaryPerms); err != nil {
			return errors.Wrapf(err, "failed to mark %s executable", dest)
		}
	}
	return nil
}
