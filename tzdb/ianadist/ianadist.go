// Package ianadist checks the IANA data server for new tzdb releases.
//
// Releases are published on the [IANA data server]. Clients are advised
// to store the [ETags] returned in this package and pass them to subsequent
// calls to avoid downloading the same archive multiple times.
//
// [ETags]: https://developer.mozilla.org/en-US/docs/Web/HTTP/Headers/ETag
// [IANA data server]: https://www.iana.org/time-zones
package ianadist

import (
	"archive/tar"
	"cmp"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultClient is the default client for the IANA data server. It is
// used by the top-level functions [LatestVersion] and [Download].
var DefaultClient = &Client{}

// Client talks to the IANA data server. The zero value is ready to use.
type Client struct {
	// HTTPClient is used for all requests. If nil, http.DefaultClient is
	// used.
	//
	// Tests use it to fake responses with a custom http.RoundTripper.
	// Timeouts are also controlled by the context passed to the methods.
	HTTPClient *http.Client
	// BaseURL replaces the address of the IANA data server if set.
	BaseURL string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		return http.DefaultClient
	}
	return c.HTTPClient
}

func (c *Client) baseURL() string {
	if c.BaseURL == "" {
		return baseURL
	}
	return c.BaseURL
}

const (
	// baseURL is the base URL for time zones on the IANA data server.
	baseURL = "https://data.iana.org/time-zones/"
	// latestDataPath is the path to the latest tzdata archive relative to
	// baseURL.
	latestDataPath = "tzdata-latest.tar.gz"
	// versionFilename is the name of the version file in the archive.
	versionFilename = "version"
	emptyEtag       = ""
)

// ErrNoVersion is returned for archives without a version file.
var ErrNoVersion = errors.New("ianadist: no version found")

// ReadVersion returns the content of the version file of a gzip-compressed
// tar archive as found at https://data.iana.org/time-zones/releases/.
func ReadVersion(r io.Reader) (string, error) {
	gunzip, err := gzip.NewReader(r)
	if err != nil {
		return "", fmt.Errorf("read gzip: %w", err)
	}
	tr := tar.NewReader(gunzip)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return "", ErrNoVersion
		}
		if err != nil {
			return "", err
		}
		if header.Name != versionFilename {
			continue
		}
		b, err := io.ReadAll(tr)
		if err != nil {
			return "", fmt.Errorf("read version file: %w", err)
		}
		v := strings.TrimSpace(string(b))
		if v == "" {
			return "", fmt.Errorf("empty version file")
		}
		return v, nil
	}
}

// LatestVersion returns the version of the latest release.
//
// If the server responds with 304 Not Modified, the returned version is
// empty and the returned ETag is the input.
//
// LatestVersion is a wrapper around DefaultClient.LatestVersion.
func LatestVersion(ctx context.Context, etag string) (string, string, error) {
	return DefaultClient.LatestVersion(ctx, etag)
}

// LatestVersion returns the version of the latest release.
//
// If the server responds with 304 Not Modified, the returned version is
// empty and the returned ETag is the input. If an error is returned, the
// returned ETag is empty.
func (c *Client) LatestVersion(ctx context.Context, etag string) (string, string, error) {
	r, newEtag, err := c.Download(ctx, latestDataPath, etag)
	if err != nil {
		return "", emptyEtag, err
	}
	if r == nil {
		return "", etag, nil // Not modified.
	}
	defer func() {
		// Drain and close the response body so the connection can be
		// reused.
		_, _ = io.Copy(io.Discard, r)
		_ = r.Close()
	}()

	version, err := ReadVersion(r)
	if err != nil {
		return "", emptyEtag, err
	}
	return version, newEtag, nil
}

// Download is a wrapper around DefaultClient.Download.
func Download(ctx context.Context, path, etag string) (io.ReadCloser, string, error) {
	return DefaultClient.Download(ctx, path, etag)
}

// Download downloads the resource at path from the data server.
//
// The returned ETag is the ETag of the downloaded resource. If the server
// responds with a 304 Not Modified status code, the returned ETag is the same
// as the input and the returned io.ReadCloser and error are both nil.
//
// If no error is returned, the returned io.ReadCloser is a [http.Response.Body]
// and needs to be read fully and closed by the caller.
//
// An error is returned for HTTP status codes other than 200 OK and 304 Not Modified.
func (c *Client) Download(ctx context.Context, path, etag string) (io.ReadCloser, string, error) {
	u, err := url.JoinPath(c.baseURL(), path)
	if err != nil {
		return nil, emptyEtag, fmt.Errorf("join URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, emptyEtag, fmt.Errorf("create request for %q: %w", u, err)
	}
	if etag != emptyEtag {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, emptyEtag, fmt.Errorf("GET %q: %w", u, err)
	}
	if resp.StatusCode != http.StatusOK {
		// Drain and close the response body to reuse the connection.
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusNotModified {
			return nil, etag, nil
		}
		return nil, emptyEtag, fmt.Errorf("response for %q: unexpected status: %s", u, resp.Status)
	}

	// Caller must take care of closing the response body.
	return resp.Body, resp.Header.Get("etag"), nil
}

// CompareVersions orders tzdb release names such as "2023c" and "2024a":
// by year, then by the letter suffix, where "z" sorts before "za". It
// returns an error if either version is malformed.
func CompareVersions(a, b string) (int, error) {
	ay, as, err := splitVersion(a)
	if err != nil {
		return 0, err
	}
	by, bs, err := splitVersion(b)
	if err != nil {
		return 0, err
	}
	if c := cmp.Compare(ay, by); c != 0 {
		return c, nil
	}
	if c := cmp.Compare(len(as), len(bs)); c != 0 {
		return c, nil
	}
	return strings.Compare(as, bs), nil
}

func splitVersion(v string) (int, string, error) {
	if len(v) < 5 {
		return 0, "", fmt.Errorf("invalid tzdb version %q", v)
	}
	year, err := strconv.Atoi(v[:4])
	if err != nil {
		return 0, "", fmt.Errorf("invalid tzdb version %q", v)
	}
	suffix := v[4:]
	for _, c := range suffix {
		if c < 'a' || c > 'z' {
			return 0, "", fmt.Errorf("invalid tzdb version %q", v)
		}
	}
	return year, suffix, nil
}
