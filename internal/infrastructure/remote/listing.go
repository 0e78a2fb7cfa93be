package remote

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

// ListingFetcher streams the remote bulk listing CSV into scene listing rows.
type ListingFetcher struct {
	client     *http.Client
	listingURL string
	sourceType string
}

var _ ports.ListingSource = (*ListingFetcher)(nil)

// NewListingFetcher wires an HTTP client; a nil client gets a timeout default.
func NewListingFetcher(client *http.Client, listingURL, sourceType string) *ListingFetcher {
	if client == nil {
		client = defaultClient()
	}
	return &ListingFetcher{client: client, listingURL: listingURL, sourceType: sourceType}
}

// listingRow mirrors one line of the bulk listing document. Cloud cover
// arrives as a percentage; corner coordinates describe the footprint.
type listingRow struct {
	ProductID       string  `csv:"productId"`
	AcquisitionDate string  `csv:"acquisitionDate"`
	CloudCover      float64 `csv:"cloudCover"`
	MinLat          float64 `csv:"min_lat"`
	MinLon          float64 `csv:"min_lon"`
	MaxLat          float64 `csv:"max_lat"`
	MaxLon          float64 `csv:"max_lon"`
	DownloadURL     string  `csv:"download_url"`
}

// FetchListing issues a fresh GET per call, so the returned sequence is
// restartable. The sequence owns the response body and closes it when the
// consumer stops or the rows run out.
func (f *ListingFetcher) FetchListing(ctx context.Context) (domain.ListingSeq, error) {
	resp, err := get(ctx, f.client, f.listingURL)
	if err != nil {
		return nil, err
	}

	body := io.ReadCloser(resp.Body)
	reader := io.Reader(body)
	var gz *gzip.Reader
	if strings.HasSuffix(f.listingURL, ".gz") || resp.Header.Get("Content-Type") == "application/gzip" {
		var err error
		gz, err = gzip.NewReader(body)
		if err != nil {
			_ = body.Close()
			return nil, &domain.FetchError{URL: f.listingURL, Err: fmt.Errorf("gzip: %w", err)}
		}
		reader = gz
	}

	dec, err := csvutil.NewDecoder(csv.NewReader(reader))
	if err != nil {
		_ = body.Close()
		return nil, &domain.FetchError{URL: f.listingURL, Err: fmt.Errorf("listing header: %w", err)}
	}

	seq := func(yield func(domain.RemoteSceneListing, error) bool) {
		defer body.Close()
		if gz != nil {
			defer gz.Close()
		}
		for {
			var row listingRow
			err := dec.Decode(&row)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				parseErr := &domain.ParseError{Subject: "listing row", Err: err}
				if !yield(domain.RemoteSceneListing{}, parseErr) {
					return
				}
				continue
			}

			entry, convErr := row.toListing(f.sourceType)
			if !yield(entry, convErr) {
				return
			}
		}
	}

	return seq, nil
}

var acquisitionLayouts = []string{
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r listingRow) toListing(sourceType string) (domain.RemoteSceneListing, error) {
	if r.ProductID == "" {
		return domain.RemoteSceneListing{}, &domain.ParseError{
			Subject: "listing row",
			Err:     errors.New("empty productId"),
		}
	}

	captured, err := parseAcquisitionDate(r.AcquisitionDate)
	if err != nil {
		return domain.RemoteSceneListing{}, &domain.ParseError{Subject: r.ProductID, Err: err}
	}

	baseURL, err := sceneBaseURL(r.DownloadURL)
	if err != nil {
		return domain.RemoteSceneListing{}, &domain.ParseError{Subject: r.ProductID, Err: err}
	}

	footprint, err := cornerFootprint(r.ProductID, r.MinLon, r.MinLat, r.MaxLon, r.MaxLat)
	if err != nil {
		return domain.RemoteSceneListing{}, err
	}

	cloud := r.CloudCover / 100
	if cloud < 0 {
		cloud = 0
	}
	if cloud > 1 {
		cloud = 1
	}

	return domain.RemoteSceneListing{
		SceneID:       r.ProductID,
		SourceType:    sourceType,
		CaptureDate:   captured,
		CloudCover:    cloud,
		Footprint:     footprint,
		SourceBaseURL: baseURL,
	}, nil
}

func parseAcquisitionDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range acquisitionLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized acquisition date %q", value)
}

// sceneBaseURL reduces the listing's download link (usually the scene's
// index.html) to the directory that hosts all of the scene's files.
func sceneBaseURL(downloadURL string) (string, error) {
	trimmed := strings.TrimSuffix(downloadURL, "/index.html")
	trimmed = strings.TrimRight(trimmed, "/")
	if trimmed == "" {
		return "", errors.New("empty download_url")
	}
	return trimmed, nil
}

// cornerFootprint builds the closed bounding ring from the listing's corner
// coordinates. Degenerate or out-of-range corners are a GeometryError.
func cornerFootprint(sceneID string, minLon, minLat, maxLon, maxLat float64) (orb.Polygon, error) {
	switch {
	case minLon < -180 || maxLon > 180 || minLat < -90 || maxLat > 90:
		return nil, &domain.GeometryError{SceneID: sceneID, Reason: "corner coordinates out of range"}
	case minLon >= maxLon || minLat >= maxLat:
		return nil, &domain.GeometryError{SceneID: sceneID, Reason: "degenerate corner coordinates"}
	}

	ring := orb.Ring{
		{minLon, minLat},
		{maxLon, minLat},
		{maxLon, maxLat},
		{minLon, maxLat},
		{minLon, minLat},
	}
	return orb.Polygon{ring}, nil
}
