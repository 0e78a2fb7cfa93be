package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

const (
	mtlSuffix = "_MTL.txt"

	rollAngleKey    = "ROLL_ANGLE"
	sunElevationKey = "SUN_ELEVATION"
	sunAzimuthKey   = "SUN_AZIMUTH"
)

// MetadataFetcher retrieves and parses a scene's MTL metadata file.
type MetadataFetcher struct {
	client *http.Client
}

var _ ports.MetadataSource = (*MetadataFetcher)(nil)

// NewMetadataFetcher wires an HTTP client; a nil client gets a timeout default.
func NewMetadataFetcher(client *http.Client) *MetadataFetcher {
	if client == nil {
		client = defaultClient()
	}
	return &MetadataFetcher{client: client}
}

// FetchMetadata downloads <baseURL>/<sceneID>_MTL.txt and derives the fields
// the completion engine persists.
func (f *MetadataFetcher) FetchMetadata(ctx context.Context, baseURL, sceneID string) (domain.ParsedMetadata, error) {
	url := strings.TrimRight(baseURL, "/") + "/" + sceneID + mtlSuffix

	resp, err := get(ctx, f.client, url)
	if err != nil {
		return domain.ParsedMetadata{}, err
	}
	defer resp.Body.Close()

	fields, err := parseMTL(resp.Body)
	if err != nil {
		return domain.ParsedMetadata{}, &domain.ParseError{Subject: sceneID, Err: err}
	}

	roll, ok := fields[rollAngleKey]
	if !ok {
		return domain.ParsedMetadata{}, &domain.ParseError{
			Subject: sceneID,
			Err:     fmt.Errorf("missing %s", rollAngleKey),
		}
	}
	rollAngle, err := strconv.ParseFloat(roll, 64)
	if err != nil {
		return domain.ParsedMetadata{}, &domain.ParseError{
			Subject: sceneID,
			Err:     fmt.Errorf("%s: %w", rollAngleKey, err),
		}
	}

	meta := domain.ParsedMetadata{
		// The sensor points off nadir by the spacecraft roll; the sign only
		// encodes roll direction.
		OffNadirAngle: math.Abs(rollAngle),
	}
	if v, err := strconv.ParseFloat(fields[sunElevationKey], 64); err == nil {
		meta.SunElevation = v
	}
	if v, err := strconv.ParseFloat(fields[sunAzimuthKey], 64); err == nil {
		meta.SunAzimuth = v
	}

	return meta, nil
}

// parseMTL reads the KEY = VALUE object description language used by MTL
// files, flattening all groups into one key space. Group markers and the
// terminating END are structural and carry no data.
func parseMTL(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "END" {
			continue
		}

		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		key = strings.TrimSpace(key)
		if key == "GROUP" || key == "END_GROUP" {
			continue
		}

		value = strings.TrimSpace(value)
		value = strings.Trim(value, `"`)
		fields[key] = value
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metadata file: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("no metadata fields found")
	}

	return fields, nil
}
