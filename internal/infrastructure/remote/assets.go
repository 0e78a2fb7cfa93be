package remote

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"SceneBroker/internal/domain"
	"SceneBroker/internal/ports"
)

// AssetIndexFetcher discovers a scene's component files from the HTML index
// page the remote storage publishes next to them.
type AssetIndexFetcher struct {
	client *http.Client
}

var _ ports.AssetSource = (*AssetIndexFetcher)(nil)

// NewAssetIndexFetcher wires an HTTP client; a nil client gets a timeout default.
func NewAssetIndexFetcher(client *http.Client) *AssetIndexFetcher {
	if client == nil {
		client = defaultClient()
	}
	return &AssetIndexFetcher{client: client}
}

// FetchAssets downloads <baseURL>/index.html and extracts one asset per file
// link. Navigation links (anchors, parent-directory entries, other pages) are
// ignored.
func (f *AssetIndexFetcher) FetchAssets(ctx context.Context, baseURL string) ([]domain.SceneAsset, error) {
	base := strings.TrimRight(baseURL, "/")
	indexURL := base + "/index.html"

	resp, err := get(ctx, f.client, indexURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.ParseError{Subject: indexURL, Err: err}
	}

	var assets []domain.SceneAsset
	seen := map[string]struct{}{}

	doc.Find("a[href]").Each(func(i int, link *goquery.Selection) {
		href, _ := link.Attr("href")
		name := assetName(href)
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}

		assets = append(assets, domain.SceneAsset{
			Name: name,
			URL:  base + "/" + name,
		})
	})

	return assets, nil
}

func assetName(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "?") {
		return ""
	}
	if strings.Contains(href, "://") {
		return ""
	}

	name := path.Base(href)
	switch name {
	case ".", "..", "/", "index.html":
		return ""
	}
	// Directory listings link files directly; anything without an extension
	// is navigation.
	if path.Ext(name) == "" {
		return ""
	}
	return name
}
