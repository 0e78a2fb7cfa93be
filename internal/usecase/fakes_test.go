package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"SceneBroker/internal/domain"
)

// fakeListing replays a fixed set of listing rows, imitating the streaming
// CSV source.
type fakeListing struct {
	entries []domain.RemoteSceneListing
	rowErrs []error // interleaved after the valid entries
	bulkErr error
}

func (f *fakeListing) FetchListing(ctx context.Context) (domain.ListingSeq, error) {
	if f.bulkErr != nil {
		return nil, f.bulkErr
	}

	return func(yield func(domain.RemoteSceneListing, error) bool) {
		for _, entry := range f.entries {
			if !yield(entry, nil) {
				return
			}
		}
		for _, rowErr := range f.rowErrs {
			if !yield(domain.RemoteSceneListing{}, rowErr) {
				return
			}
		}
	}, nil
}

// fakeMetadata serves per-scene metadata from a map and counts fetches so
// tests can assert claim exclusivity.
type fakeMetadata struct {
	mu    sync.Mutex
	metas map[string]domain.ParsedMetadata
	errs  map[string]error
	calls map[string]int
	delay time.Duration
	block chan struct{} // when set, every fetch waits for the channel
	began chan struct{} // when set, signaled once per fetch start
}

func newFakeMetadata() *fakeMetadata {
	return &fakeMetadata{
		metas: map[string]domain.ParsedMetadata{},
		errs:  map[string]error{},
		calls: map[string]int{},
	}
}

func (f *fakeMetadata) FetchMetadata(ctx context.Context, baseURL, sceneID string) (domain.ParsedMetadata, error) {
	f.mu.Lock()
	f.calls[sceneID]++
	f.mu.Unlock()

	if f.began != nil {
		f.began <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.errs[sceneID]; ok {
		return domain.ParsedMetadata{}, err
	}
	if meta, ok := f.metas[sceneID]; ok {
		return meta, nil
	}
	return domain.ParsedMetadata{}, errors.New("unknown scene")
}

func (f *fakeMetadata) callCount(sceneID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[sceneID]
}

// fakeAlerts records pass-level failure notifications.
type fakeAlerts struct {
	mu     sync.Mutex
	phases []string
}

func (f *fakeAlerts) PassFailed(ctx context.Context, phase string, err error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.phases = append(f.phases, phase)
	return nil
}

func (f *fakeAlerts) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.phases)
}

func testFootprint() orb.Polygon {
	return orb.Polygon{orb.Ring{
		{87.76, 24.28}, {90.13, 24.28}, {90.13, 26.42}, {87.76, 26.42}, {87.76, 24.28},
	}}
}

func listingEntry(sceneID string, day int) domain.RemoteSceneListing {
	return domain.RemoteSceneListing{
		SceneID:       sceneID,
		SourceType:    "landsat",
		CaptureDate:   time.Date(2017, time.April, day, 5, 36, 0, 0, time.UTC),
		CloudCover:    0.2,
		Footprint:     testFootprint(),
		SourceBaseURL: "https://host/c1/L8/139/045/" + sceneID,
	}
}

func partialRecord(sceneID string, day int) domain.SceneRecord {
	rec := listingEntry(sceneID, day).Record()
	return rec
}
