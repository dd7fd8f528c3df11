package classify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bleemesser/icloudimport/media"
)

type fakeLibrary struct {
	calls     []string
	results   map[string]media.MatchResult
	queryErr  error
	assignErr error
	failPaths map[string]bool
}

func newFakeLibrary() *fakeLibrary {
	return &fakeLibrary{results: map[string]media.MatchResult{}, failPaths: map[string]bool{}}
}

func (f *fakeLibrary) EnsureAlbum(_ context.Context, name string) error {
	f.calls = append(f.calls, "ensure:"+name)
	return nil
}

func (f *fakeLibrary) AssignToAlbum(_ context.Context, stem, album string) error {
	f.calls = append(f.calls, "assign:"+stem+":"+album)
	return f.assignErr
}

func (f *fakeLibrary) Query(_ context.Context, stem string) (media.MatchResult, error) {
	f.calls = append(f.calls, "query:"+stem)
	if f.queryErr != nil {
		return media.NotFound, f.queryErr
	}
	return f.results[stem], nil
}

func (f *fakeLibrary) ImportSingle(_ context.Context, path, album string) bool {
	f.calls = append(f.calls, "importSingle:"+filepath.Base(path)+":"+album)
	if f.failPaths[filepath.Base(path)] {
		return false
	}
	return os.Remove(path) == nil
}

func (f *fakeLibrary) ImportPair(_ context.Context, still, video, album string) bool {
	f.calls = append(f.calls, "importPair:"+filepath.Base(still)+"+"+filepath.Base(video)+":"+album)
	if f.failPaths[filepath.Base(still)] {
		return false
	}
	return os.Remove(still) == nil && os.Remove(video) == nil
}

func (f *fakeLibrary) count(prefix string) int {
	n := 0
	for _, call := range f.calls {
		if strings.HasPrefix(call, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeLibrary) index(call string) int {
	for i, c := range f.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeTagger struct {
	images   map[string]media.ContentIdentifier
	videos   map[string]media.ContentIdentifier
	imageErr error
	videoErr error
}

func newFakeTagger() *fakeTagger {
	return &fakeTagger{images: map[string]media.ContentIdentifier{}, videos: map[string]media.ContentIdentifier{}}
}

// TagImage leaves a backup behind the way exiftool does.
func (f *fakeTagger) TagImage(_ context.Context, path, _ string, id media.ContentIdentifier) error {
	if f.imageErr != nil {
		return f.imageErr
	}
	f.images[filepath.Base(path)] = id
	return os.WriteFile(path+"_original", []byte("backup"), 0o644)
}

func (f *fakeTagger) TagVideo(_ context.Context, path string, id media.ContentIdentifier) error {
	if f.videoErr != nil {
		return f.videoErr
	}
	f.videos[filepath.Base(path)] = id
	return nil
}

func seed(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	}
	return dir
}

func newEngine(t *testing.T, lib Library, tagger Tagger, check bool, ids ...media.ContentIdentifier) (*Engine, *int) {
	t.Helper()
	minted := 0
	engine, err := New(lib, tagger, Options{
		CheckLibrary:  check,
		ReferenceFile: "q.JPG",
		NewIdentifier: func() media.ContentIdentifier {
			minted++
			if len(ids) >= minted {
				return ids[minted-1]
			}
			return media.NewContentIdentifier()
		},
	})
	require.NoError(t, err)
	return engine, &minted
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(nil, newFakeTagger(), Options{})
	assert.Error(t, err)
	_, err = New(newFakeLibrary(), nil, Options{})
	assert.Error(t, err)
}

func TestQueryCountFollowsCheckLibrary(t *testing.T) {
	names := []string{"a.jpg", "b.JPEG", "c.png", "d.HEIC"}

	lib := newFakeLibrary()
	engine, _ := newEngine(t, lib, newFakeTagger(), true)
	_, err := engine.Run(context.Background(), seed(t, names...))
	require.NoError(t, err)
	for _, name := range names {
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		assert.Equal(t, 1, lib.count("query:"+stem), stem)
	}

	lib = newFakeLibrary()
	engine, _ = newEngine(t, lib, newFakeTagger(), false)
	_, err = engine.Run(context.Background(), seed(t, names...))
	require.NoError(t, err)
	assert.Zero(t, lib.count("query:"))
}

func TestLivePhotoPairWithoutLibraryCheck(t *testing.T) {
	dir := seed(t, "IMG_01.HEIC", "IMG_01.mp4")
	lib := newFakeLibrary()
	tagger := newFakeTagger()
	engine, minted := newEngine(t, lib, tagger, false, "AAAA-0001")

	outcomes, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, *minted)
	assert.Equal(t, media.ContentIdentifier("AAAA-0001"), tagger.images["IMG_01.HEIC"])
	assert.Equal(t, media.ContentIdentifier("AAAA-0001"), tagger.videos["IMG_01.mp4"])
	assert.Equal(t, 1, lib.count("importPair:IMG_01.HEIC+IMG_01.mp4:Imported"))
	assert.Equal(t, 1, lib.count("assign:IMG_01:New and Duplicates"))
	assert.Zero(t, lib.count("assign:IMG_01:Duplicates in Library"))
	assert.Zero(t, lib.count("importSingle:"))
	assert.Equal(t, "ensure:Imported", lib.calls[0])

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Paired)
	assert.True(t, outcomes[0].Imported)
	assert.Equal(t, []string{media.AlbumNew}, outcomes[0].Albums)
}

func TestFavoriteDuplicateWithoutCompanion(t *testing.T) {
	dir := seed(t, "IMG_02.jpg")
	lib := newFakeLibrary()
	lib.results["IMG_02"] = media.FoundFavorite
	engine, minted := newEngine(t, lib, newFakeTagger(), true)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Zero(t, *minted)
	assert.Equal(t, 1, lib.count("importSingle:"))
	dup := lib.index("assign:IMG_02:Duplicates in Library")
	imp := lib.index("importSingle:IMG_02.jpg:Imported")
	fav := lib.index("assign:IMG_02:Favorite")
	require.NotEqual(t, -1, dup)
	assert.Less(t, dup, imp)
	assert.Less(t, imp, fav)
	assert.Zero(t, lib.count("assign:IMG_02:New and Duplicates"))
}

func TestNonFavoriteDuplicateAssignsBeforePairing(t *testing.T) {
	dir := seed(t, "IMG_03.jpg", "IMG_03.mp4")
	lib := newFakeLibrary()
	lib.results["IMG_03"] = media.FoundNotFavorite
	engine, _ := newEngine(t, lib, newFakeTagger(), true)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	dup := lib.index("assign:IMG_03:Duplicates in Library")
	imp := lib.index("importPair:IMG_03.jpg+IMG_03.mp4:Imported")
	require.NotEqual(t, -1, imp)
	assert.Less(t, dup, imp)
	assert.Zero(t, lib.count("assign:IMG_03:Favorite"))
	assert.Zero(t, lib.count("assign:IMG_03:New and Duplicates"))
}

func TestStandaloneVideoPass(t *testing.T) {
	for _, tc := range []struct {
		name   string
		result media.MatchResult
		album  string
	}{
		{"favorite", media.FoundFavorite, media.AlbumFavorite},
		{"not favorite", media.FoundNotFavorite, media.AlbumNew},
		{"not found", media.NotFound, media.AlbumNew},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := seed(t, "CLIP_09.mp4")
			lib := newFakeLibrary()
			lib.results["CLIP_09"] = tc.result
			engine, _ := newEngine(t, lib, newFakeTagger(), false)

			outcomes, err := engine.Run(context.Background(), dir)
			require.NoError(t, err)

			assert.Equal(t, []string{
				"ensure:Imported",
				"assign:CLIP_09:Duplicates in Library",
				"importSingle:CLIP_09.mp4:Imported",
				"query:CLIP_09",
				"assign:CLIP_09:" + tc.album,
			}, lib.calls)
			require.Len(t, outcomes, 1)
			assert.Equal(t, media.PassVideo, outcomes[0].Pass)
		})
	}
}

func TestVideoQueryFailureFallsBackToNewAlbum(t *testing.T) {
	dir := seed(t, "CLIP_10.mp4")
	lib := newFakeLibrary()
	lib.queryErr = errors.New("osascript: exit status 1")
	engine, _ := newEngine(t, lib, newFakeTagger(), false)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.count("assign:CLIP_10:New and Duplicates"))
}

func TestPairingPurgesBackups(t *testing.T) {
	dir := seed(t, "IMG_04.HEIC", "IMG_04.mp4", "OLD.jpg_original")
	engine, _ := newEngine(t, newFakeLibrary(), newFakeTagger(), false)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(dir, "*_original"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestBareStemCompanion(t *testing.T) {
	dir := seed(t, "IMG_05.jpg", "IMG_05")
	lib := newFakeLibrary()
	tagger := newFakeTagger()
	engine, _ := newEngine(t, lib, tagger, false)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, lib.count("importPair:IMG_05.jpg+IMG_05:Imported"))
	assert.Equal(t, tagger.images["IMG_05.jpg"], tagger.videos["IMG_05"])
}

func TestCompanionTakenByEarlierStill(t *testing.T) {
	dir := seed(t, "IMG_11.HEIC", "IMG_11.jpg", "IMG_11.mp4")
	lib := newFakeLibrary()
	tagger := newFakeTagger()
	engine, minted := newEngine(t, lib, tagger, false)

	outcomes, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, *minted)
	assert.Equal(t, 1, lib.count("importPair:IMG_11.HEIC+IMG_11.mp4:Imported"))
	assert.Equal(t, 1, lib.count("importSingle:IMG_11.jpg:Imported"))
	assert.NotContains(t, tagger.images, "IMG_11.jpg")
	require.Len(t, outcomes, 2)
	assert.True(t, outcomes[0].Paired)
	assert.False(t, outcomes[1].Paired)
}

func TestVideoTagFailureImportsStillAlone(t *testing.T) {
	dir := seed(t, "IMG_06.HEIC", "IMG_06.mp4")
	lib := newFakeLibrary()
	tagger := newFakeTagger()
	tagger.videoErr = errors.New("export failed")
	engine, _ := newEngine(t, lib, tagger, false)

	outcomes, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Zero(t, lib.count("importPair:"))
	assert.Equal(t, 1, lib.count("importSingle:IMG_06.HEIC:Imported"))
	// the untouched video is picked up by the video pass
	assert.Equal(t, 1, lib.count("importSingle:IMG_06.mp4:Imported"))

	matches, err := filepath.Glob(filepath.Join(dir, "*_original"))
	require.NoError(t, err)
	assert.Empty(t, matches)

	require.Len(t, outcomes, 2)
	assert.False(t, outcomes[0].Paired)
	assert.NotEmpty(t, outcomes[0].Identifier)
}

func TestImageTagFailureAbortsRun(t *testing.T) {
	dir := seed(t, "IMG_07.jpg", "IMG_07.mp4", "IMG_08.jpg")
	lib := newFakeLibrary()
	tagger := newFakeTagger()
	tagger.imageErr = errors.New("exiftool: exit status 1")
	engine, _ := newEngine(t, lib, tagger, false)

	outcomes, err := engine.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IMG_07.jpg")
	assert.Zero(t, lib.count("import"))
	require.Len(t, outcomes, 1)
	assert.NotEmpty(t, outcomes[0].Err)
}

func TestQueryFailureLeavesStillInPlace(t *testing.T) {
	dir := seed(t, "IMG_09.jpg")
	lib := newFakeLibrary()
	lib.queryErr = errors.New("Photos not running")
	engine, _ := newEngine(t, lib, newFakeTagger(), true)

	outcomes, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)
	assert.Zero(t, lib.count("import"))
	assert.Zero(t, lib.count("assign:"))
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Skipped)
	_, statErr := os.Stat(filepath.Join(dir, "IMG_09.jpg"))
	assert.NoError(t, statErr)
}

func TestCompanionConsumedByEarlierStill(t *testing.T) {
	dir := seed(t, "IMG_10.jpg", "IMG_10.mp4", "IMG_10.png")
	lib := newFakeLibrary()
	engine, minted := newEngine(t, lib, newFakeTagger(), false)

	_, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, 1, *minted)
	assert.Equal(t, 1, lib.count("importPair:IMG_10.jpg+IMG_10.mp4"))
	assert.Equal(t, 1, lib.count("importSingle:IMG_10.png"))
	assert.Zero(t, lib.count("importSingle:IMG_10.mp4"))
}

func TestFailedImportLeavesFile(t *testing.T) {
	dir := seed(t, "IMG_11.jpg")
	lib := newFakeLibrary()
	lib.failPaths["IMG_11.jpg"] = true
	engine, _ := newEngine(t, lib, newFakeTagger(), false)

	outcomes, err := engine.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Imported)
	_, statErr := os.Stat(filepath.Join(dir, "IMG_11.jpg"))
	assert.NoError(t, statErr)
}

func TestAlbumFailureAbortsRun(t *testing.T) {
	dir := seed(t, "IMG_12.jpg")
	lib := newFakeLibrary()
	lib.assignErr = errors.New("osascript: exit status 1")
	engine, _ := newEngine(t, lib, newFakeTagger(), false)

	_, err := engine.Run(context.Background(), dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "New and Duplicates")
}

func TestCancelledContextStopsRun(t *testing.T) {
	dir := seed(t, "IMG_13.jpg")
	lib := newFakeLibrary()
	engine, _ := newEngine(t, lib, newFakeTagger(), false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := engine.Run(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, lib.count("import"))
}

type countingProgress struct {
	added    int
	finished int
}

func (c *countingProgress) Add(n int) error { c.added += n; return nil }
func (c *countingProgress) Finish() error   { c.finished++; return nil }

func TestProgressCoversBothPasses(t *testing.T) {
	dir := seed(t, "a.jpg", "b.jpg", "c.mp4")
	bars := map[string]*countingProgress{}
	engine, err := New(newFakeLibrary(), newFakeTagger(), Options{
		Progress: func(total int, description string) Progress {
			bar := &countingProgress{}
			bars[description] = bar
			return bar
		},
	})
	require.NoError(t, err)

	_, err = engine.Run(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 2, bars["Processing photos"].added)
	assert.Equal(t, 1, bars["Processing videos"].added)
	assert.Equal(t, 1, bars["Processing videos"].finished)
}
