package session

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/utxob/Data-Recover-toll/exporter"
	"github.com/utxob/Data-Recover-toll/filters"
	"github.com/utxob/Data-Recover-toll/internal/testimg"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/reporter"
	"github.com/utxob/Data-Recover-toll/signatures"
)

const mib = 1024 * 1024

func results(session *Session) []reporter.Result {
	return slices.Collect(session.Log().All())
}

func carvingConfig(t *testing.T) Config {
	config := DefaultConfig()
	config.Output = t.TempDir()
	config.ChunkSize = mib
	return config
}

// jpegMedium holds three complete JPEGs, one of them across the 2 MiB chunk boundary,
// and a JPEG without its end marker.
func jpegMedium() *testimg.Medium {
	medium := testimg.NewMedium(10 * mib)
	medium.Place(4096, testimg.JPEG(20000, 1))
	medium.Place(2*mib-1, testimg.JPEG(50000, 2))
	medium.Place(5*mib+123, testimg.JPEG(30000, 3))
	medium.Place(8*mib, testimg.TruncatedJPEG(10000, 4))
	return medium
}

func TestCarveJPEGsEndToEnd(t *testing.T) {
	for _, shards := range []int{1, 4} {
		medium := jpegMedium()
		config := carvingConfig(t)
		config.Shards = shards
		config.Filter.Extensions = []string{"jpg"}
		config.Filter.MaxSize = 64 * 1024

		session, err := New(config, readers.NewMemReader(medium.Data))
		require.NoError(t, err)
		require.NoError(t, session.Run(context.Background()))

		found := results(session)
		require.Len(t, found, 4, "shards %d", shards)
		for idx, placement := range medium.Files[:3] {
			result := found[idx]
			assert.Equal(t, reporter.StatusSuccess, result.Status)
			assert.Equal(t, reporter.MethodCarving, result.SourceMethod)
			assert.Equal(t, "footer", result.Confidence)
			assert.Equal(t, int64(len(placement.Data)), result.SizeBytes)

			written, err := os.ReadFile(filepath.Join(config.Output, result.AssignedOutputName))
			require.NoError(t, err)
			assert.Equal(t, placement.Data, written)
		}

		truncated := found[3]
		assert.Equal(t, reporter.StatusPartial, truncated.Status)
		assert.Equal(t, int64(64*1024), truncated.SizeBytes)
		assert.Equal(t, "truncated", truncated.Confidence)
		written, err := os.ReadFile(filepath.Join(config.Output, truncated.AssignedOutputName))
		require.NoError(t, err)
		assert.Equal(t, medium.Data[8*mib:8*mib+64*1024], written)
		assert.Equal(t, filepath.Join("carved", "carved_000000800000.jpg"), truncated.AssignedOutputName)

		entries, err := os.ReadDir(filepath.Join(config.Output, "carved"))
		require.NoError(t, err)
		assert.Len(t, entries, 4)
		require.NoError(t, session.Close())
	}
}

func TestEveryCandidateIsLogged(t *testing.T) {
	medium := testimg.NewMedium(2 * mib)
	medium.Place(0x1000, testimg.JPEG(3000, 1))
	medium.Place(0x100000, testimg.JPEG(4000, 2))
	medium.Place(0x120000, testimg.PNG(900, 3))
	medium.Place(0x180000, testimg.JPEG(5000, 4))

	registry, err := signatures.Default().Subset([]string{"jpg", "png"})
	require.NoError(t, err)
	config := carvingConfig(t)
	config.Filter.NameSubstring = "000000100000"
	config.Hash = "SHA256"

	session, err := New(config, readers.NewMemReader(medium.Data), WithRegistry(registry))
	require.NoError(t, err)
	require.NoError(t, session.Run(context.Background()))

	found := results(session)
	require.Len(t, found, len(medium.Files))
	statuses := map[reporter.Status]int{}
	for idx, result := range found {
		assert.Equal(t, idx, result.Sequence)
		assert.Equal(t, session.ID, result.SessionID)
		statuses[result.Status]++
		if result.Status == reporter.StatusSkipped {
			assert.NotEmpty(t, result.ErrorDetail)
			assert.Empty(t, result.AssignedOutputName)
		}
	}
	assert.Equal(t, map[reporter.Status]int{reporter.StatusSuccess: 1, reporter.StatusSkipped: 3}, statuses)
	assert.Equal(t, "png", found[2].TypeTag)
	assert.Len(t, found[1].Hash, 64)
}

func TestCarveReportsProgress(t *testing.T) {
	medium := jpegMedium()
	progress := make(chan Progress, 256)
	config := carvingConfig(t)

	session, err := New(config, readers.NewMemReader(medium.Data), WithProgress(progress))
	require.NoError(t, err)
	require.NoError(t, session.Run(context.Background()))
	close(progress)

	var updates []Progress
	for update := range progress {
		updates = append(updates, update)
	}
	require.NotEmpty(t, updates)
	for idx := 1; idx < len(updates); idx++ {
		assert.GreaterOrEqual(t, updates[idx].Processed, updates[idx-1].Processed)
	}
	last := updates[len(updates)-1]
	assert.Equal(t, int64(len(medium.Data)), last.Total)
	assert.Positive(t, last.Processed)
	assert.LessOrEqual(t, last.Processed, last.Total)
}

func TestRunStopsOnCancel(t *testing.T) {
	config := carvingConfig(t)
	session, err := New(config, readers.NewMemReader(jpegMedium().Data))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = session.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, session.Log().Len())
}

func TestOutputWriteFailureStopsSession(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0600))

	var out jsonlCapture
	config := carvingConfig(t)
	config.Output = blocker
	session, err := New(config, readers.NewMemReader(jpegMedium().Data), WithSinks(&out))
	require.NoError(t, err)

	err = session.Run(context.Background())
	require.ErrorIs(t, err, exporter.ErrOutputWriteFailed)

	found := results(session)
	require.Len(t, found, 1)
	assert.Equal(t, reporter.StatusFailed, found[0].Status)
	assert.Len(t, out.results, 1)
}

type jsonlCapture struct {
	results []reporter.Result
	closed  bool
}

func (capture *jsonlCapture) Write(_ context.Context, results []reporter.Result) error {
	capture.results = append(capture.results, results...)
	return nil
}

func (capture *jsonlCapture) Close() error {
	capture.closed = true
	return nil
}

func TestNewRejectsUnreadableMedium(t *testing.T) {
	config := carvingConfig(t)

	_, err := New(config, readers.NewMemReader(nil))
	assert.ErrorIs(t, err, readers.ErrMediumUnreadable)

	bad := readers.NewMemReader(make([]byte, 8192), readers.Region{Offset: 0, Length: 1024})
	_, err = New(config, bad)
	assert.ErrorIs(t, err, readers.ErrMediumUnreadable)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		config := DefaultConfig()
		config.Output = "out"
		return config
	}
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"unknown mode", func(config *Config) { config.Mode = "undelete" }},
		{"no output", func(config *Config) { config.Output = "" }},
		{"small chunk", func(config *Config) { config.ChunkSize = 1000 }},
		{"no shards", func(config *Config) { config.Shards = 0 }},
		{"no workers", func(config *Config) { config.Workers = 0 }},
		{"odd sector", func(config *Config) { config.SectorSize = 100 }},
		{"negative max size", func(config *Config) { config.Filter.MaxSize = -1 }},
		{"unknown hash", func(config *Config) { config.Hash = "crc32" }},
		{"unknown strategy", func(config *Config) { config.Strategy = "overwrite" }},
		{"max size below min size", func(config *Config) {
			config.Filter = filters.Config{Extensions: []string{"jpg"}, MaxSize: 100}
		}},
		{"uncarvable extension", func(config *Config) { config.Filter.Extensions = []string{"txt"} }},
	}
	require.NoError(t, valid().Validate(nil))
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			config := valid()
			test.modify(&config)
			assert.ErrorIs(t, config.Validate(nil), ErrConfigurationInvalid)
		})
	}

	config := valid()
	config.Mode = ModeMetadata
	config.Filter.Extensions = []string{"txt"}
	config.Filter.MaxSize = 10
	assert.NoError(t, config.Validate(nil))
}

func TestExtensionFilterSplitsRegistry(t *testing.T) {
	registry, err := signatures.Default().Subset([]string{"jpg", "png", "bmp"})
	require.NoError(t, err)
	config := carvingConfig(t)

	excluded, err := config.excludedRegistry(registry)
	require.NoError(t, err)
	assert.Nil(t, excluded)

	config.Filter.Extensions = []string{"JPEG"}
	config.Filter.MaxSize = 64 * 1024
	carved, err := config.carvingRegistry(registry)
	require.NoError(t, err)
	assert.Equal(t, []string{"jpg"}, carved.Tags())
	for _, sig := range carved.All() {
		assert.LessOrEqual(t, sig.MaxSize, int64(64*1024))
	}

	excluded, err = config.excludedRegistry(registry)
	require.NoError(t, err)
	assert.Equal(t, []string{"png", "bmp"}, excluded.Tags())
}

func TestCarveSkipsExcludedTypes(t *testing.T) {
	medium := testimg.NewMedium(2 * mib)
	medium.Place(0x1000, testimg.JPEG(3000, 1))
	medium.Place(0x20000, testimg.PNG(900, 2))

	registry, err := signatures.Default().Subset([]string{"jpg", "png"})
	require.NoError(t, err)
	config := carvingConfig(t)
	config.Filter.Extensions = []string{"jpg"}

	session, err := New(config, readers.NewMemReader(medium.Data), WithRegistry(registry))
	require.NoError(t, err)
	require.NoError(t, session.Run(context.Background()))

	found := results(session)
	require.Len(t, found, 1)
	assert.Equal(t, "jpg", found[0].TypeTag)
	assert.Equal(t, reporter.StatusSuccess, found[0].Status)
}
