package feedback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{}

func (failingStore) Append(context.Context, Record) error   { return errors.New("disk full") }
func (failingStore) List(context.Context) ([]Record, error) { return nil, nil }
func (failingStore) Close() error                           { return nil }

func TestRecorderValidation(t *testing.T) {
	ctx := context.Background()
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "feedback.csv"))
	require.NoError(t, err)
	rec := NewRecorder(store)

	assert.ErrorIs(t, rec.Record(ctx, "Unknown", "Unknown", "55.00%"), ErrInvalidFeedback)
	assert.ErrorIs(t, rec.Record(ctx, "", "  ", ""), ErrInvalidFeedback)

	require.NoError(t, rec.Record(ctx, "Unknown", "Crimson Rose", "41.00%"))
	require.NoError(t, rec.Record(ctx, "Common Jezebel", "Unknown", "70.10%"))
	require.NoError(t, rec.Record(ctx, "Common Jezebel", "Common Jezebel", ""))

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Original: "Unknown", Corrected: "Crimson Rose", Confidence: "41.00%"},
		{Original: "Common Jezebel", Corrected: "Unknown", Confidence: "70.10%"},
		{Original: "Common Jezebel", Corrected: "Common Jezebel", Confidence: "N/A"},
	}, records)
}

func TestRecorderStoreFailure(t *testing.T) {
	err := NewRecorder(failingStore{}).Record(context.Background(), "a", "b", "c")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidFeedback)
	assert.Contains(t, err.Error(), "disk full")
}

func TestCSVStoreFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "feedback.csv")
	store, err := NewCSVStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, Record{Original: "Blue Mormon", Corrected: "Common Rose", Confidence: "88.12%"}))
	require.NoError(t, store.Append(ctx, Record{Original: "Rose, Crimson", Corrected: "x", Confidence: "1%"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "Blue Mormon,Common Rose,88.12%\n\"Rose, Crimson\",x,1%\n", string(data))

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Rose, Crimson", records[1].Original)
}

func TestCSVStoreConcurrentAppend(t *testing.T) {
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "feedback.csv"))
	require.NoError(t, err)

	ctx := context.Background()
	const writers, perWriter = 8, 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				label := fmt.Sprintf("species-%d-%d-%s", w, i, strings.Repeat("x", 200))
				assert.NoError(t, store.Append(ctx, Record{Original: label, Corrected: label, Confidence: "50.00%"}))
			}
		}(w)
	}
	wg.Wait()

	records, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, writers*perWriter)
	for _, r := range records {
		assert.Equal(t, r.Original, r.Corrected, "records must not interleave")
	}
}

func TestCSVStoreListMissingFile(t *testing.T) {
	store, err := NewCSVStore(filepath.Join(t.TempDir(), "none.csv"))
	require.NoError(t, err)

	records, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestSQLiteStore(t *testing.T) {
	store, err := Open("sqlite", filepath.Join(t.TempDir(), "feedback.db"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, store.Close()) }()

	ctx := context.Background()
	rec := NewRecorder(store)
	require.NoError(t, rec.Record(ctx, "Tree Nymph", "Glasswing", "61.00%"))
	require.NoError(t, rec.Record(ctx, "Unknown", "Blue Tiger", "12.50%"))
	assert.ErrorIs(t, rec.Record(ctx, "Unknown", "Unknown", "12.50%"), ErrInvalidFeedback)

	records, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Original: "Tree Nymph", Corrected: "Glasswing", Confidence: "61.00%"},
		{Original: "Unknown", Corrected: "Blue Tiger", Confidence: "12.50%"},
	}, records)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open("postgres", "x")
	assert.Error(t, err)
}

func TestWriteParquet(t *testing.T) {
	records := []Record{
		{Original: "Tree Nymph", Corrected: "Glasswing", Confidence: "61.00%"},
		{Original: "Unknown", Corrected: "Blue Tiger", Confidence: "12.50%"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteParquet(&buf, records))

	got, err := parquet.Read[Record](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	assert.Equal(t, records, got)
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []Record{{Original: "a", Corrected: "b", Confidence: "c"}}))
	assert.Equal(t, "original,corrected,confidence\na,b,c\n", buf.String())
}
