package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pgzip "github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func writeList(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := pgzip.NewWriter(f)
	_, err = gz.Write([]byte(strings.Join(lines, "\n") + "\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
	return path
}

func TestFindRepeatBuyers(t *testing.T) {
	dir := t.TempDir()
	files := []string{
		writeList(t, dir, "buyers-1.gz", "1", "2", "3", "garbage", "", "-4"),
		writeList(t, dir, "buyers-2.gz", "2", "3", "5", "007"),
		writeList(t, dir, "buyers-3.gz", "3", "6", "7"),
	}
	lg := zaptest.NewLogger(t)

	users, err := findRepeatBuyers(context.Background(), lg, files, 2, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3, 7}, users)

	users, err = findRepeatBuyers(context.Background(), lg, files, 3, 1000)
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, users)
}

func TestFindRepeatBuyers_MissingFile(t *testing.T) {
	_, err := findRepeatBuyers(context.Background(), zaptest.NewLogger(t),
		[]string{filepath.Join(t.TempDir(), "missing.gz")}, 1, 10)
	require.Error(t, err)
}

type recordingGranter struct {
	batches [][]int64
}

func (g *recordingGranter) Grant(_ context.Context, _ int64, userIDs []int64) (int64, error) {
	g.batches = append(g.batches, append([]int64(nil), userIDs...))
	return int64(len(userIDs)), nil
}

func TestGrant_Batches(t *testing.T) {
	g := &recordingGranter{}
	err := grant(context.Background(), zaptest.NewLogger(t), g, 100, []int64{1, 2, 3, 4, 5}, 2)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}, {5}}, g.batches)
}
