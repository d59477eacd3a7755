package storage

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bicodown/pkg/logger"
	"bicodown/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func comment(rpid int64, uname string) models.Comment {
	return models.Comment{ContainerID: "BV17x411w7KC", RPID: rpid, Uname: uname, Sex: "保密", Location: "北京"}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestUpsertCreatesWithHeader(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(logger.NewTestLogger())

	n, err := w.Upsert("BV17x411w7KC", []models.Comment{comment(1, "a"), comment(2, "")}, dir, "title", false)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rows without an author are skipped")

	lines := readLines(t, CSVPath(dir, "BV17x411w7KC"))
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(models.CSVHeader(), ","), lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "BV17x411w7KC,a,"))
}

func TestUpsertAppends(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(nil)

	_, err := w.Upsert("BV1", []models.Comment{comment(1, "a")}, dir, "", false)
	require.NoError(t, err)
	_, err = w.Upsert("BV1", []models.Comment{comment(2, "b"), comment(3, "c")}, dir, "", false)
	require.NoError(t, err)

	assert.Len(t, readLines(t, CSVPath(dir, "BV1")), 4)

	// a second writer (a later run) appends without a new header
	_, err = NewWriter(nil).Upsert("BV1", []models.Comment{comment(4, "d")}, dir, "", false)
	require.NoError(t, err)
	lines := readLines(t, CSVPath(dir, "BV1"))
	assert.Len(t, lines, 5)
	assert.Equal(t, 1, strings.Count(strings.Join(lines, "\n"), "bvid,upname"))
}

func TestUpsertOverwriteOnlyTruncatesFirstCall(t *testing.T) {
	dir := t.TempDir()
	path := CSVPath(dir, "BV1")
	require.NoError(t, os.WriteFile(path, []byte("stale\nstale\nstale\n"), 0644))

	w := NewWriter(nil)
	_, err := w.Upsert("BV1", []models.Comment{comment(1, "a")}, dir, "", true)
	require.NoError(t, err)
	_, err = w.Upsert("BV1", []models.Comment{comment(2, "b")}, dir, "", true)
	require.NoError(t, err)

	lines := readLines(t, path)
	require.Len(t, lines, 3)
	assert.NotContains(t, lines, "stale")
}

func TestUpsertEmptyBatchDoesNothing(t *testing.T) {
	dir := t.TempDir()
	n, err := NewWriter(nil).Upsert("BV1", nil, dir, "", true)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = os.Stat(CSVPath(dir, "BV1"))
	assert.True(t, os.IsNotExist(err))
}

func TestReadCommentsRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c := comment(7, "alice")
	c.Content = "含有,逗号和\"引号\""
	c.Pictures = []models.Picture{{ImgSrc: "https://i0.hdslb.com/x.png"}}
	c.Following = true

	_, err := NewWriter(nil).Upsert("BV1", []models.Comment{c}, dir, "", false)
	require.NoError(t, err)

	got, err := ReadComments(CSVPath(dir, "BV1"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, c, got[0])
}

func TestResolveOutputDir(t *testing.T) {
	base := t.TempDir()

	dir, title, err := ResolveOutputDir(base, "BV1", "a/b")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(base, "BV1_a_b"), dir)
	assert.Equal(t, "a/b", title)
	assert.DirExists(t, dir)

	dir2, title2, err := ResolveOutputDir(base, "BV1", "renamed")
	require.NoError(t, err)
	assert.Equal(t, dir, dir2, "existing directory is reused")
	assert.Equal(t, "a_b", title2)
}

func TestSaveContentInfo(t *testing.T) {
	dir := t.TempDir()

	written, err := SaveContentInfo(dir, map[string]string{"title": "one"}, false)
	require.NoError(t, err)
	assert.True(t, written)

	written, err = SaveContentInfo(dir, map[string]string{"title": "two"}, false)
	require.NoError(t, err)
	assert.False(t, written)

	written, err = SaveContentInfo(dir, map[string]string{"title": "three"}, true)
	require.NoError(t, err)
	assert.True(t, written)

	data, err := os.ReadFile(filepath.Join(dir, ContentInfoFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "three")
}

func TestImageStore(t *testing.T) {
	dir := filepath.Join(t.TempDir(), ImageDirName)

	store, err := NewImageStore(dir)
	require.NoError(t, err)
	assert.Zero(t, store.Count())

	name := ImageName("alice", "https://i0.hdslb.com/bfs/new_dyn/abc.png?x=1")
	assert.Equal(t, "alice_abc.png", name)
	assert.False(t, store.Has(name))

	require.NoError(t, store.Save(bytes.NewReader([]byte("png")), name))
	assert.True(t, store.Has(name))
	assert.FileExists(t, filepath.Join(dir, name))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bob_x.jpg"), []byte("x"), 0644))
	reopened, err := NewImageStore(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, reopened.Count())
	assert.True(t, reopened.Has("bob_x.jpg"))
}

func TestImageNameSanitizes(t *testing.T) {
	assert.Equal(t, "a_b_c.jpg", ImageName("a:b", "https://host/c.jpg"))
}
