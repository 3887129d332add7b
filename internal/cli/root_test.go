package cmd_test

import (
	"bytes"
	"fmt"
	"os"
	"testing"

	cmd "github.com/rohmanhakim/pagefrontier/internal/cli"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/pkg/pagehash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedStore populates a fresh PageDB at dir with a small root->child graph
// and closes it, so a CLI command can reopen the same directory.
func seedStore(t *testing.T, dir string) {
	t.Helper()
	db, err := pagedb.Open(dir, pagedb.Options{Persist: true})
	require.NoError(t, err)
	_, cerr := db.Add(pagedb.Page{
		URL:   "http://root.example/",
		Time:  1,
		Links: []pagedb.LinkIn{{URL: "http://root.example/child", Score: 0.5}},
	}, false)
	require.Nil(t, cerr)
	_, cerr = db.Add(pagedb.Page{URL: "http://root.example/child", Time: 2}, false)
	require.Nil(t, cerr)
	require.NoError(t, db.Close())
}

func TestDBInfo_ReportsPageCountAndCrawlTotals(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()
	seedStore(t, dir)

	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunDBInfoForTest())
	})

	assert.Contains(t, out, "n_pages: 2")
	assert.Contains(t, out, "total_crawls: 2")
}

func TestDBInfo_WritesToOutFileWhenSet(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()
	seedStore(t, dir)

	outPath := dir + "/report.txt"
	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)
	cmd.SetOutFileForTest(outPath)
	require.NoError(t, cmd.RunDBInfoForTest())

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	assert.Contains(t, string(content), "n_pages: 2")
}

func TestDBSearch_MatchesURLsByRegex(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()
	seedStore(t, dir)

	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunDBSearchForTest("child$"))
	})

	assert.Contains(t, out, "http://root.example/child")
	assert.NotContains(t, out, "http://root.example/\n")
}

func TestDBBacklinks_WalksOneHopBack(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()
	seedStore(t, dir)

	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)

	childHash := fmt.Sprintf("%016x", uint64(pagehash.Of("http://root.example/child")))
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunDBBacklinksForTest(childHash))
	})

	assert.Contains(t, out, "http://root.example/child")
	assert.Contains(t, out, "http://root.example/\n")
}

func TestBFReload_RebuildsScheduleFromUncrawledPages(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()

	db, err := pagedb.Open(dir, pagedb.Options{Persist: true})
	require.NoError(t, err)
	_, cerr := db.Add(pagedb.Page{
		URL:   "http://root.example/",
		Time:  1,
		Links: []pagedb.LinkIn{{URL: "http://root.example/unvisited", Score: 0.7}},
	}, false)
	require.Nil(t, cerr)
	require.NoError(t, db.Close())

	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunBFReloadForTest())
	})
	assert.Contains(t, out, "bf schedule reloaded")
}

func TestFreqDump_EmptyScheduleSucceedsWithNoOutput(t *testing.T) {
	cmd.ResetFlags()
	dir := t.TempDir()
	seedStore(t, dir)

	db, err := pagedb.Open(dir, pagedb.Options{Persist: true})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	cmd.SetStoreDirForTest(dir)
	cmd.SetPersistForTest(true)
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunFreqDumpForTest())
	})
	// an empty schedule is a valid (if unexciting) dump: the command must
	// still succeed and print nothing rather than error.
	assert.Equal(t, "", out)
}

func TestLoadConfig_RequiresStoreDirOrConfigFile(t *testing.T) {
	cmd.ResetFlags()
	err := cmd.RunDBInfoForTest()
	assert.Error(t, err)
}

func TestDBEdges_DumpThenImportRoundTripsLinkGraph(t *testing.T) {
	cmd.ResetFlags()
	srcDir := t.TempDir()
	seedStore(t, srcDir)

	dumpPath := t.TempDir() + "/edges.zst"
	cmd.SetStoreDirForTest(srcDir)
	cmd.SetPersistForTest(true)
	cmd.SetOutFileForTest(dumpPath)
	require.NoError(t, cmd.RunDBEdgesDumpForTest())
	cmd.SetOutFileForTest("")

	dstDir := t.TempDir()
	db, err := pagedb.Open(dstDir, pagedb.Options{Persist: true})
	require.NoError(t, err)
	_, cerr := db.Add(pagedb.Page{URL: "http://root.example/", Time: 1}, false)
	require.Nil(t, cerr)
	_, cerr = db.Add(pagedb.Page{URL: "http://root.example/child", Time: 2}, false)
	require.Nil(t, cerr)
	rootID, found, cerr := db.GetIdx(uint64(pagehash.Of("http://root.example/")))
	require.Nil(t, cerr)
	require.True(t, found)
	childID, found, cerr := db.GetIdx(uint64(pagehash.Of("http://root.example/child")))
	require.Nil(t, cerr)
	require.True(t, found)
	require.NoError(t, db.Close())

	cmd.SetStoreDirForTest(dstDir)
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunDBEdgesImportForTest(dumpPath))
	})
	assert.Contains(t, out, "imported 1 edges")

	db, err = pagedb.Open(dstDir, pagedb.Options{Persist: true})
	require.NoError(t, err)
	predID, found, cerr := db.FindPredecessor(childID)
	require.Nil(t, cerr)
	require.True(t, found)
	assert.Equal(t, rootID, predID)
	require.NoError(t, db.Close())
}

func TestVersion_PrintsFullVersionString(t *testing.T) {
	out := captureStdout(t, func() {
		require.NoError(t, cmd.RunVersionForTest())
	})
	assert.Contains(t, out, "+")
}

// captureStdout redirects os.Stdout for the duration of fn and returns
// whatever was written to it.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	fn()

	require.NoError(t, w.Close())
	os.Stdout = old

	var buf bytes.Buffer
	_, err = buf.ReadFrom(r)
	require.NoError(t, err)
	return buf.String()
}
