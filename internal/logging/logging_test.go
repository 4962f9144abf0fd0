package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJob() Job {
	return Job{Hash: "abc123ef01234567", InputFile: "/in.mkv", OutputFile: "/out.mkv", NodeCount: 2}
}

func TestSetup_NoLogReturnsNilLogger(t *testing.T) {
	logger, err := Setup(t.TempDir(), false, true, []string{"client"}, testJob())
	require.NoError(t, err)
	assert.Nil(t, logger)
}

func TestSetup_FilenameCarriesJobHash(t *testing.T) {
	dir := t.TempDir()
	logger, err := Setup(dir, false, false, []string{"client"}, testJob())
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Close()

	assert.Contains(t, filepath.Base(logger.filePath), testJob().Hash)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestSetup_BannerNamesJob(t *testing.T) {
	dir := t.TempDir()
	job := testJob()
	logger, err := Setup(dir, false, false, []string{"client", "--input-file", job.InputFile}, job)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Close()

	contents, err := os.ReadFile(logger.filePath)
	require.NoError(t, err)
	out := string(contents)
	assert.Contains(t, out, job.Hash)
	assert.Contains(t, out, job.InputFile)
	assert.Contains(t, out, job.OutputFile)
}

func TestLogger_DebugGatedByVerbose(t *testing.T) {
	dir := t.TempDir()
	logger, err := Setup(dir, false, false, []string{"client"}, testJob())
	require.NoError(t, err)
	defer logger.Close()

	logger.Debug("should not appear %d", 1)
	contents, err := os.ReadFile(logger.filePath)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(contents), "should not appear"))
}

func TestLogger_NilReceiverIsNoOp(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("hello")
		l.Debug("hello")
		assert.NoError(t, l.Close())
	})
}
