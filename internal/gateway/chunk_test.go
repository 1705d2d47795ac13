package gateway

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitDiffSmallDiffIsOneChunk(t *testing.T) {
	diff := "diff --git a/a.go b/a.go\n+added\n"
	chunks := splitDiff(diff, 1000)
	require.Len(t, chunks, 1)
	assert.Equal(t, diff, chunks[0])
}

func TestSplitDiffBreaksAtFileBoundaries(t *testing.T) {
	fileA := "diff --git a/a.go b/a.go\n" + strings.Repeat("+a\n", 20)
	fileB := "diff --git a/b.go b/b.go\n" + strings.Repeat("+b\n", 20)
	diff := fileA + fileB

	chunks := splitDiff(diff, len(fileA)+10)
	require.Len(t, chunks, 2)
	assert.Equal(t, fileA, chunks[0])
	assert.Equal(t, fileB, chunks[1])
	assert.Equal(t, diff, strings.Join(chunks, ""))
}

func TestSplitDiffHardSplitsOversizedSection(t *testing.T) {
	diff := "diff --git a/a.go b/a.go\n" + strings.Repeat("+x\n", 100)
	chunks := splitDiff(diff, 50)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 50)
	}
	assert.Equal(t, diff, strings.Join(chunks, ""))
}

func TestSplitDiffZeroMaxSize(t *testing.T) {
	chunks := splitDiff("anything", 0)
	require.Len(t, chunks, 1)
	assert.Equal(t, "anything", chunks[0])
}
