package index

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitPolicy_SerialWritesCommitEachTime(t *testing.T) {
	// Given: writers that never overlap
	p := NewCommitPolicy(20, nil)

	// When: 25 mutations run one after another
	commits := 0
	for i := 0; i < 25; i++ {
		p.Enter()
		if p.Exit() {
			commits++
		}
	}

	// Then: every exit leaves zero active writers and commits
	assert.Equal(t, 25, commits)
}

func TestCommitPolicy_OverlappingWritesCommitAtThresholdAndEnd(t *testing.T) {
	// Given: 25 writers that all enter before any exits
	p := NewCommitPolicy(20, nil)
	for i := 0; i < 25; i++ {
		p.Enter()
	}

	// When: they exit one by one
	commits := 0
	for i := 0; i < 25; i++ {
		if p.Exit() {
			commits++
		}
	}

	// Then: one commit when pending exceeded 20, one for the last writer
	assert.Equal(t, 2, commits)
	assert.Zero(t, p.Active())
}

func TestCommitPolicy_DefaultThreshold(t *testing.T) {
	assert.Equal(t, int64(DefaultCommitThreshold), NewCommitPolicy(0, nil).Threshold())
	assert.Equal(t, int64(7), NewCommitPolicy(7, nil).Threshold())
}

func TestCommitPolicy_DoCommitsOnEveryPath(t *testing.T) {
	p := NewCommitPolicy(20, nil)
	commits := 0
	commit := func() error {
		commits++
		return nil
	}

	// Success path.
	require.NoError(t, p.Do(func() error { return nil }, commit))
	assert.Equal(t, 1, commits)

	// Failing mutation still exits and commits.
	boom := errors.New("boom")
	err := p.Do(func() error { return boom }, commit)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, commits)

	// Panicking mutation still exits.
	assert.Panics(t, func() {
		_ = p.Do(func() error { panic("bad") }, commit)
	})
	assert.Equal(t, 3, commits)
	assert.Zero(t, p.Active())
}

func TestCommitPolicy_DoJoinsCommitError(t *testing.T) {
	p := NewCommitPolicy(20, nil)
	commitErr := errors.New("commit failed")

	err := p.Do(func() error { return nil }, func() error { return commitErr })

	assert.ErrorIs(t, err, commitErr)
}
