package review

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
		validate  func(*testing.T, Ref)
	}{
		{
			name:  "Pull request reference",
			input: "github.com/octocat/hello-world/pull/42",
			validate: func(t *testing.T, r Ref) {
				assert.Equal(t, "github.com", r.Host)
				assert.Equal(t, "octocat", r.Owner)
				assert.Equal(t, "hello-world", r.Repo)
				assert.Equal(t, 42, r.Number)
				assert.False(t, r.IsCommit())
			},
		},
		{
			name:  "Full HTTPS URL",
			input: "https://github.com/octocat/hello-world/pull/7",
			validate: func(t *testing.T, r Ref) {
				assert.Equal(t, 7, r.Number)
			},
		},
		{
			name:  "Commit reference",
			input: "github.com/octocat/hello-world/commit/6dcb09b5b57875f334f61aebed695e2e4193db5e",
			validate: func(t *testing.T, r Ref) {
				assert.True(t, r.IsCommit())
				assert.Equal(t, "6dcb09b5b57875f334f61aebed695e2e4193db5e", r.CommitSHA)
				assert.Zero(t, r.Number)
			},
		},
		{
			name:  "Trailing slash",
			input: "github.com/octocat/hello-world/pull/42/",
			validate: func(t *testing.T, r Ref) {
				assert.Equal(t, 42, r.Number)
			},
		},
		{
			name:      "Missing pull number",
			input:     "github.com/octocat/hello-world/pull/",
			wantError: true,
		},
		{
			name:      "Issue URL",
			input:     "github.com/octocat/hello-world/issues/42",
			wantError: true,
		},
		{
			name:      "Short commit SHA below minimum",
			input:     "github.com/octocat/hello-world/commit/abc",
			wantError: true,
		},
		{
			name:      "Empty string",
			input:     "",
			wantError: true,
		},
		{
			name:      "Bare repo",
			input:     "github.com/octocat/hello-world",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ParseRef(tt.input)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, ref)
			}
		})
	}
}

func TestRefString(t *testing.T) {
	pr := Ref{Host: "github.com", Owner: "a", Repo: "b", Number: 3}
	assert.Equal(t, "github.com/a/b/pull/3", pr.String())

	commit := Ref{Host: "github.com", Owner: "a", Repo: "b", CommitSHA: "deadbeef"}
	assert.Equal(t, "github.com/a/b/commit/deadbeef", commit.String())

	// Round trip through ParseRef
	parsed, err := ParseRef(pr.String())
	require.NoError(t, err)
	assert.Equal(t, pr, parsed)
}

func TestSeverityRank(t *testing.T) {
	assert.Greater(t, SeverityRank(SeverityHigh), SeverityRank(SeverityMedium))
	assert.Greater(t, SeverityRank(SeverityMedium), SeverityRank(SeverityLow))
	assert.Greater(t, SeverityRank(SeverityLow), SeverityRank(Severity("unknown")))
}
