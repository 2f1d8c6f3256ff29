package cmd

import (
	"encoding/json"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/output"
	"github.com/Aman-CERP/sessionrecall/internal/search"
)

func TestSearchCmd_FindsSession(t *testing.T) {
	// Given: two indexed sessions
	flags, _ := testEnv(t)

	// When: searching for a term only one of them contains
	out, err := runCmd(t, append(flags, "search", "jwt", "--mode", "lexical")...)

	// Then: that session is listed
	require.NoError(t, err)
	assert.Contains(t, out, "2026-05-01_jwt-auth")
	assert.NotContains(t, out, "2026-05-02_kafka-lag")
}

func TestSearchCmd_JSON(t *testing.T) {
	flags, _ := testEnv(t)

	out, err := runCmd(t, append(flags, "search", "kafka", "consumer", "--mode", "lexical", "--format", "json")...)

	require.NoError(t, err)
	var report output.SearchReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "kafka consumer", report.Query)
	require.Equal(t, 1, report.Count)
	assert.Equal(t, "2026-05-02_kafka-lag", report.Results[0].ID)
	assert.True(t, report.Results[0].HasLexical)
	assert.Greater(t, report.Results[0].Relevance, 0.9)
}

func TestSearchCmd_NoResults(t *testing.T) {
	flags, _ := testEnv(t)

	out, err := runCmd(t, append(flags, "search", "postgres", "--mode", "lexical")...)

	require.NoError(t, err)
	assert.Contains(t, out, `No sessions found for "postgres"`)
}

func TestSearchCmd_Explain(t *testing.T) {
	flags, _ := testEnv(t)

	out, err := runCmd(t, append(flags, "search", "jwt", "--mode", "lexical", "--explain")...)

	require.NoError(t, err)
	assert.Contains(t, out, "lexical 1.000")
	assert.Contains(t, out, "matched: jwt")
}

func TestSearchCmd_TopicFilter(t *testing.T) {
	// Given: a query matching both sessions
	flags, _ := testEnv(t)

	// When: restricting to one topic
	out, err := runCmd(t, append(flags, "search", "investigation", "refactor", "--mode", "lexical", "--topic", "KAFKA")...)

	// Then: only the tagged session remains
	require.NoError(t, err)
	assert.Contains(t, out, "2026-05-02_kafka-lag")
	assert.NotContains(t, out, "2026-05-01_jwt-auth")
}

func TestSearchCmd_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		wantCode string
	}{
		{"threshold above one", []string{"search", "jwt", "--min-relevance", "1.5"}, recallerrors.ErrCodeInvalidThreshold},
		{"negative threshold", []string{"search", "jwt", "--min-relevance", "-0.1"}, recallerrors.ErrCodeInvalidThreshold},
		{"unknown mode", []string{"search", "jwt", "--mode", "fuzzy"}, recallerrors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags, _ := testEnv(t)

			_, err := runCmd(t, append(flags, tt.args...)...)

			require.Error(t, err)
			assert.Equal(t, tt.wantCode, recallerrors.GetCode(err))
		})
	}
}

func TestSearchCmd_RequiresQuery(t *testing.T) {
	flags, _ := testEnv(t)

	_, err := runCmd(t, append(flags, "search")...)

	assert.Error(t, err)
}

func TestSearchRequest_Flags(t *testing.T) {
	// Given: a search command with explicit overrides
	cmd := newSearchCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--min-relevance", "0.5", "--semantic-weight", "0", "--mode", "semantic", "-s", "2026-05", "-t", "auth,jwt"}))
	opts := searchOptionsFrom(t, cmd)

	// When: mapping flags to a request
	req, err := searchRequest(cmd, "jwt", opts)

	// Then: only the given overrides are set
	require.NoError(t, err)
	require.NotNil(t, req.MinRelevance)
	assert.InDelta(t, 0.5, *req.MinRelevance, 1e-9)
	require.NotNil(t, req.Weights)
	assert.Equal(t, search.DefaultWeights().Lexical, req.Weights.Lexical)
	assert.Zero(t, req.Weights.Semantic)
	assert.Equal(t, search.ModeSemantic, req.Mode)
	assert.Equal(t, "2026-05", req.SessionFilter)
	assert.Equal(t, []string{"auth", "jwt"}, req.Topics)
}

func TestSearchRequest_DefaultsLeaveConfigInForce(t *testing.T) {
	cmd := newSearchCmd()
	require.NoError(t, cmd.ParseFlags(nil))

	req, err := searchRequest(cmd, "jwt", searchOptionsFrom(t, cmd))

	require.NoError(t, err)
	assert.Nil(t, req.MinRelevance)
	assert.Nil(t, req.Weights)
	assert.Empty(t, req.Mode)
	assert.Equal(t, search.DefaultLimit, req.Limit)
}

// searchOptionsFrom reads the parsed flag values back into options.
func searchOptionsFrom(t *testing.T, cmd *cobra.Command) searchOptions {
	t.Helper()
	f := cmd.Flags()
	var (
		o   searchOptions
		err error
	)
	o.limit, err = f.GetInt("limit")
	require.NoError(t, err)
	o.minRelevance, err = f.GetFloat64("min-relevance")
	require.NoError(t, err)
	o.lexicalWeight, err = f.GetFloat64("lexical-weight")
	require.NoError(t, err)
	o.semanticWeight, err = f.GetFloat64("semantic-weight")
	require.NoError(t, err)
	o.mode, err = f.GetString("mode")
	require.NoError(t, err)
	o.topics, err = f.GetStringSlice("topic")
	require.NoError(t, err)
	o.session, err = f.GetString("session")
	require.NoError(t, err)
	o.explain, err = f.GetBool("explain")
	require.NoError(t, err)
	return o
}
