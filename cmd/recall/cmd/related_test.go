package cmd

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallerrors "github.com/Aman-CERP/sessionrecall/internal/errors"
	"github.com/Aman-CERP/sessionrecall/internal/output"
)

func TestRelatedCmd_ListsOtherSessions(t *testing.T) {
	// Given: two sessions and no embeddings
	flags, _ := testEnv(t)

	// When: asking for sessions related to one of them
	out, err := runCmd(t, append(flags, "--embedder", "none", "--format", "json", "related", "2026-05-01_jwt-auth")...)

	// Then: the session itself is never listed
	require.NoError(t, err)
	var got output.RelatedReport
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "2026-05-01_jwt-auth", got.ID)
	for _, h := range got.Results {
		assert.NotEqual(t, "2026-05-01_jwt-auth", h.ID)
	}
}

func TestRelatedCmd_UnknownSession(t *testing.T) {
	flags, _ := testEnv(t)

	_, err := runCmd(t, append(flags, "related", "2020-01-01_missing")...)

	require.Error(t, err)
	assert.Equal(t, recallerrors.ErrCodeInvalidInput, recallerrors.GetCode(err))
}

func TestRelatedCmd_RequiresID(t *testing.T) {
	flags, _ := testEnv(t)

	_, err := runCmd(t, append(flags, "related")...)

	assert.Error(t, err)
}
