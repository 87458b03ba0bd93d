package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextAppendOnly(t *testing.T) {
	rc := NewContext()

	require.NoError(t, rc.Add(Result{StageID: "a", Content: "first", Artifacts: []Artifact{{Path: "x.png", Kind: ArtifactImage}}}))
	require.NoError(t, rc.Add(Result{StageID: "b", Content: "second", Artifacts: []Artifact{{Path: "r.md", Kind: ArtifactReport}}}))

	err := rc.Add(Result{StageID: "a", Content: "again"})
	assert.ErrorIs(t, err, ErrDuplicateResult)
	assert.Error(t, rc.Add(Result{}))

	got, ok := rc.Get("a")
	require.True(t, ok)
	assert.Equal(t, "first", got.Content)

	got.Artifacts[0].Path = "mutated.png"
	again, _ := rc.Get("a")
	assert.Equal(t, "x.png", again.Artifacts[0].Path, "readers get copies")

	all := rc.Results()
	require.Len(t, all, 2)
	assert.Equal(t, "b", all[1].StageID)
	assert.Equal(t, 2, rc.Len())
	assert.True(t, rc.Has("b"))
	assert.False(t, rc.Has("c"))

	assert.Len(t, rc.Artifacts(""), 2)
	assert.Equal(t, "r.md", rc.Artifacts(ArtifactReport)[0].Path)
}
