package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseObservations_SingleBlock(t *testing.T) {
	xml := `
Here is what I found:
<observation>
  <type>investigation</type>
  <title>Read config loader</title>
  <subtitle>internal/config</subtitle>
  <narrative>Traced how YAML settings merge with env overrides.</narrative>
  <facts>
    <fact>Config.Load reads CLAUDE_MEM_PROVIDER</fact>
    <fact>Defaults come from NewDefaultConfig</fact>
  </facts>
  <files_read>
    <file>internal/config/loader.go</file>
  </files_read>
</observation>
`
	obs := ParseObservations(xml, "sess-1")
	require.Len(t, obs, 1)
	assert.Equal(t, "investigation", obs[0].Type)
	assert.Equal(t, "Read config loader", obs[0].Title)
	assert.Equal(t, []string{"internal/config/loader.go"}, obs[0].FilesRead)
	assert.Len(t, obs[0].Facts, 2)
}

func TestParseObservations_MultipleBlocks(t *testing.T) {
	xml := `
<observation><title>First</title><narrative>a</narrative></observation>
<observation><title>Second</title><narrative>b</narrative></observation>
`
	obs := ParseObservations(xml, "sess-1")
	require.Len(t, obs, 2)
	assert.Equal(t, "First", obs[0].Title)
	assert.Equal(t, "Second", obs[1].Title)
}

func TestParseObservations_EmptyResponseYieldsNil(t *testing.T) {
	assert.Nil(t, ParseObservations("no structured content here", "sess-1"))
	assert.Nil(t, ParseObservations("", "sess-1"))
}

func TestParseObservations_BlankBlockSkipped(t *testing.T) {
	xml := `<observation><type>noop</type></observation>`
	assert.Nil(t, ParseObservations(xml, "sess-1"))
}

func TestParseSummary_HappyPath(t *testing.T) {
	xml := `
<summary>
  <request>Add retry budget to the event queue</request>
  <investigated>internal/queue/store.go claim/fail paths</investigated>
  <learned>SQLite single-writer mode needs SetMaxOpenConns(1)</learned>
  <completed>
    <item>Added MarkFailed retry accounting</item>
    <item>Added stall-release sweep</item>
  </completed>
  <next_steps>
    <item>Wire reaper into cmd/serve</item>
  </next_steps>
  <notes>Nothing unusual.</notes>
</summary>
`
	s := ParseSummary(xml, 42)
	require.NotNil(t, s)
	assert.Equal(t, "Add retry budget to the event queue", s.Request)
	assert.Len(t, s.Completed, 2)
	assert.Equal(t, []string{"Wire reaper into cmd/serve"}, s.NextSteps)
}

func TestParseSummary_AbsentReturnsNil(t *testing.T) {
	assert.Nil(t, ParseSummary("just prose, no tags", 42))
}

func TestParseSummary_EmptyBlockReturnsNil(t *testing.T) {
	assert.Nil(t, ParseSummary("<summary></summary>", 42))
}
